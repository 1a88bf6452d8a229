package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Fingerprint computes the stable identity of a transaction from its immutable
// fields. The amount is serialized through decimal with fixed two-digit
// precision so the digest never depends on floating-point formatting, and the
// timestamp is rendered in UTC RFC3339 so it is platform-independent.
// Re-parsing the same logical row always yields the same id.
func Fingerprint(account string, postedAt time.Time, amountCents int64, description string) string {
	amount := decimal.New(amountCents, -2)
	key := strings.Join([]string{
		account,
		postedAt.UTC().Format(time.RFC3339),
		amount.StringFixed(2),
		description,
	}, "|")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
