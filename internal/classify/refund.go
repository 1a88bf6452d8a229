package classify

import "strings"

// Inbound money that reverses a prior charge rather than being new income.
// Textual heuristic only; no amount pairing is attempted for refunds.
var refundKeywords = []string{
	"refund",
	"reversal",
	"reversed",
	"chargeback",
	"adjustment",
	"rebate",
}

// IsRefund reports whether the raw description contains a refund keyword.
func IsRefund(description string) bool {
	d := strings.ToLower(description)
	for _, kw := range refundKeywords {
		if strings.Contains(d, kw) {
			return true
		}
	}
	return false
}
