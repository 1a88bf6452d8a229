package ingest

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/jaskledger/internal/classify"
	"github.com/jask/jaskledger/internal/config"
	"github.com/jask/jaskledger/internal/database/repository"
)

// Normalizer turns one raw CSV file into canonical candidate records.
type Normalizer struct {
	Source     config.Source
	SourceName string
	Transfers  *classify.TransferDetector
}

// ParseStats reports per-file row accounting.
type ParseStats struct {
	Rows    int // data rows seen
	Dropped int // rows silently dropped for unparsable date or amount
}

// Parse reads the whole file and returns zero or more candidate records.
// Rows with an unparsable date or amount are dropped, not errors: partial bad
// rows must not abort a whole file. Ids are not assigned here; that is the
// dedup engine's job.
func (n *Normalizer) Parse(r io.Reader) ([]repository.Transaction, ParseStats, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, ParseStats{}, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, ParseStats{}, nil
	}
	header := records[0]
	rows := records[1:]

	cols, err := ResolveSchema(header, n.Source)
	if err != nil {
		return nil, ParseStats{}, err
	}

	dates := n.parseDates(rows, cols.Date)

	stats := ParseStats{Rows: len(rows)}
	out := make([]repository.Transaction, 0, len(rows))
	for i, rec := range rows {
		if blankRecord(rec) {
			stats.Rows--
			continue
		}
		postedAt, ok := dates[i]
		if !ok {
			stats.Dropped++
			continue
		}
		amountCents, ok := n.resolveAmount(rec, cols)
		if !ok {
			stats.Dropped++
			continue
		}

		desc := strings.TrimSpace(cell(rec, cols.Description))
		t := repository.Transaction{
			PostedAt:       postedAt,
			RawDescription: desc,
			Merchant:       CleanMerchant(desc),
			AmountCents:    amountCents,
			Currency:       n.currency(),
			Account:        n.account(),
			BalanceCents:   parseBalance(cell(rec, cols.Balance)),
			Source:         n.SourceName,
			IsRefund:       classify.IsRefund(desc),
		}
		// first-pass transfer signal so later stages already see it
		if n.Transfers != nil && n.Transfers.MatchText(t.Merchant, t.RawDescription, t.AmountCents) {
			t.InternalTransfer = repository.TriTrue
		}
		out = append(out, t)
	}
	return out, stats, nil
}

// parseDates parses the date column for every row. A source-specific layout
// override is tried first; if the override parses no row at all the generic
// parser takes over for the whole file rather than failing it.
func (n *Normalizer) parseDates(rows [][]string, col int) map[int]time.Time {
	out := make(map[int]time.Time, len(rows))
	layout := strings.TrimSpace(n.Source.DateFormat)
	if layout != "" {
		for i, rec := range rows {
			if t, err := time.Parse(layout, strings.TrimSpace(cell(rec, col))); err == nil {
				out[i] = t.UTC()
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	for i, rec := range rows {
		if t, ok := parseDateGeneric(cell(rec, col)); ok {
			out[i] = t
		}
	}
	return out
}

var genericDateLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"2/01/2006",
	"02-01-2006",
	"02 Jan 2006",
	"15:04 02-01-06", // time-then-date exports
}

func parseDateGeneric(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range genericDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// resolveAmount applies the source's column shape: credit−debit when both
// resolve (unparsable cells count as zero), a single signed column otherwise,
// or a lone credit/debit column with sign applied.
func (n *Normalizer) resolveAmount(rec []string, cols Columns) (int64, bool) {
	switch {
	case cols.Credit != -1 && cols.Debit != -1:
		credit, _ := parseAmountCell(cell(rec, cols.Credit))
		debit, _ := parseAmountCell(cell(rec, cols.Debit))
		return toCents(credit.Sub(debit)), true
	case cols.Amount != -1:
		amount, ok := parseAmountCell(cell(rec, cols.Amount))
		if !ok {
			return 0, false
		}
		if !n.Source.DebitsAreNegative() {
			amount = amount.Neg()
		}
		return toCents(amount), true
	case cols.Credit != -1:
		amount, ok := parseAmountCell(cell(rec, cols.Credit))
		if !ok {
			return 0, false
		}
		return toCents(amount), true
	default:
		amount, ok := parseAmountCell(cell(rec, cols.Debit))
		if !ok {
			return 0, false
		}
		return toCents(amount.Neg()), true
	}
}

// parseAmountCell strips currency symbols and thousands separators before
// parsing.
func parseAmountCell(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func parseBalance(s string) *int64 {
	d, ok := parseAmountCell(s)
	if !ok {
		return nil
	}
	cents := toCents(d)
	return &cents
}

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	countryCodeRe = regexp.MustCompile(`(?i)\b(AU|AUS|NZ|US|USA|UK|GB)\b`)
	cardTailRe    = regexp.MustCompile(`\*+\d{2,}$`)
)

// CleanMerchant derives a display name from the raw description: collapse
// whitespace, drop free-standing country codes and trailing masked card tails.
func CleanMerchant(s string) string {
	t := whitespaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
	t = countryCodeRe.ReplaceAllString(t, "")
	t = cardTailRe.ReplaceAllString(t, "")
	t = whitespaceRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

func (n *Normalizer) currency() string {
	if n.Source.Currency != "" {
		return n.Source.Currency
	}
	return "AUD"
}

func (n *Normalizer) account() string {
	if n.Source.Account != "" {
		return n.Source.Account
	}
	return "Unknown"
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
