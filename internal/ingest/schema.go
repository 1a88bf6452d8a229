package ingest

import (
	"fmt"
	"strings"

	"github.com/jask/jaskledger/internal/config"
)

// SchemaError reports a canonical role that could not be resolved against the
// file's header. It names the missing role and lists what was available.
type SchemaError struct {
	Role      string
	Available []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("no %s column found; available columns: %s",
		e.Role, strings.Join(e.Available, ", "))
}

// Columns holds resolved header indexes. -1 means the role did not resolve.
type Columns struct {
	Date        int
	Description int
	Amount      int
	Credit      int
	Debit       int
	Balance     int
}

var (
	defaultCreditCols = []string{"Credit"}
	defaultDebitCols  = []string{"Debit"}
)

// ResolveSchema maps the header to canonical roles using the source's
// candidate lists. Date and description are always required; amount is
// satisfied by a signed amount column or by credit/debit columns.
func ResolveSchema(header []string, src config.Source) (Columns, error) {
	cols := Columns{
		Date:        guessColumn(header, src.DateCols),
		Description: guessColumn(header, src.DescCols),
		Amount:      guessColumn(header, src.AmountCols),
		Credit:      guessColumn(header, orDefault(src.CreditCols, defaultCreditCols)),
		Debit:       guessColumn(header, orDefault(src.DebitCols, defaultDebitCols)),
		Balance:     guessColumn(header, src.BalanceCols),
	}
	if cols.Date == -1 {
		return cols, &SchemaError{Role: "date", Available: header}
	}
	if cols.Description == -1 {
		return cols, &SchemaError{Role: "description", Available: header}
	}
	if cols.Amount == -1 && cols.Credit == -1 && cols.Debit == -1 {
		return cols, &SchemaError{Role: "amount", Available: header}
	}
	return cols, nil
}

// guessColumn resolves one role: for each candidate in configured order, an
// exact header match wins, then a case-insensitive one. Earlier candidates
// shadow later ones.
func guessColumn(header []string, candidates []string) int {
	for _, c := range candidates {
		for i, col := range header {
			if col == c {
				return i
			}
		}
		for i, col := range header {
			if strings.EqualFold(strings.TrimSpace(col), c) {
				return i
			}
		}
	}
	return -1
}

func orDefault(cols, fallback []string) []string {
	if len(cols) > 0 {
		return cols
	}
	return fallback
}
