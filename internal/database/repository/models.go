package repository

import (
	"database/sql"
	"time"
)

// TriState is an explicitly three-valued classification flag. The zero value
// means the row has not been evaluated yet, which is distinct from an
// evaluated negative.
type TriState int

const (
	TriUnknown TriState = iota
	TriFalse
	TriTrue
)

// Bool reports whether the flag is an evaluated positive.
func (t TriState) Bool() bool { return t == TriTrue }

func (t TriState) nullBool() sql.NullBool {
	switch t {
	case TriTrue:
		return sql.NullBool{Bool: true, Valid: true}
	case TriFalse:
		return sql.NullBool{Bool: false, Valid: true}
	default:
		return sql.NullBool{}
	}
}

func triFromNull(nb sql.NullBool) TriState {
	if !nb.Valid {
		return TriUnknown
	}
	if nb.Bool {
		return TriTrue
	}
	return TriFalse
}

// Transaction is one canonical ledger row. ID, PostedAt, AmountCents, Account
// and RawDescription never change after insert; the classification fields are
// revised by the global passes.
type Transaction struct {
	ID             string
	PostedAt       time.Time
	RawDescription string
	Merchant       string
	AmountCents    int64
	Currency       string
	Account        string
	Method         string
	BalanceCents   *int64
	Reference      string

	Category         *string
	Subcategory      *string
	Fixed            *bool
	Recurring        TriState
	InternalTransfer TriState
	IsRefund         bool

	Source     string
	ImportedAt time.Time
}

// IngestRun records one pipeline invocation for provenance.
type IngestRun struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    *time.Time
	FilesSeen     int
	FilesImported int
	FilesFailed   int
	RowsInserted  int
}
