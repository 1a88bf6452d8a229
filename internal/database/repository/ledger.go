package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jask/jaskledger/internal/database"
)

// LedgerFilters defines list filters. Zero values mean no filter.
type LedgerFilters struct {
	From             time.Time
	To               time.Time
	Account          string
	Source           string
	InternalTransfer *bool
}

// LedgerRepo handles the transactions table.
type LedgerRepo struct {
	db *sql.DB
}

func NewLedgerRepo(db *sql.DB) *LedgerRepo { return &LedgerRepo{db: db} }

const txColumns = `id, posted_at, description_raw, merchant, amount_cents, currency, account,
 method, balance_cents, reference, category, subcategory, fixed, recurring,
 internal_transfer, is_refund, source, imported_at`

// InsertBatch appends all rows in one transaction. Callers are expected to have
// deduplicated the batch already; a duplicate id fails the whole batch.
func (r *LedgerRepo) InsertBatch(ctx context.Context, txs []Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	return database.WithTx(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions(`+txColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, t := range txs {
			_, err := stmt.ExecContext(ctx,
				t.ID, t.PostedAt, t.RawDescription, t.Merchant, t.AmountCents, t.Currency,
				t.Account, t.Method, t.BalanceCents, t.Reference, t.Category, t.Subcategory,
				t.Fixed, t.Recurring.nullBool(), t.InternalTransfer.nullBool(), t.IsRefund,
				t.Source, t.ImportedAt)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ExistingIDs returns the set of ids already persisted.
func (r *LedgerRepo) ExistingIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM transactions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// All returns a full snapshot for the global classification passes.
func (r *LedgerRepo) All(ctx context.Context) ([]Transaction, error) {
	return r.List(ctx, LedgerFilters{})
}

func (r *LedgerRepo) List(ctx context.Context, f LedgerFilters) ([]Transaction, error) {
	var where []string
	var args []interface{}

	if !f.From.IsZero() {
		where = append(where, "posted_at >= ?")
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		where = append(where, "posted_at < ?")
		args = append(args, f.To)
	}
	if f.Account != "" {
		where = append(where, "account = ?")
		args = append(args, f.Account)
	}
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, f.Source)
	}
	if f.InternalTransfer != nil {
		if *f.InternalTransfer {
			where = append(where, "internal_transfer = 1")
		} else {
			where = append(where, "(internal_transfer IS NULL OR internal_transfer = 0)")
		}
	}

	query := "SELECT " + txColumns + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY posted_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkInternalTransfers sets internal_transfer=true for ids, then resolves every
// still-unevaluated row to false. Idempotent: already-true rows stay true.
func (r *LedgerRepo) MarkInternalTransfers(ctx context.Context, ids []string) error {
	return database.WithTx(r.db, func(tx *sql.Tx) error {
		if err := setFlag(ctx, tx, "internal_transfer", ids); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE transactions SET internal_transfer = 0 WHERE internal_transfer IS NULL`)
		return err
	})
}

// MarkRecurring sets recurring=true for ids and resolves unevaluated rows to
// false. A row once true is never demoted; reruns are safe.
func (r *LedgerRepo) MarkRecurring(ctx context.Context, ids []string) error {
	return database.WithTx(r.db, func(tx *sql.Tx) error {
		if err := setFlag(ctx, tx, "recurring", ids); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE transactions SET recurring = 0 WHERE recurring IS NULL`)
		return err
	})
}

// sqlite caps host parameters per statement, so id updates go out in chunks.
const idChunkSize = 500

func setFlag(ctx context.Context, tx *sql.Tx, column string, ids []string) error {
	for _, chunk := range chunkIDs(ids, idChunkSize) {
		placeholders := strings.Repeat("?,", len(chunk))
		placeholders = placeholders[:len(placeholders)-1]
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := "UPDATE transactions SET " + column + " = 1 WHERE id IN (" + placeholders + ")"
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

func chunkIDs(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

// OverviewStats summarises the store for the status command.
type OverviewStats struct {
	Total          int
	Transfers      int
	Recurring      int
	Refunds        int
	FirstPostedAt  time.Time
	LastPostedAt   time.Time
	LastImportedAt time.Time
}

func (r *LedgerRepo) Overview(ctx context.Context) (OverviewStats, error) {
	var s OverviewStats
	row := r.db.QueryRowContext(ctx, `
	SELECT COUNT(*),
	       COALESCE(SUM(CASE WHEN internal_transfer = 1 THEN 1 ELSE 0 END), 0),
	       COALESCE(SUM(CASE WHEN recurring = 1 THEN 1 ELSE 0 END), 0),
	       COALESCE(SUM(CASE WHEN is_refund = 1 THEN 1 ELSE 0 END), 0)
	FROM transactions`)
	if err := row.Scan(&s.Total, &s.Transfers, &s.Recurring, &s.Refunds); err != nil {
		return s, err
	}
	if s.Total == 0 {
		return s, nil
	}
	// MIN/MAX lose the column's declared type, so the driver would hand back
	// strings; select the boundary rows directly instead.
	row = r.db.QueryRowContext(ctx, `SELECT posted_at FROM transactions ORDER BY posted_at ASC LIMIT 1`)
	if err := row.Scan(&s.FirstPostedAt); err != nil {
		return s, err
	}
	row = r.db.QueryRowContext(ctx, `SELECT posted_at FROM transactions ORDER BY posted_at DESC LIMIT 1`)
	if err := row.Scan(&s.LastPostedAt); err != nil {
		return s, err
	}
	row = r.db.QueryRowContext(ctx, `SELECT imported_at FROM transactions ORDER BY imported_at DESC LIMIT 1`)
	if err := row.Scan(&s.LastImportedAt); err != nil {
		return s, err
	}
	return s, nil
}

// MonthTotal aggregates one calendar month. Internal transfers are excluded
// from income and expense sums, which is the contract the dashboard relies on.
type MonthTotal struct {
	Month        string // YYYY-MM
	Count        int
	IncomeCents  int64
	ExpenseCents int64
}

func (r *LedgerRepo) MonthlyTotals(ctx context.Context) ([]MonthTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT strftime('%Y-%m', posted_at) AS month,
	       COUNT(*),
	       COALESCE(SUM(CASE WHEN amount_cents > 0 THEN amount_cents ELSE 0 END), 0),
	       COALESCE(SUM(CASE WHEN amount_cents < 0 THEN amount_cents ELSE 0 END), 0)
	FROM transactions
	WHERE internal_transfer IS NULL OR internal_transfer = 0
	GROUP BY month
	ORDER BY month ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MonthTotal
	for rows.Next() {
		var mt MonthTotal
		if err := rows.Scan(&mt.Month, &mt.Count, &mt.IncomeCents, &mt.ExpenseCents); err != nil {
			return nil, err
		}
		out = append(out, mt)
	}
	return out, rows.Err()
}

// scanTransaction handles nullable fields for both Row and Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var category, subcategory sql.NullString
	var balance sql.NullInt64
	var fixed, recurring, transfer sql.NullBool
	if err := row.Scan(&t.ID, &t.PostedAt, &t.RawDescription, &t.Merchant, &t.AmountCents,
		&t.Currency, &t.Account, &t.Method, &balance, &t.Reference, &category, &subcategory,
		&fixed, &recurring, &transfer, &t.IsRefund, &t.Source, &t.ImportedAt); err != nil {
		return Transaction{}, err
	}
	if balance.Valid {
		t.BalanceCents = &balance.Int64
	}
	if category.Valid {
		t.Category = &category.String
	}
	if subcategory.Valid {
		t.Subcategory = &subcategory.String
	}
	if fixed.Valid {
		t.Fixed = &fixed.Bool
	}
	t.Recurring = triFromNull(recurring)
	t.InternalTransfer = triFromNull(transfer)
	return t, nil
}
