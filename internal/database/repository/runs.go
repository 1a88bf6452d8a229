package repository

import (
	"context"
	"database/sql"
)

// RunRepo records ingest run provenance.
type RunRepo struct {
	db *sql.DB
}

func NewRunRepo(db *sql.DB) *RunRepo { return &RunRepo{db: db} }

func (r *RunRepo) Start(ctx context.Context, run IngestRun) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO ingest_runs(id, started_at) VALUES(?, ?)`, run.ID, run.StartedAt)
	return err
}

func (r *RunRepo) Finish(ctx context.Context, run IngestRun) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE ingest_runs
	SET finished_at = ?, files_seen = ?, files_imported = ?, files_failed = ?, rows_inserted = ?
	WHERE id = ?`,
		run.FinishedAt, run.FilesSeen, run.FilesImported, run.FilesFailed, run.RowsInserted, run.ID)
	return err
}

// Latest returns the most recent run, or nil when no run has been recorded.
func (r *RunRepo) Latest(ctx context.Context) (*IngestRun, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, started_at, finished_at, files_seen, files_imported, files_failed, rows_inserted
	FROM ingest_runs ORDER BY started_at DESC LIMIT 1`)
	var run IngestRun
	var finished sql.NullTime
	err := row.Scan(&run.ID, &run.StartedAt, &finished,
		&run.FilesSeen, &run.FilesImported, &run.FilesFailed, &run.RowsInserted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}
