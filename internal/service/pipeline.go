package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jask/jaskledger/internal/classify"
	"github.com/jask/jaskledger/internal/config"
	"github.com/jask/jaskledger/internal/database"
	"github.com/jask/jaskledger/internal/database/repository"
	"github.com/jask/jaskledger/internal/ingest"
)

// Pipeline runs the full ingestion and classification flow: normalize and
// dedupe every unprocessed file under the raw directory, append to the ledger,
// then run the global transfer and recurring passes over the whole store.
type Pipeline struct {
	Ledger    *repository.LedgerRepo
	Runs      *repository.RunRepo
	Sources   map[string]config.Source
	Rules     *classify.RuleSet
	Transfers *classify.TransferDetector
	Recurring *classify.RecurringDetector

	RawDir       string
	ProcessedDir string

	Log *logrus.Logger
}

// RunSummary accounts for one pipeline invocation.
type RunSummary struct {
	RunID         string
	FilesSeen     int
	FilesImported int
	FilesEmpty    int
	FilesFailed   int
	RowsInserted  int
	RowsDuplicate int
	RowsDropped   int

	TransfersFlagged int
	RecurringFlagged int
}

// Run ingests all files then runs the global passes. A file-level failure is
// logged and skipped; only a failing global pass aborts, after the ingestion
// counts already committed are captured in the summary.
func (p *Pipeline) Run(ctx context.Context) (RunSummary, error) {
	summary, err := p.Ingest(ctx)
	if err != nil {
		return summary, err
	}
	transfers, recurring, err := p.Classify(ctx)
	summary.TransfersFlagged = transfers
	summary.RecurringFlagged = recurring
	if err != nil {
		return summary, fmt.Errorf("classification after %d inserted rows: %w", summary.RowsInserted, err)
	}
	return summary, nil
}

// Ingest walks every configured source directory and processes each file in
// listing order. Files are handled in isolation: an error in one file is
// logged and the loop continues.
func (p *Pipeline) Ingest(ctx context.Context) (RunSummary, error) {
	summary := RunSummary{RunID: uuid.NewString()}
	log := p.Log.WithField("run_id", summary.RunID)

	run := repository.IngestRun{ID: summary.RunID, StartedAt: database.Now()}
	if err := p.Runs.Start(ctx, run); err != nil {
		return summary, fmt.Errorf("record run: %w", err)
	}

	existing, err := p.Ledger.ExistingIDs(ctx)
	if err != nil {
		return summary, fmt.Errorf("load existing ids: %w", err)
	}

	entries, err := os.ReadDir(p.RawDir)
	if err != nil {
		if os.IsNotExist(err) {
			log.WithField("dir", p.RawDir).Warn("raw directory does not exist, nothing to ingest")
			return summary, p.finishRun(ctx, run, summary)
		}
		return summary, fmt.Errorf("read raw dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sourceName := entry.Name()
		srcCfg, ok := p.Sources[strings.ToLower(sourceName)]
		if !ok {
			log.WithField("source", sourceName).Warn("source directory has no configuration entry")
		}
		srcDir := filepath.Join(p.RawDir, sourceName)
		files, err := os.ReadDir(srcDir)
		if err != nil {
			log.WithError(err).WithField("source", sourceName).Error("read source directory")
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.EqualFold(filepath.Ext(f.Name()), ".csv") {
				continue
			}
			summary.FilesSeen++
			flog := log.WithFields(logrus.Fields{"source": sourceName, "file": f.Name()})

			res, err := p.processFile(ctx, srcDir, f.Name(), sourceName, srcCfg, existing)
			if err != nil {
				// file stays in place so the next run retries it
				flog.WithError(err).Error("file failed, leaving in place for retry")
				summary.FilesFailed++
				continue
			}
			summary.RowsInserted += res.inserted
			summary.RowsDuplicate += res.duplicates
			summary.RowsDropped += res.dropped
			if res.inserted == 0 {
				summary.FilesEmpty++
			} else {
				summary.FilesImported++
			}
			if res.duplicates > 0 {
				flog.WithField("duplicates", res.duplicates).Warn("duplicate rows skipped")
			}
			flog.WithFields(logrus.Fields{
				"inserted": res.inserted,
				"dropped":  res.dropped,
			}).Info("file ingested")
		}
	}

	return summary, p.finishRun(ctx, run, summary)
}

func (p *Pipeline) finishRun(ctx context.Context, run repository.IngestRun, s RunSummary) error {
	now := database.Now()
	run.FinishedAt = &now
	run.FilesSeen = s.FilesSeen
	run.FilesImported = s.FilesImported
	run.FilesFailed = s.FilesFailed
	run.RowsInserted = s.RowsInserted
	return p.Runs.Finish(ctx, run)
}

type fileResult struct {
	inserted   int
	duplicates int
	dropped    int
}

// processFile normalizes, categorizes, dedupes and persists one file, then
// moves it to the processed directory. Any error leaves the file untouched;
// a file that parsed but produced no new rows is still moved so it is never
// re-read.
func (p *Pipeline) processFile(ctx context.Context, dir, name, sourceName string, srcCfg config.Source, existing map[string]struct{}) (fileResult, error) {
	path := filepath.Join(dir, name)
	f, err := os.Open(path)
	if err != nil {
		return fileResult{}, fmt.Errorf("open: %w", err)
	}
	normalizer := &ingest.Normalizer{Source: srcCfg, SourceName: sourceName, Transfers: p.Transfers}
	records, stats, err := normalizer.Parse(f)
	_ = f.Close()
	if err != nil {
		return fileResult{}, err
	}

	for i := range records {
		if c, ok := p.Rules.Apply(records[i].Merchant); ok {
			category := c.Category
			fixed := c.Fixed
			records[i].Category = &category
			records[i].Subcategory = c.Subcategory
			records[i].Fixed = &fixed
		}
	}

	dedup := ingest.Dedupe(records, existing)
	res := fileResult{
		inserted:   len(dedup.Kept),
		duplicates: dedup.InBatchDropped + dedup.ExistingDropped,
		dropped:    stats.Dropped,
	}

	if len(dedup.Kept) > 0 {
		importedAt := database.Now()
		for i := range dedup.Kept {
			dedup.Kept[i].ImportedAt = importedAt
		}
		if err := p.Ledger.InsertBatch(ctx, dedup.Kept); err != nil {
			return fileResult{}, fmt.Errorf("insert batch: %w", err)
		}
		for _, t := range dedup.Kept {
			existing[t.ID] = struct{}{}
		}
	}

	if err := p.moveProcessed(path, sourceName, name); err != nil {
		return fileResult{}, err
	}
	return res, nil
}

// moveProcessed moves the file out of the inbound directory so it is never
// reprocessed. The destination name is prefixed with the source so files from
// different sources cannot collide.
func (p *Pipeline) moveProcessed(path, sourceName, name string) error {
	if err := os.MkdirAll(p.ProcessedDir, 0o755); err != nil {
		return fmt.Errorf("create processed dir: %w", err)
	}
	dest := filepath.Join(p.ProcessedDir, sourceName+"-"+name)
	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("move to processed: %w", err)
	}
	return nil
}

// Classify runs the two global passes over the full store. Both are pure
// snapshot-to-ids functions applied through the repository, idempotent by
// construction, and always re-applied on every run.
func (p *Pipeline) Classify(ctx context.Context) (transfers, recurring int, err error) {
	snapshot, err := p.Ledger.All(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load snapshot: %w", err)
	}

	transferIDs, pairs := p.Transfers.PairScan(snapshot)
	for _, pair := range pairs {
		p.Log.WithFields(logrus.Fields{
			"out_account": pair.OutAccount,
			"in_account":  pair.InAccount,
			"amount":      fmt.Sprintf("%.2f", float64(pair.AmountCents)/100),
			"days_apart":  fmt.Sprintf("%.1f", pair.DaysApart),
		}).Debug("transfer pair")
	}
	if err := p.Ledger.MarkInternalTransfers(ctx, transferIDs); err != nil {
		return 0, 0, fmt.Errorf("mark transfers: %w", err)
	}

	recurringIDs := p.Recurring.Detect(snapshot)
	if err := p.Ledger.MarkRecurring(ctx, recurringIDs); err != nil {
		return len(transferIDs), 0, fmt.Errorf("mark recurring: %w", err)
	}

	p.Log.WithFields(logrus.Fields{
		"transfers": len(transferIDs),
		"recurring": len(recurringIDs),
	}).Info("global classification complete")
	return len(transferIDs), len(recurringIDs), nil
}
