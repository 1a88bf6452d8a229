package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/jask/jaskledger/internal/classify"
	"github.com/jask/jaskledger/internal/config"
	"github.com/jask/jaskledger/internal/database"
	"github.com/jask/jaskledger/internal/database/repository"
)

type testEnv struct {
	pipe         *Pipeline
	ledger       *repository.LedgerRepo
	runs         *repository.RunRepo
	rawDir       string
	processedDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	db, err := database.Open(filepath.Join(root, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrations(db))

	rules, err := classify.NewRuleSet([]config.Rule{
		{Match: "coffee", Category: "Dining", Subcategory: "Coffee"},
		{Match: "netflix", Category: "Entertainment", Fixed: true},
	})
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	env := &testEnv{
		ledger:       repository.NewLedgerRepo(db),
		runs:         repository.NewRunRepo(db),
		rawDir:       filepath.Join(root, "raw"),
		processedDir: filepath.Join(root, "processed"),
	}
	env.pipe = &Pipeline{
		Ledger: env.ledger,
		Runs:   env.runs,
		Sources: map[string]config.Source{
			"anz": {
				DateCols:   []string{"Date"},
				DescCols:   []string{"Description"},
				AmountCols: []string{"Amount"},
				Account:    "ANZ Everyday",
			},
			"cba": {
				DateCols:   []string{"Date"},
				DescCols:   []string{"Description"},
				AmountCols: []string{"Amount"},
				Account:    "CBA Smart",
			},
		},
		Rules:     rules,
		Transfers: classify.NewTransferDetector(config.ClassifyConfig{}),
		Recurring: &classify.RecurringDetector{
			WindowMonths:     3,
			MerchantDistance: 0.2,
			Now:              func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) },
		},
		RawDir:       env.rawDir,
		ProcessedDir: env.processedDir,
		Log:          log,
	}
	return env
}

func (e *testEnv) writeRaw(t *testing.T, source, name, content string) {
	t.Helper()
	dir := filepath.Join(e.rawDir, source)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func (e *testEnv) byMerchant(t *testing.T) map[string]repository.Transaction {
	t.Helper()
	txs, err := e.ledger.All(context.Background())
	require.NoError(t, err)
	out := make(map[string]repository.Transaction, len(txs))
	for _, tx := range txs {
		out[tx.Merchant] = tx
	}
	return out
}

func TestPipelineRun(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.writeRaw(t, "anz", "statement.csv",
		"Date,Description,Amount\n"+
			"2024-01-05,BPAY Payment 1234,-500.00\n"+
			"2024-01-05,Coffee Shop,-4.50\n"+
			"2024-01-10,Netflix,-16.99\n"+
			"2024-02-10,Netflix,-16.99\n")

	summary, err := env.pipe.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.FilesSeen)
	require.Equal(t, 1, summary.FilesImported)
	require.Zero(t, summary.FilesFailed)
	require.Equal(t, 4, summary.RowsInserted)
	require.Zero(t, summary.RowsDuplicate)
	require.Zero(t, summary.RowsDropped)

	byMerchant := env.byMerchant(t)

	// the BPAY row is caught by the textual pass; everything else resolves false
	bpay := byMerchant["BPAY Payment 1234"]
	require.Equal(t, repository.TriTrue, bpay.InternalTransfer)
	coffee := byMerchant["Coffee Shop"]
	require.Equal(t, repository.TriFalse, coffee.InternalTransfer)

	// rule categorization
	require.NotNil(t, coffee.Category)
	require.Equal(t, "Dining", *coffee.Category)
	require.Equal(t, "Coffee", *coffee.Subcategory)
	require.Nil(t, bpay.Category)

	// Netflix charged in two distinct months inside the window
	netflix := byMerchant["Netflix"]
	require.Equal(t, repository.TriTrue, netflix.Recurring)
	require.Equal(t, repository.TriFalse, coffee.Recurring)

	// the file moved to processed under a source-prefixed name
	_, err = os.Stat(filepath.Join(env.processedDir, "anz-statement.csv"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(env.rawDir, "anz", "statement.csv"))
	require.True(t, os.IsNotExist(err))

	// run provenance
	run, err := env.runs.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, run)
	require.Equal(t, summary.RunID, run.ID)
	require.NotNil(t, run.FinishedAt)
	require.Equal(t, 4, run.RowsInserted)
}

func TestPipelineRerunIsIdempotent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	csvData := "Date,Description,Amount\n" +
		"2024-01-05,Coffee Shop,-4.50\n" +
		"2024-01-06,Groceries,-82.35\n"

	env.writeRaw(t, "anz", "statement.csv", csvData)
	summary, err := env.pipe.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.RowsInserted)

	// the same export lands again
	env.writeRaw(t, "anz", "statement.csv", csvData)
	summary, err = env.pipe.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, summary.RowsInserted)
	require.Equal(t, 2, summary.RowsDuplicate)
	require.Equal(t, 1, summary.FilesEmpty)
	require.Zero(t, summary.FilesImported)

	txs, err := env.ledger.All(context.Background())
	require.NoError(t, err)
	require.Len(t, txs, 2)
}

func TestPipelineInBatchDuplicates(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.writeRaw(t, "anz", "statement.csv",
		"Date,Description,Amount\n"+
			"2024-01-05,Coffee Shop,-4.50\n"+
			"2024-01-05,Coffee Shop,-4.50\n")

	summary, err := env.pipe.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.RowsInserted)
	require.Equal(t, 1, summary.RowsDuplicate)
}

func TestPipelineFailedFileStaysPut(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.writeRaw(t, "anz", "bad.csv", "Posted,Narrative,Value\n2024-01-05,Coffee,-4.50\n")
	env.writeRaw(t, "anz", "good.csv", "Date,Description,Amount\n2024-01-05,Coffee Shop,-4.50\n")

	summary, err := env.pipe.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.FilesSeen)
	require.Equal(t, 1, summary.FilesFailed)
	require.Equal(t, 1, summary.FilesImported)
	require.Equal(t, 1, summary.RowsInserted)

	// the bad file is left for the next run, the good one moved out
	_, err = os.Stat(filepath.Join(env.rawDir, "anz", "bad.csv"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(env.processedDir, "anz-good.csv"))
	require.NoError(t, err)
}

func TestPipelineCrossAccountPairing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.writeRaw(t, "anz", "out.csv",
		"Date,Description,Amount\n2024-01-05,Moved money,-250.00\n")
	env.writeRaw(t, "cba", "in.csv",
		"Date,Description,Amount\n2024-01-06,Incoming,250.00\n")

	summary, err := env.pipe.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.RowsInserted)
	require.Equal(t, 2, summary.TransfersFlagged)

	for _, tx := range env.byMerchant(t) {
		require.Equal(t, repository.TriTrue, tx.InternalTransfer)
	}
}

func TestPipelineMissingRawDir(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	summary, err := env.pipe.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, summary.FilesSeen)
	require.Zero(t, summary.RowsInserted)
}

func TestPipelineUnknownSourceDirectory(t *testing.T) {
	t.Parallel()

	// a directory with no config entry still gets processed with the generic
	// schema, which fails here because no candidate headers match
	env := newTestEnv(t)
	env.writeRaw(t, "mystery", "x.csv", "Datum,Omschrijving,Bedrag\n2024-01-05,Koffie,-4.50\n")

	summary, err := env.pipe.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.FilesFailed)
	_, err = os.Stat(filepath.Join(env.rawDir, "mystery", "x.csv"))
	require.NoError(t, err)
}

func TestPipelineClassifyRerunStable(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.writeRaw(t, "anz", "statement.csv",
		"Date,Description,Amount\n"+
			"2024-01-05,BPAY Payment 1234,-500.00\n"+
			"2024-01-05,Coffee Shop,-4.50\n")
	_, err := env.pipe.Run(context.Background())
	require.NoError(t, err)

	before := env.byMerchant(t)
	_, _, err = env.pipe.Classify(context.Background())
	require.NoError(t, err)
	after := env.byMerchant(t)

	for merchant, tx := range before {
		require.Equal(t, tx.InternalTransfer, after[merchant].InternalTransfer, merchant)
		require.Equal(t, tx.Recurring, after[merchant].Recurring, merchant)
	}
}
