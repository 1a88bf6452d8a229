package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jask/jaskledger/internal/classify"
	"github.com/jask/jaskledger/internal/config"
	"github.com/jask/jaskledger/internal/database"
	"github.com/jask/jaskledger/internal/database/repository"
	"github.com/jask/jaskledger/internal/service"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "jaskledger",
		Short:   "Bank CSV ingestion and reconciliation pipeline",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	root.AddCommand(newIngestCommand())
	root.AddCommand(newClassifyCommand())
	root.AddCommand(newStatusCommand())
	return root
}

// appEnv bundles everything a command needs.
type appEnv struct {
	cfg    config.Config
	db     *sql.DB
	log    *logrus.Logger
	ledger *repository.LedgerRepo
	runs   *repository.RunRepo
}

func setup(verbose bool) (*appEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := database.RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &appEnv{
		cfg:    cfg,
		db:     db,
		log:    log,
		ledger: repository.NewLedgerRepo(db),
		runs:   repository.NewRunRepo(db),
	}, nil
}

func (e *appEnv) close() {
	_ = e.db.Close()
}

// pipeline assembles the full ingestion pipeline, loading the source and rule
// configuration files.
func (e *appEnv) pipeline() (*service.Pipeline, error) {
	sources, err := config.LoadSources(e.cfg.Data.SourcesFile)
	if err != nil {
		return nil, err
	}
	rules, err := config.LoadRules(e.cfg.Data.RulesFile)
	if err != nil {
		return nil, err
	}
	ruleSet, err := classify.NewRuleSet(rules)
	if err != nil {
		return nil, err
	}
	return &service.Pipeline{
		Ledger:       e.ledger,
		Runs:         e.runs,
		Sources:      sources,
		Rules:        ruleSet,
		Transfers:    classify.NewTransferDetector(e.cfg.Classify),
		Recurring:    e.recurringDetector(),
		RawDir:       e.cfg.Data.RawDir,
		ProcessedDir: e.cfg.Data.ProcessedDir,
		Log:          e.log,
	}, nil
}

func (e *appEnv) recurringDetector() *classify.RecurringDetector {
	return &classify.RecurringDetector{
		WindowMonths:     e.cfg.Classify.RecurringMonths,
		MerchantDistance: e.cfg.Classify.MerchantDistance,
	}
}
