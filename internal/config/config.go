package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Data     DataConfig     `mapstructure:"data"`
	Classify ClassifyConfig `mapstructure:"classify"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// DataConfig locates the inbound/processed directories and the YAML files.
type DataConfig struct {
	RawDir       string `mapstructure:"raw_dir"`
	ProcessedDir string `mapstructure:"processed_dir"`
	SourcesFile  string `mapstructure:"sources_file"`
	RulesFile    string `mapstructure:"rules_file"`
}

// ClassifyConfig holds the heuristic thresholds.
type ClassifyConfig struct {
	RoundThresholdCents int64   `mapstructure:"round_threshold_cents"`
	RoundUnitCents      int64   `mapstructure:"round_unit_cents"`
	PairToleranceCents  int64   `mapstructure:"pair_tolerance_cents"`
	PairWindowDays      int     `mapstructure:"pair_window_days"`
	RecurringMonths     int     `mapstructure:"recurring_months"`
	MerchantDistance    float64 `mapstructure:"merchant_distance"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from file and env. Env var overrides use prefix JASKLEDGER_.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "jaskledger", "ledger.db"))
	v.SetDefault("data.raw_dir", filepath.Join("data", "raw"))
	v.SetDefault("data.processed_dir", filepath.Join("data", "processed"))
	v.SetDefault("data.sources_file", filepath.Join("config", "sources.yaml"))
	v.SetDefault("data.rules_file", filepath.Join("config", "rules.yaml"))
	v.SetDefault("classify.round_threshold_cents", 50000)
	v.SetDefault("classify.round_unit_cents", 10000)
	v.SetDefault("classify.pair_tolerance_cents", 1)
	v.SetDefault("classify.pair_window_days", 3)
	v.SetDefault("classify.recurring_months", 3)
	v.SetDefault("classify.merchant_distance", 0.2)
	v.SetDefault("log.level", "info")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("JASKLEDGER_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "jaskledger"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("JASKLEDGER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Source describes one bank/card export format: candidate header names for the
// canonical roles plus parsing quirks.
type Source struct {
	DateCols      []string `mapstructure:"date_cols"`
	DescCols      []string `mapstructure:"desc_cols"`
	AmountCols    []string `mapstructure:"amount_cols"`
	CreditCols    []string `mapstructure:"credit_cols"`
	DebitCols     []string `mapstructure:"debit_cols"`
	BalanceCols   []string `mapstructure:"balance_cols"`
	Currency      string   `mapstructure:"currency"`
	Account       string   `mapstructure:"account"`
	DateFormat    string   `mapstructure:"date_format"` // Go layout; empty = generic parser
	DebitNegative *bool    `mapstructure:"debit_negative"`
}

// DebitsAreNegative reports the sign convention of a single amount column.
// Default true: outflows already carry a minus sign in the export.
func (s Source) DebitsAreNegative() bool {
	return s.DebitNegative == nil || *s.DebitNegative
}

// LoadSources reads the per-source YAML configuration. Keys are returned
// lowercased; look sources up by lowercased directory name.
func LoadSources(path string) (map[string]Source, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read sources %s: %w", path, err)
	}
	out := map[string]Source{}
	if err := v.UnmarshalKey("sources", &out); err != nil {
		return nil, fmt.Errorf("unmarshal sources %s: %w", path, err)
	}
	return out, nil
}

// Rule is one ordered categorization rule. Match is a case-insensitive regular
// expression tested against the cleaned merchant name.
type Rule struct {
	Match       string `mapstructure:"match"`
	Category    string `mapstructure:"category"`
	Subcategory string `mapstructure:"subcategory"`
	Fixed       bool   `mapstructure:"fixed"`
}

// LoadRules reads the ordered rule list. Order is load-bearing: earlier rules
// shadow later ones.
func LoadRules(path string) ([]Rule, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	var rules []Rule
	if err := v.UnmarshalKey("rules", &rules); err != nil {
		return nil, fmt.Errorf("unmarshal rules %s: %w", path, err)
	}
	for i, r := range rules {
		if strings.TrimSpace(r.Match) == "" {
			return nil, fmt.Errorf("rules %s: rule %d has no match pattern", path, i)
		}
		if strings.TrimSpace(r.Category) == "" {
			return nil, fmt.Errorf("rules %s: rule %d (%q) has no category", path, i, r.Match)
		}
	}
	return rules, nil
}
