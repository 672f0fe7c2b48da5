package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full pipeline configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Runner     RunnerConfig     `yaml:"runner" mapstructure:"runner"`
	Manifest   ManifestConfig   `yaml:"manifest" mapstructure:"manifest"`
	Sentinel   SentinelConfig   `yaml:"sentinel" mapstructure:"sentinel"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Legacy     LegacyConfig     `yaml:"legacy" mapstructure:"legacy"`
	Models     []ModelEntry     `yaml:"models" mapstructure:"models"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the durable store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RunnerConfig configures query execution against model clients.
type RunnerConfig struct {
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
	Concurrency    int     `yaml:"concurrency" mapstructure:"concurrency"`
	BackoffBaseMS  int     `yaml:"backoff_base_ms" mapstructure:"backoff_base_ms"`
	BackoffCapSecs int     `yaml:"backoff_cap_secs" mapstructure:"backoff_cap_secs"`
	RateLimit      float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ManifestConfig holds the coverage thresholds gating aggregation.
type ManifestConfig struct {
	MinFloor       float64 `yaml:"min_floor" mapstructure:"min_floor"`
	TargetCoverage float64 `yaml:"target_coverage" mapstructure:"target_coverage"`
}

// SentinelConfig holds the drift classification thresholds.
type SentinelConfig struct {
	DriftThreshold float64 `yaml:"drift_threshold" mapstructure:"drift_threshold"`
	DecayThreshold float64 `yaml:"decay_threshold" mapstructure:"decay_threshold"`
}

// CatalogConfig locates the prompt catalog file shared by the run and
// catalog commands.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LegacyConfig configures legacy export replay.
type LegacyConfig struct {
	MappingPath string `yaml:"mapping_path" mapstructure:"mapping_path"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
	TempDir     string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// ModelEntry describes one model client to register. The pricing
// fields override the built-in rate table for spend estimates; zero
// leaves the defaults in force.
type ModelEntry struct {
	Name          string  `yaml:"name" mapstructure:"name"`
	Provider      string  `yaml:"provider" mapstructure:"provider"`
	Key           string  `yaml:"key" mapstructure:"key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	Model         string  `yaml:"model" mapstructure:"model"`
	MaxTokens     int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	InputPerMTok  float64 `yaml:"input_per_mtok" mapstructure:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok" mapstructure:"output_per_mtok"`
}

// MonitoringConfig configures health counters and webhook alerts.
type MonitoringConfig struct {
	WebhookURL  string `yaml:"webhook_url" mapstructure:"webhook_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "pipeline.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("runner.timeout_secs", 30)
	v.SetDefault("runner.max_retries", 3)
	v.SetDefault("runner.concurrency", 8)
	v.SetDefault("runner.backoff_base_ms", 1000)
	v.SetDefault("runner.backoff_cap_secs", 8)
	v.SetDefault("runner.rate_limit", 0)
	v.SetDefault("manifest.min_floor", 0.70)
	v.SetDefault("manifest.target_coverage", 0.95)
	v.SetDefault("sentinel.drift_threshold", 0.3)
	v.SetDefault("sentinel.decay_threshold", 0.7)
	v.SetDefault("catalog.path", "prompts.yaml")
	v.SetDefault("legacy.mapping_path", "mapping.yaml")
	v.SetDefault("legacy.batch_size", 2000)
	v.SetDefault("legacy.temp_dir", "/tmp/legacy-import")
	v.SetDefault("monitoring.timeout_secs", 10)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks configuration consistency for the given command mode.
// Modes: "run" needs model entries and a catalog file, "backfill" needs
// a mapping file, "catalog" needs the catalog file, "status" only needs
// a store.
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Runner.Concurrency < 1 || c.Runner.Concurrency > 64 {
		problems = append(problems, "runner.concurrency must be between 1 and 64")
	}
	if c.Runner.MaxRetries < 0 {
		problems = append(problems, "runner.max_retries must be >= 0")
	}
	if c.Manifest.MinFloor < 0 || c.Manifest.MinFloor > 1 ||
		c.Manifest.TargetCoverage < 0 || c.Manifest.TargetCoverage > 1 ||
		c.Manifest.MinFloor > c.Manifest.TargetCoverage {
		problems = append(problems, "manifest thresholds must satisfy 0 <= min_floor <= target_coverage <= 1")
	}
	if c.Sentinel.DriftThreshold < 0 || c.Sentinel.DriftThreshold > 1 ||
		c.Sentinel.DecayThreshold < 0 || c.Sentinel.DecayThreshold > 1 ||
		c.Sentinel.DriftThreshold >= c.Sentinel.DecayThreshold {
		problems = append(problems, "sentinel thresholds must satisfy 0 <= drift_threshold < decay_threshold <= 1")
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for sqlite")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for postgres")
		}
	default:
		problems = append(problems, "store.driver must be memory, sqlite, or postgres")
	}

	switch mode {
	case "run":
		if len(c.Models) == 0 {
			problems = append(problems, "at least one models entry is required")
		}
		if c.Catalog.Path == "" {
			problems = append(problems, "catalog.path is required")
		}
	case "backfill":
		if c.Legacy.MappingPath == "" {
			problems = append(problems, "legacy.mapping_path is required")
		}
		if c.Legacy.BatchSize < 1 {
			problems = append(problems, "legacy.batch_size must be >= 1")
		}
	case "status":
	case "catalog":
		if c.Catalog.Path == "" {
			problems = append(problems, "catalog.path is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
