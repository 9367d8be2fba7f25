package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Similarity SimilarityConfig `yaml:"similarity" mapstructure:"similarity"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Providers  ProvidersConfig  `yaml:"providers" mapstructure:"providers"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// FetchConfig configures the shared HTTP fetcher.
type FetchConfig struct {
	UserAgent     string     `yaml:"user_agent" mapstructure:"user_agent"`
	Concurrency   int        `yaml:"concurrency" mapstructure:"concurrency"`
	MaxAttempts   int        `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffUnitMs int        `yaml:"backoff_unit_ms" mapstructure:"backoff_unit_ms"`
	MaxBackoffMs  int        `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	TimeoutSecs   int        `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBodyMB     int        `yaml:"max_body_mb" mapstructure:"max_body_mb"`
	HostRates     []HostRate `yaml:"host_rates" mapstructure:"host_rates"`
}

// HostRate is a per-host request budget. Hosts are listed rather than keyed
// because viper splits map keys on dots.
type HostRate struct {
	Host string  `yaml:"host" mapstructure:"host"`
	RPS  float64 `yaml:"rps" mapstructure:"rps"`
}

// EnrichConfig configures the orchestrator.
type EnrichConfig struct {
	BatchSize     int  `yaml:"batch_size" mapstructure:"batch_size"`
	IncludeMarket bool `yaml:"include_market" mapstructure:"include_market"`
	JitterMinMs   int  `yaml:"jitter_min_ms" mapstructure:"jitter_min_ms"`
	JitterMaxMs   int  `yaml:"jitter_max_ms" mapstructure:"jitter_max_ms"`
}

// SimilarityConfig configures the competitor map.
type SimilarityConfig struct {
	TopN int  `yaml:"top_n" mapstructure:"top_n"`
	Stem bool `yaml:"stem" mapstructure:"stem"`
}

// CacheConfig configures the provider lookup cache.
type CacheConfig struct {
	Enabled          bool `yaml:"enabled" mapstructure:"enabled"`
	PositiveTTLHours int  `yaml:"positive_ttl_hours" mapstructure:"positive_ttl_hours"`
	NegativeTTLMins  int  `yaml:"negative_ttl_mins" mapstructure:"negative_ttl_mins"`
}

// PositiveTTL returns the lifetime of non-empty entries. Zero never expires.
func (c CacheConfig) PositiveTTL() time.Duration {
	return time.Duration(c.PositiveTTLHours) * time.Hour
}

// NegativeTTL returns the lifetime of empty entries. Negative disables them.
func (c CacheConfig) NegativeTTL() time.Duration {
	return time.Duration(c.NegativeTTLMins) * time.Minute
}

// CircuitConfig configures per-provider circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// StoreConfig configures persistence for the cache and async runs.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ProviderConfig configures one data source.
type ProviderConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	APIURL      string `yaml:"api_url" mapstructure:"api_url"`
	APIToken    string `yaml:"api_token" mapstructure:"api_token"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the per-request timeout, zero when unset.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// ProvidersConfig configures the four data sources.
type ProvidersConfig struct {
	OpenCorporates ProviderConfig `yaml:"opencorporates" mapstructure:"opencorporates"`
	Wikidata       ProviderConfig `yaml:"wikidata" mapstructure:"wikidata"`
	Wikipedia      ProviderConfig `yaml:"wikipedia" mapstructure:"wikipedia"`
	Yahoo          ProviderConfig `yaml:"yahoo" mapstructure:"yahoo"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	MaxUploadMB    int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	MaxNames       int      `yaml:"max_names" mapstructure:"max_names"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// ExportConfig configures report output.
type ExportConfig struct {
	Output string `yaml:"output" mapstructure:"output"`
	Format string `yaml:"format" mapstructure:"format"`
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
	v.SetEnvPrefix("INTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("fetch.user_agent", "company-intel/1.0")
	v.SetDefault("fetch.concurrency", 5)
	v.SetDefault("fetch.max_attempts", 5)
	v.SetDefault("fetch.backoff_unit_ms", 1000)
	v.SetDefault("fetch.max_backoff_ms", 60000)
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.max_body_mb", 8)
	v.SetDefault("enrich.batch_size", 20)
	v.SetDefault("enrich.include_market", false)
	v.SetDefault("enrich.jitter_min_ms", 50)
	v.SetDefault("enrich.jitter_max_ms", 250)
	v.SetDefault("similarity.top_n", 5)
	v.SetDefault("similarity.stem", false)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.positive_ttl_hours", 0)
	v.SetDefault("cache.negative_ttl_mins", 60)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.sqlite_path", "company-intel.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("providers.opencorporates.base_url", "https://api.opencorporates.com/v0.4")
	v.SetDefault("providers.opencorporates.timeout_secs", 15)
	v.SetDefault("providers.wikidata.base_url", "https://www.wikidata.org")
	v.SetDefault("providers.wikidata.api_url", "https://www.wikidata.org/w/api.php")
	v.SetDefault("providers.wikidata.timeout_secs", 10)
	v.SetDefault("providers.wikipedia.base_url", "https://en.wikipedia.org")
	v.SetDefault("providers.wikipedia.timeout_secs", 15)
	v.SetDefault("providers.yahoo.base_url", "https://query2.finance.yahoo.com")
	v.SetDefault("providers.yahoo.timeout_secs", 20)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_mb", 10)
	v.SetDefault("server.max_names", 1000)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("export.output", "company_intelligence.xlsx")
	v.SetDefault("export.format", "xlsx")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command mode depends on. Mode is one of
// "enrich", "serve" or "cache".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "enrich", "serve", "cache":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Fetch.Concurrency < 1 || c.Fetch.Concurrency > 100 {
		errs = append(errs, "fetch.concurrency must be between 1 and 100")
	}
	if c.Fetch.MaxAttempts < 1 {
		errs = append(errs, "fetch.max_attempts must be >= 1")
	}
	if c.Enrich.BatchSize < 1 || c.Enrich.BatchSize > 500 {
		errs = append(errs, "enrich.batch_size must be between 1 and 500")
	}
	if c.Enrich.JitterMinMs < 0 || (c.Enrich.JitterMaxMs != 0 && c.Enrich.JitterMaxMs < c.Enrich.JitterMinMs) {
		errs = append(errs, "enrich.jitter_min_ms must be >= 0 and <= jitter_max_ms")
	}
	if c.Similarity.TopN < 1 {
		errs = append(errs, "similarity.top_n must be >= 1")
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of memory, sqlite, postgres", c.Store.Driver))
	}

	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
