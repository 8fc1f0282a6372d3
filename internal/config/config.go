package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/sells-group/postalcrawl/internal/extract"
	"github.com/sells-group/postalcrawl/internal/fetcher"
	"github.com/sells-group/postalcrawl/internal/resilience"
	"github.com/sells-group/postalcrawl/internal/store"
	"github.com/sells-group/postalcrawl/pkg/geocode"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Archive   ArchiveConfig   `yaml:"archive" mapstructure:"archive"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Nominatim NominatimConfig `yaml:"nominatim" mapstructure:"nominatim"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
}

// ArchiveConfig configures where remote archives are downloaded from.
type ArchiveConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	MaxResumes  int     `yaml:"max_resumes" mapstructure:"max_resumes"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
}

// ExtractConfig configures the extraction stage and job layout.
type ExtractConfig struct {
	OutputDir    string `yaml:"output_dir" mapstructure:"output_dir"`
	SkipExisting bool   `yaml:"skip_existing" mapstructure:"skip_existing"`
	Jobs         int    `yaml:"jobs" mapstructure:"jobs"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	SniffCharset bool   `yaml:"sniff_charset" mapstructure:"sniff_charset"`
	ParseDepth   int    `yaml:"parse_depth" mapstructure:"parse_depth"`
	WalkDepth    int    `yaml:"walk_depth" mapstructure:"walk_depth"`
}

// NominatimConfig configures the geocoding provider.
type NominatimConfig struct {
	URL              string  `yaml:"url" mapstructure:"url"`
	MaxConcurrent    int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent        string  `yaml:"user_agent" mapstructure:"user_agent"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffSecs   int     `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	CacheTTLHours    int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	KeepUnmatched    bool    `yaml:"keep_unmatched" mapstructure:"keep_unmatched"`
	DLQMaxRetries    int     `yaml:"dlq_max_retries" mapstructure:"dlq_max_retries"`
	Workers          int     `yaml:"workers" mapstructure:"workers"` // lookups in flight per archive
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// ServerConfig configures the stats server. Port 0 disables it.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// FetcherOptions converts the archive section for the HTTP fetcher.
func (c ArchiveConfig) FetcherOptions() fetcher.HTTPOptions {
	return fetcher.HTTPOptions{
		UserAgent:  c.UserAgent,
		Timeout:    time.Duration(c.TimeoutSecs) * time.Second,
		MaxRetries: c.MaxRetries,
		MaxResumes: c.MaxResumes,
		Rate:       limitOrInf(c.RateLimit),
		Burst:      c.Burst,
	}
}

// PipelineConfig converts the extract section for the extraction pipeline.
func (c ExtractConfig) PipelineConfig() extract.Config {
	return extract.Config{
		MaxBodySize:  c.MaxBodyBytes,
		SniffCharset: c.SniffCharset,
		ParseDepth:   c.ParseDepth,
		WalkDepth:    c.WalkDepth,
	}
}

// ClientConfig converts the nominatim section for the geocoding client.
func (c NominatimConfig) ClientConfig() geocode.Config {
	retry := resilience.FromRetryConfig(c.MaxAttempts,
		time.Duration(c.InitialBackoffMS)*time.Millisecond,
		time.Duration(c.MaxBackoffSecs)*time.Second,
		-1,
	)
	return geocode.Config{
		BaseURL:       c.URL,
		MaxConcurrent: c.MaxConcurrent,
		RateLimit:     c.RateLimit,
		Timeout:       time.Duration(c.TimeoutSecs) * time.Second,
		UserAgent:     c.UserAgent,
		Retry:         retry,
		Circuit:       resilience.FromCircuitConfig(c.BreakerThreshold, time.Duration(c.BreakerResetSecs)*time.Second),
	}
}

// CacheTTL is how long cached lookups stay valid; 0 means forever.
func (c NominatimConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// limitOrInf treats a non-positive rate as unlimited.
func limitOrInf(perSec float64) rate.Limit {
	if perSec <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSec)
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("POSTALCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("archive.base_url", "https://data.commoncrawl.org/")
	v.SetDefault("archive.user_agent", "postalcrawl/1.0")
	v.SetDefault("archive.timeout_secs", 30)
	v.SetDefault("archive.max_retries", 3)
	v.SetDefault("archive.max_resumes", 5)
	v.SetDefault("archive.rate_limit", 2.0)
	v.SetDefault("archive.burst", 1)
	v.SetDefault("extract.output_dir", "output")
	v.SetDefault("extract.skip_existing", true)
	v.SetDefault("extract.jobs", 6)
	v.SetDefault("extract.max_body_bytes", 16<<20)
	v.SetDefault("extract.sniff_charset", true)
	v.SetDefault("nominatim.url", "http://localhost:9020")
	v.SetDefault("nominatim.max_concurrent", 5)
	v.SetDefault("nominatim.rate_limit", 0.0)
	v.SetDefault("nominatim.timeout_secs", 30)
	v.SetDefault("nominatim.user_agent", "postalcrawl/1.0")
	v.SetDefault("nominatim.max_attempts", 6)
	v.SetDefault("nominatim.initial_backoff_ms", 1000)
	v.SetDefault("nominatim.max_backoff_secs", 120)
	v.SetDefault("nominatim.breaker_threshold", 10)
	v.SetDefault("nominatim.breaker_reset_secs", 30)
	v.SetDefault("nominatim.cache_ttl_hours", 720)
	v.SetDefault("nominatim.keep_unmatched", true)
	v.SetDefault("nominatim.dlq_max_retries", 3)
	v.SetDefault("nominatim.workers", 10)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "postalcrawl.db")
	v.SetDefault("server.port", 0)

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "", store.DriverNone, store.DriverSQLite, store.DriverPostgres:
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == store.DriverPostgres && c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required for postgres")
	}
	if c.Nominatim.MaxConcurrent < 1 {
		return eris.Errorf("config: nominatim.max_concurrent must be positive, got %d", c.Nominatim.MaxConcurrent)
	}
	if c.Extract.Jobs < 1 {
		return eris.Errorf("config: extract.jobs must be positive, got %d", c.Extract.Jobs)
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
