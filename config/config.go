package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Fundingflow FundingflowConfig `yaml:"fundingflow"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Storage     StorageConfig     `yaml:"storage"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Scraper     ScraperConfig     `yaml:"scraper"`
	Exchanges   ExchangesConfig   `yaml:"exchanges"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	API         APIConfig         `yaml:"api"`
	Retention   RetentionConfig   `yaml:"retention"`
}

type FundingflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Region         string        `yaml:"region"`
	Namespace      string        `yaml:"namespace"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

type StorageConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
	S3       S3Config       `yaml:"s3"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type CatalogConfig struct {
	InstrumentsPath string `yaml:"instruments_path"`
	CoinsPath       string `yaml:"coins_path"`
}

type ScraperConfig struct {
	BatchSize    int           `yaml:"batch_size"`
	MaxWorkers   int           `yaml:"max_workers"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

type ExchangesConfig struct {
	Aevo        ExchangeConfig `yaml:"aevo"`
	Bybit       ExchangeConfig `yaml:"bybit"`
	Gateio      ExchangeConfig `yaml:"gateio"`
	Hyperliquid ExchangeConfig `yaml:"hyperliquid"`
}

type ExchangeConfig struct {
	Enabled         bool          `yaml:"enabled"`
	BaseURL         string        `yaml:"base_url"`
	PageLimit       int           `yaml:"page_limit"`
	MaxRetries      int           `yaml:"max_retries"`
	BackoffFactor   float64       `yaml:"backoff_factor"`
	BackoffMin      time.Duration `yaml:"backoff_min"`
	BackoffMax      time.Duration `yaml:"backoff_max"`
	RateEvery       time.Duration `yaml:"rate_every"`
	RotateUserAgent bool          `yaml:"rotate_user_agent"`
}

type SchedulerConfig struct {
	Mode              string `yaml:"mode"`
	IntervalSeconds   int    `yaml:"interval_seconds"`
	HourlyAtMinute    int    `yaml:"hourly_at_minute"`
	Parallel          bool   `yaml:"parallel"`
	BootstrapFirstRun bool   `yaml:"bootstrap_first_run"`
	Timeframe         string `yaml:"timeframe"`
}

type APIConfig struct {
	Addr       string `yaml:"addr"`
	FetchDepth int    `yaml:"fetch_depth"`
}

type RetentionConfig struct {
	Enabled    bool   `yaml:"enabled"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Prefix     string `yaml:"prefix"`
}

// ByName returns the configuration block for the named exchange.
func (e ExchangesConfig) ByName(name string) (ExchangeConfig, bool) {
	switch strings.ToLower(name) {
	case "aevo":
		return e.Aevo, true
	case "bybit":
		return e.Bybit, true
	case "gateio":
		return e.Gateio, true
	case "hyperliquid":
		return e.Hyperliquid, true
	}
	return ExchangeConfig{}, false
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Scraper: ScraperConfig{
			BatchSize:    50,
			MaxWorkers:   10,
			FetchTimeout: 5 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			Mode:      "interval",
			Timeframe: "1h",
		},
		API: APIConfig{
			Addr:       ":8080",
			FetchDepth: 100,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override settings from environment variables if available
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Storage.Postgres.DSN = strings.TrimSpace(v)
	}
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Fundingflow.Name == "" {
		return fmt.Errorf("fundingflow.name is required")
	}

	if cfg.Fundingflow.Version == "" {
		return fmt.Errorf("fundingflow.version is required")
	}

	if cfg.Storage.Postgres.DSN == "" {
		return fmt.Errorf("storage.postgres.dsn is required (or set DATABASE_URL)")
	}

	if cfg.Scraper.BatchSize <= 0 {
		return fmt.Errorf("scraper.batch_size must be greater than 0")
	}
	if cfg.Scraper.MaxWorkers <= 0 {
		return fmt.Errorf("scraper.max_workers must be greater than 0")
	}
	if cfg.Scraper.FetchTimeout <= 0 {
		return fmt.Errorf("scraper.fetch_timeout must be greater than 0")
	}

	for _, ex := range []struct {
		name string
		cfg  ExchangeConfig
	}{
		{"aevo", cfg.Exchanges.Aevo},
		{"bybit", cfg.Exchanges.Bybit},
		{"gateio", cfg.Exchanges.Gateio},
		{"hyperliquid", cfg.Exchanges.Hyperliquid},
	} {
		if !ex.cfg.Enabled {
			continue
		}
		if ex.cfg.BaseURL == "" {
			return fmt.Errorf("exchanges.%s.base_url is required when enabled", ex.name)
		}
		if ex.cfg.PageLimit <= 0 {
			return fmt.Errorf("exchanges.%s.page_limit must be greater than 0", ex.name)
		}
		if ex.cfg.MaxRetries < 0 {
			return fmt.Errorf("exchanges.%s.max_retries must not be negative", ex.name)
		}
	}

	switch cfg.Scheduler.Mode {
	case "interval":
		if cfg.Scheduler.IntervalSeconds <= 0 {
			return fmt.Errorf("scheduler.interval_seconds must be greater than 0 in interval mode")
		}
	case "hourly":
		if cfg.Scheduler.HourlyAtMinute < 0 || cfg.Scheduler.HourlyAtMinute > 59 {
			return fmt.Errorf("scheduler.hourly_at_minute must be between 0 and 59")
		}
	default:
		return fmt.Errorf("scheduler.mode must be 'interval' or 'hourly'")
	}

	if cfg.Retention.Enabled {
		if cfg.Retention.MaxAgeDays <= 0 {
			return fmt.Errorf("retention.max_age_days must be greater than 0 when retention is enabled")
		}
		if !cfg.Storage.S3.Enabled {
			return fmt.Errorf("retention requires storage.s3.enabled")
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
