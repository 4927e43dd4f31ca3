// Package config loads and validates scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/paginated-scraper/internal/crawl"
	"github.com/JakeFAU/paginated-scraper/internal/extract"
	"github.com/JakeFAU/paginated-scraper/internal/sink"
)

// Browser modes.
const (
	ModeHeadless = "headless"
	ModeStatic   = "static"
)

// Checkpoint backends.
const (
	BackendLocal    = "local"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendGCS      = "gcs"
)

// Config captures every knob loaded via Viper.
type Config struct {
	Target     TargetConfig      `mapstructure:"target"`
	Crawl      CrawlConfig       `mapstructure:"crawl"`
	Browser    BrowserConfig     `mapstructure:"browser"`
	Selectors  extract.Selectors `mapstructure:"selectors"`
	Output     sink.Config       `mapstructure:"output"`
	Checkpoint CheckpointConfig  `mapstructure:"checkpoint"`
	Status     StatusConfig      `mapstructure:"status"`
	Logging    LoggingConfig     `mapstructure:"logging"`
}

// TargetConfig names the listing to crawl.
type TargetConfig struct {
	// URLTemplate contains {page} where the 1-based page index goes.
	URLTemplate string `mapstructure:"url_template"`
}

// CrawlConfig governs pacing and run limits.
type CrawlConfig struct {
	PageSettle         time.Duration `mapstructure:"page_settle"`
	ElementSettle      time.Duration `mapstructure:"element_settle"`
	RequestDelay       time.Duration `mapstructure:"request_delay"`
	MaxPages           int           `mapstructure:"max_pages"`
	PauseOnMissingLink bool          `mapstructure:"pause_on_missing_link"`
}

// BrowserConfig selects and tunes the page fetcher.
type BrowserConfig struct {
	Mode              string        `mapstructure:"mode"`
	Headless          bool          `mapstructure:"headless"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	BlockImages       bool          `mapstructure:"block_images"`
	ExecPath          string        `mapstructure:"exec_path"`
}

// CheckpointConfig selects where the progress record lives.
type CheckpointConfig struct {
	Backend       string `mapstructure:"backend"`
	Path          string `mapstructure:"path"`
	Key           string `mapstructure:"key"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	PostgresTable string `mapstructure:"postgres_table"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	GCSObject     string `mapstructure:"gcs_object"`
}

// StatusConfig enables the status server when Addr is set.
type StatusConfig struct {
	Addr   string `mapstructure:"addr"`
	APIKey string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk and SCRAPER_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// appear in no file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("target.url_template", "")
	v.SetDefault("crawl.page_settle", 3*time.Second)
	v.SetDefault("crawl.element_settle", 1500*time.Millisecond)
	v.SetDefault("crawl.request_delay", 500*time.Millisecond)
	v.SetDefault("crawl.max_pages", 0)
	v.SetDefault("crawl.pause_on_missing_link", false)
	v.SetDefault("browser.mode", ModeHeadless)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", 45*time.Second)
	v.SetDefault("browser.user_agent", "paginated-scraper/0.1")
	v.SetDefault("browser.block_images", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("selectors.items", "")
	v.SetDefault("selectors.item_link", "")
	v.SetDefault("selectors.link_attr", "href")
	v.SetDefault("selectors.title", "")
	v.SetDefault("selectors.date", "")
	v.SetDefault("selectors.document", "")
	v.SetDefault("selectors.document_attr", "href")
	v.SetDefault("selectors.pagination", "")
	v.SetDefault("output.csv_path", "output.csv")
	v.SetDefault("output.jsonl_path", "")
	v.SetDefault("checkpoint.backend", BackendLocal)
	v.SetDefault("checkpoint.path", "state.json")
	v.SetDefault("checkpoint.key", "")
	v.SetDefault("checkpoint.redis_addr", "localhost:6379")
	v.SetDefault("checkpoint.redis_password", "")
	v.SetDefault("checkpoint.redis_db", 0)
	v.SetDefault("checkpoint.postgres_dsn", "")
	v.SetDefault("checkpoint.postgres_table", "scraper_checkpoints")
	v.SetDefault("checkpoint.gcs_bucket", "")
	v.SetDefault("checkpoint.gcs_object", "scraper/state.json")
	v.SetDefault("status.addr", "")
	v.SetDefault("status.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits. All problems are
// reported together.
func (c Config) Validate() error {
	var errs []error
	if err := c.CrawlConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("target/crawl: %w", err))
	}
	if err := c.Selectors.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Browser.Mode {
	case ModeHeadless, ModeStatic:
	default:
		errs = append(errs, fmt.Errorf("browser.mode must be %q or %q, got %q", ModeHeadless, ModeStatic, c.Browser.Mode))
	}
	if c.Browser.NavigationTimeout <= 0 {
		errs = append(errs, errors.New("browser.navigation_timeout must be > 0"))
	}
	if strings.TrimSpace(c.Output.CSVPath) == "" {
		errs = append(errs, errors.New("output.csv_path is required"))
	}
	if err := c.Checkpoint.validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	return errors.Join(errs...)
}

func (c CheckpointConfig) validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Path == "" {
			return errors.New("checkpoint.path is required for the local backend")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("checkpoint.redis_addr is required for the redis backend")
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return errors.New("checkpoint.postgres_dsn is required for the postgres backend")
		}
	case BackendGCS:
		if c.GCSBucket == "" || c.GCSObject == "" {
			return errors.New("checkpoint.gcs_bucket and checkpoint.gcs_object are required for the gcs backend")
		}
	default:
		return fmt.Errorf("checkpoint.backend %q is not supported", c.Backend)
	}
	return nil
}

// CrawlConfig converts the target and crawl sections into orchestrator knobs.
func (c Config) CrawlConfig() crawl.Config {
	return crawl.Config{
		URLTemplate:   c.Target.URLTemplate,
		PageSettle:    c.Crawl.PageSettle,
		ElementSettle: c.Crawl.ElementSettle,
		RequestDelay:  c.Crawl.RequestDelay,
		MaxPages:      c.Crawl.MaxPages,
	}
}
