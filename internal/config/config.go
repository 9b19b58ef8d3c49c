package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"shop-rank-tracker/internal/logging"
)

// Naver caps start at 1000 and display at 100.
const (
	maxSearchStart   = 1000
	maxItemsPerPage  = 100
	defaultEnvPrefix = "RANKTRACKER"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Search    SearchConfig    `mapstructure:"search"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig selects and configures the record store.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// SearchConfig covers the Naver Shopping API client.
type SearchConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	ItemsPerPage   int           `mapstructure:"items_per_page"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// ResolverConfig tunes the page walk.
type ResolverConfig struct {
	MaxPages         int           `mapstructure:"max_pages"`
	EarlyStopPages   int           `mapstructure:"early_stop_pages"`
	PageDelay        time.Duration `mapstructure:"page_delay"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	RateLimitBackoff time.Duration `mapstructure:"rate_limit_backoff"`
	ErrorBackoff     time.Duration `mapstructure:"error_backoff"`
	TestPages        int           `mapstructure:"test_pages"`
}

// BatchConfig paces the batch loop.
type BatchConfig struct {
	TargetDelay time.Duration `mapstructure:"target_delay"`
}

// AlertingConfig seeds the alert policy until an operator stores one.
type AlertingConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	StepThreshold int  `mapstructure:"step_threshold"`
	TopTier       bool `mapstructure:"top_tier"`
	TopTierCutoff int  `mapstructure:"top_tier_cutoff"`
	Lost          bool `mapstructure:"lost"`
	NewEntry      bool `mapstructure:"new_entry"`
}

// NotifyConfig lists the delivery channels.
type NotifyConfig struct {
	Timeout  time.Duration  `mapstructure:"timeout"`
	Email    EmailConfig    `mapstructure:"email"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Shoutrrr ShoutrrrConfig `mapstructure:"shoutrrr"`
}

// EmailConfig describes the SMTP channel.
type EmailConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// TelegramConfig describes the Telegram channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ShoutrrrConfig lists generic service URLs.
type ShoutrrrConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	URLs    []string `mapstructure:"urls"`
}

// SchedulerConfig governs the daily trigger.
type SchedulerConfig struct {
	Timezone     string        `mapstructure:"timezone"`
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int    `mapstructure:"max_data_points"`
	Dir           string `mapstructure:"dir"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(defaultEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// bindLegacyEnv accepts the credential names issued by the Naver developer console.
func bindLegacyEnv(v *viper.Viper) error {
	if err := v.BindEnv("search.client_id", defaultEnvPrefix+"_SEARCH_CLIENT_ID", "NAVER_CLIENT_ID"); err != nil {
		return fmt.Errorf("bind env: %w", err)
	}
	if err := v.BindEnv("search.client_secret", defaultEnvPrefix+"_SEARCH_CLIENT_SECRET", "NAVER_CLIENT_SECRET"); err != nil {
		return fmt.Errorf("bind env: %w", err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ranktracker")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.path", "ranktracker.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.advisory_lock_key", int64(0x72616e6b))

	v.SetDefault("search.base_url", "https://openapi.naver.com")
	v.SetDefault("search.items_per_page", 100)
	v.SetDefault("search.request_timeout", "15s")
	v.SetDefault("search.rate_per_second", 10.0)
	v.SetDefault("search.user_agent", "ranktracker/1.0")

	v.SetDefault("resolver.max_pages", 10)
	v.SetDefault("resolver.early_stop_pages", 2)
	v.SetDefault("resolver.page_delay", "120ms")
	v.SetDefault("resolver.max_attempts", 3)
	v.SetDefault("resolver.rate_limit_backoff", "2s")
	v.SetDefault("resolver.error_backoff", "1s")
	v.SetDefault("resolver.test_pages", 3)

	v.SetDefault("batch.target_delay", "300ms")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.step_threshold", 5)
	v.SetDefault("alerting.top_tier", true)
	v.SetDefault("alerting.top_tier_cutoff", 10)
	v.SetDefault("alerting.lost", true)
	v.SetDefault("alerting.new_entry", true)

	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("notify.email.enabled", false)
	v.SetDefault("notify.email.host", "smtp.gmail.com")
	v.SetDefault("notify.email.port", 587)
	v.SetDefault("notify.email.username", "")
	v.SetDefault("notify.email.password", "")
	v.SetDefault("notify.email.from", "")
	v.SetDefault("notify.email.to", []string{})
	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.bot_token", "")
	v.SetDefault("notify.telegram.chat_id", "")
	v.SetDefault("notify.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("notify.shoutrrr.enabled", false)
	v.SetDefault("notify.shoutrrr.urls", []string{})

	v.SetDefault("scheduler.timezone", "Asia/Seoul")
	v.SetDefault("scheduler.sync_interval", "1m")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9464")

	v.SetDefault("export.max_data_points", 5000)
	v.SetDefault("export.dir", ".")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" && c.Database.DSN == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}

	if c.Search.ItemsPerPage < 1 || c.Search.ItemsPerPage > maxItemsPerPage {
		return fmt.Errorf("search.items_per_page must be within 1..%d", maxItemsPerPage)
	}
	if c.Search.RequestTimeout <= 0 {
		return fmt.Errorf("search.request_timeout must be greater than zero")
	}
	if c.Resolver.MaxPages < 1 {
		return fmt.Errorf("resolver.max_pages must be at least 1")
	}
	if (c.Resolver.MaxPages-1)*c.Search.ItemsPerPage+1 > maxSearchStart {
		return fmt.Errorf("resolver.max_pages %d with search.items_per_page %d exceeds the provider start limit %d",
			c.Resolver.MaxPages, c.Search.ItemsPerPage, maxSearchStart)
	}
	if c.Resolver.TestPages < 1 || c.Resolver.TestPages > c.Resolver.MaxPages {
		return fmt.Errorf("resolver.test_pages must be within 1..resolver.max_pages")
	}
	if c.Resolver.EarlyStopPages < 0 {
		return fmt.Errorf("resolver.early_stop_pages cannot be negative")
	}
	if c.Resolver.MaxAttempts < 1 {
		return fmt.Errorf("resolver.max_attempts must be at least 1")
	}
	if c.Resolver.PageDelay < 0 || c.Resolver.RateLimitBackoff < 0 || c.Resolver.ErrorBackoff < 0 || c.Batch.TargetDelay < 0 {
		return fmt.Errorf("resolver and batch delays cannot be negative")
	}

	if c.Alerting.StepThreshold < 1 {
		return fmt.Errorf("alerting.step_threshold must be at least 1")
	}
	if c.Alerting.TopTierCutoff < 1 {
		return fmt.Errorf("alerting.top_tier_cutoff must be at least 1")
	}

	if c.Notify.Email.Enabled {
		if c.Notify.Email.Username == "" || c.Notify.Email.Password == "" {
			return fmt.Errorf("notify.email.username and notify.email.password are required")
		}
		if len(c.Notify.Email.To) == 0 {
			return fmt.Errorf("notify.email.to is required")
		}
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token is required")
		}
		if c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.chat_id is required")
		}
	}
	if c.Notify.Shoutrrr.Enabled && len(c.Notify.Shoutrrr.URLs) == 0 {
		return fmt.Errorf("notify.shoutrrr.urls is required")
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	if c.Scheduler.SyncInterval <= 0 {
		return fmt.Errorf("scheduler.sync_interval must be greater than zero")
	}

	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// Location returns the scheduler timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
