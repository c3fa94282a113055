package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"feedwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Calendar  CalendarConfig  `mapstructure:"calendar"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Retention RetentionConfig `mapstructure:"retention"`
	Export    ExportConfig    `mapstructure:"export"`
	Feeds     []FeedConfig    `mapstructure:"feeds"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the monitoring store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SchedulerConfig governs sweep cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	SourceTimeout   time.Duration `mapstructure:"source_timeout"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// CalendarConfig drives COB resolution and holiday handling.
type CalendarConfig struct {
	Timezone   string   `mapstructure:"timezone"`
	CutoffHour int      `mapstructure:"cutoff_hour"`
	Holidays   []string `mapstructure:"holidays"`
}

// AlertingConfig defines notification policy and routing.
type AlertingConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RealertInterval time.Duration `mapstructure:"realert_interval"`
	Email           EmailConfig   `mapstructure:"email"`
	Webhook         WebhookConfig `mapstructure:"webhook"`
}

// EmailConfig describes the SMTP channel.
type EmailConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	FromAddress string   `mapstructure:"from_address"`
	Recipients  []string `mapstructure:"recipients"`
}

// WebhookConfig describes the JSON webhook channel.
type WebhookConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RetentionConfig bounds how long status and alert history is kept.
type RetentionConfig struct {
	Days int `mapstructure:"days"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// FeedConfig declares one monitored feed.
type FeedConfig struct {
	Name             string `mapstructure:"name"`
	SourceTable      string `mapstructure:"source_table"`
	DateColumn       string `mapstructure:"date_column"`
	ExpectedTime     string `mapstructure:"expected_time"`
	ToleranceMinutes int    `mapstructure:"tolerance_minutes"`
	WeekendExpected  bool   `mapstructure:"weekend_expected"`
	MinRecords       int64  `mapstructure:"min_records"`
	DSN              string `mapstructure:"dsn"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FEEDWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
	v.SetDefault("app.name", "feedwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("scheduler.interval", "10m")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.max_concurrency", 4)
	v.SetDefault("scheduler.source_timeout", "30s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x66656564))

	v.SetDefault("calendar.timezone", "UTC")
	v.SetDefault("calendar.cutoff_hour", 6)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.realert_interval", "6h")
	v.SetDefault("alerting.email.port", 587)
	v.SetDefault("alerting.webhook.request_timeout", "10s")

	v.SetDefault("retention.days", 365)

	v.SetDefault("export.max_data_points", 10000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
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
// A failure here is fatal at startup.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.MaxConcurrency <= 0 {
		return fmt.Errorf("scheduler.max_concurrency must be greater than zero")
	}
	if c.Scheduler.SourceTimeout <= 0 {
		return fmt.Errorf("scheduler.source_timeout must be greater than zero")
	}
	if c.Calendar.CutoffHour < 0 || c.Calendar.CutoffHour > 23 {
		return fmt.Errorf("calendar.cutoff_hour must be between 0 and 23")
	}
	if c.Retention.Days <= 0 {
		return fmt.Errorf("retention.days must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.RealertInterval < 0 {
		return fmt.Errorf("alerting.realert_interval cannot be negative")
	}
	if c.Alerting.Email.Enabled {
		if c.Alerting.Email.Host == "" {
			return fmt.Errorf("alerting.email.host is required when email is enabled")
		}
		if len(c.Alerting.Email.Recipients) == 0 {
			return fmt.Errorf("alerting.email.recipients is required when email is enabled")
		}
	}
	if c.Alerting.Webhook.Enabled && c.Alerting.Webhook.URL == "" {
		return fmt.Errorf("alerting.webhook.url is required when webhook is enabled")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
