package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageBBolt    = "bbolt"
	StoragePostgres = "postgres"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName        string   `mapstructure:"app_name"`
	LogLevel       string   `mapstructure:"log_level"`
	HTTPHost       string   `mapstructure:"http_host"`
	HTTPPort       int      `mapstructure:"http_port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	APIKey         string   `mapstructure:"api_key"`
	RateLimit      float64  `mapstructure:"rate_limit_per_second"`

	StorageType string `mapstructure:"storage_type"`
	BBoltPath   string `mapstructure:"bbolt_path"`
	DatabaseURL string `mapstructure:"database_url"`
	DomainsFile string `mapstructure:"domains_file"`

	UpdateCron     string  `mapstructure:"update_cron"`
	UpdateOnStart  bool    `mapstructure:"update_on_start"`
	MaxChangeRatio float64 `mapstructure:"max_change_ratio"`
	TaskQueueSize  int     `mapstructure:"task_queue_size"`

	StaticTimeoutSeconds      int    `mapstructure:"static_timeout_seconds"`
	NavigationTimeoutSeconds  int    `mapstructure:"navigation_timeout_seconds"`
	TitleTimeoutSeconds       int    `mapstructure:"title_timeout_seconds"`
	SettleMinMs               int    `mapstructure:"settle_min_ms"`
	SettleMaxMs               int    `mapstructure:"settle_max_ms"`
	SelectorRetrySeconds      int    `mapstructure:"selector_retry_seconds"`
	StructuredDataWaitSeconds int    `mapstructure:"structured_data_wait_seconds"`
	VisibleWaitSeconds        int    `mapstructure:"visible_wait_seconds"`
	BrowserBin                string `mapstructure:"browser_bin"`

	StaticTimeout      time.Duration `mapstructure:"-"`
	NavigationTimeout  time.Duration `mapstructure:"-"`
	TitleTimeout       time.Duration `mapstructure:"-"`
	SettleMin          time.Duration `mapstructure:"-"`
	SettleMax          time.Duration `mapstructure:"-"`
	SelectorRetry      time.Duration `mapstructure:"-"`
	StructuredDataWait time.Duration `mapstructure:"-"`
	VisibleWait        time.Duration `mapstructure:"-"`
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

// Load reads configuration from .env, an optional config file and environment
// variables, in increasing precedence.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.AutomaticEnv()
	_ = v.BindEnv("http_port", "HTTP_PORT", "PORT")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.derive()
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "pricewatch")
	v.SetDefault("log_level", "info")
	v.SetDefault("http_host", "0.0.0.0")
	v.SetDefault("http_port", 3000)
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("api_key", "")
	v.SetDefault("rate_limit_per_second", 10.0)

	v.SetDefault("storage_type", StorageBBolt)
	v.SetDefault("bbolt_path", "./data/pricewatch.db")
	v.SetDefault("database_url", "")
	v.SetDefault("domains_file", "")

	v.SetDefault("update_cron", "0 */12 * * *")
	v.SetDefault("update_on_start", false)
	v.SetDefault("max_change_ratio", 0.7)
	v.SetDefault("task_queue_size", 100)

	v.SetDefault("static_timeout_seconds", 25)
	v.SetDefault("navigation_timeout_seconds", 60)
	v.SetDefault("title_timeout_seconds", 45)
	v.SetDefault("settle_min_ms", 2000)
	v.SetDefault("settle_max_ms", 2500)
	v.SetDefault("selector_retry_seconds", 10)
	v.SetDefault("structured_data_wait_seconds", 5)
	v.SetDefault("visible_wait_seconds", 10)
	v.SetDefault("browser_bin", "")
}

func (c *Config) validate() error {
	c.StorageType = strings.ToLower(strings.TrimSpace(c.StorageType))
	switch c.StorageType {
	case StorageMemory, StorageBBolt:
	case StoragePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("database_url is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown storage_type %q (want memory, bbolt or postgres)", c.StorageType)
	}

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port %d", c.HTTPPort)
	}
	if c.MaxChangeRatio <= 0 {
		return errors.New("invalid max_change_ratio (must be positive)")
	}
	if c.TaskQueueSize <= 0 {
		return errors.New("invalid task_queue_size (must be positive)")
	}
	if strings.TrimSpace(c.UpdateCron) == "" {
		return errors.New("update_cron is required")
	}

	positive := map[string]int{
		"static_timeout_seconds":     c.StaticTimeoutSeconds,
		"navigation_timeout_seconds": c.NavigationTimeoutSeconds,
		"title_timeout_seconds":      c.TitleTimeoutSeconds,
	}
	for key, val := range positive {
		if val <= 0 {
			return fmt.Errorf("invalid %s (must be positive seconds)", key)
		}
	}
	nonNegative := map[string]int{
		"settle_min_ms":                c.SettleMinMs,
		"selector_retry_seconds":       c.SelectorRetrySeconds,
		"structured_data_wait_seconds": c.StructuredDataWaitSeconds,
		"visible_wait_seconds":         c.VisibleWaitSeconds,
	}
	for key, val := range nonNegative {
		if val < 0 {
			return fmt.Errorf("invalid %s (must not be negative)", key)
		}
	}
	if c.SettleMinMs > c.SettleMaxMs {
		return fmt.Errorf("settle_min_ms (%d) exceeds settle_max_ms (%d)", c.SettleMinMs, c.SettleMaxMs)
	}
	return nil
}

func (c *Config) derive() {
	c.StaticTimeout = time.Duration(c.StaticTimeoutSeconds) * time.Second
	c.NavigationTimeout = time.Duration(c.NavigationTimeoutSeconds) * time.Second
	c.TitleTimeout = time.Duration(c.TitleTimeoutSeconds) * time.Second
	c.SettleMin = time.Duration(c.SettleMinMs) * time.Millisecond
	c.SettleMax = time.Duration(c.SettleMaxMs) * time.Millisecond
	c.SelectorRetry = time.Duration(c.SelectorRetrySeconds) * time.Second
	c.StructuredDataWait = time.Duration(c.StructuredDataWaitSeconds) * time.Second
	c.VisibleWait = time.Duration(c.VisibleWaitSeconds) * time.Second
}
