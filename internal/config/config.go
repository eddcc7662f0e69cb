package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	AlertLog AlertLogConfig `mapstructure:"alert_log"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	FilePath            string        `mapstructure:"file_path"`
	MaxTradesPerWallet  int           `mapstructure:"max_trades_per_wallet"`
	PersistenceInterval time.Duration `mapstructure:"persistence_interval"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// AlertLogConfig holds the SQLite alert history configuration
type AlertLogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

// ScheduleConfig holds the cron specs (standard 5-field syntax) of recurring jobs
type ScheduleConfig struct {
	RecalculateCron  string `mapstructure:"recalculate_cron"`
	AccumulationCron string `mapstructure:"accumulation_cron"`
	ConfluenceCron   string `mapstructure:"confluence_cron"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from a .env file (if any), the config file and
// environment variables. WHALESCOPE_TELEGRAM_BOT_TOKEN overrides telegram.bot_token.
// An empty path skips the config file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("WHALESCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Storage defaults
	v.SetDefault("storage.file_path", "./data/whalescope.json")
	v.SetDefault("storage.max_trades_per_wallet", 5000)
	v.SetDefault("storage.persistence_interval", "5m")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Alert log defaults
	v.SetDefault("alert_log.enabled", true)
	v.SetDefault("alert_log.db_path", "./data/alerts.db")

	// Schedule defaults
	v.SetDefault("schedule.recalculate_cron", "0 */6 * * *")
	v.SetDefault("schedule.accumulation_cron", "*/30 * * * *")
	v.SetDefault("schedule.confluence_cron", "*/5 * * * *")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Storage config
	if c.Storage.FilePath == "" {
		return fmt.Errorf("storage.file_path is required")
	}
	if c.Storage.MaxTradesPerWallet < 100 {
		return fmt.Errorf("storage.max_trades_per_wallet must be at least 100")
	}
	if c.Storage.PersistenceInterval < 1*time.Minute {
		return fmt.Errorf("storage.persistence_interval must be at least 1 minute")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Telegram.MaxRetries < 0 {
		return fmt.Errorf("telegram.max_retries must not be negative")
	}

	// Validate AlertLog config
	if c.AlertLog.Enabled && c.AlertLog.DBPath == "" {
		return fmt.Errorf("alert_log.db_path is required when alert_log is enabled")
	}

	// Validate Schedule config
	specs := []struct {
		key  string
		spec string
	}{
		{"schedule.recalculate_cron", c.Schedule.RecalculateCron},
		{"schedule.accumulation_cron", c.Schedule.AccumulationCron},
		{"schedule.confluence_cron", c.Schedule.ConfluenceCron},
	}
	for _, s := range specs {
		if _, err := cron.ParseStandard(s.spec); err != nil {
			return fmt.Errorf("%s is invalid: %w", s.key, err)
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
