// Package config provides configuration management for the risk gate.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	apperrors "alpaca-gate/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Trading TradingConfig `mapstructure:"trading"`
	Risk    RiskConfig    `mapstructure:"risk"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Store   StoreConfig   `mapstructure:"store"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Audit   AuditConfig   `mapstructure:"audit"`
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	Mode           string   `mapstructure:"mode"` // "live", "paper"
	InitialCash    float64  `mapstructure:"initial_cash"`
	Symbols        []string `mapstructure:"symbols"`
	SubmitTimeoutS int      `mapstructure:"submit_timeout_seconds"`
}

// RiskConfig is an immutable snapshot of risk limits. A live update
// replaces the whole snapshot atomically; in-flight evaluations always
// observe a single consistent snapshot.
type RiskConfig struct {
	MaxPositionFraction     float64 `mapstructure:"max_position_fraction"`
	MaxConcurrentPositions  int     `mapstructure:"max_concurrent_positions"`
	MaxDailyLossFraction    float64 `mapstructure:"max_daily_loss_fraction"`
	MaxLossPerTradeFraction float64 `mapstructure:"max_loss_per_trade_fraction"`
	TrailingStopPercent     float64 `mapstructure:"trailing_stop_percent"`
	MaxOrdersPerDay         int     `mapstructure:"max_orders_per_day"`
	MinSecondsBetweenOrders int     `mapstructure:"min_seconds_between_orders"`
}

// FeedConfig holds price feed configuration.
type FeedConfig struct {
	URL string `mapstructure:"url"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// MetricsConfig holds metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// AuditConfig holds audit log configuration.
type AuditConfig struct {
	LogDir     string `mapstructure:"log_dir"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/alpaca-gate"
	}
	return filepath.Join(home, ".config", "alpaca-gate")
}

// DefaultRiskConfig returns conservative default risk limits.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxPositionFraction:     0.10,
		MaxConcurrentPositions:  5,
		MaxDailyLossFraction:    0.03,
		MaxLossPerTradeFraction: 0.01,
		TrailingStopPercent:     3.0,
		MaxOrdersPerDay:         20,
		MinSecondsBetweenOrders: 60,
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := createTemplateConfig(configDir); err != nil {
				return nil, fmt.Errorf("creating config template: %w", err)
			}
		} else {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.initial_cash", 100000.0)
	v.SetDefault("trading.submit_timeout_seconds", 10)

	defaults := DefaultRiskConfig()
	v.SetDefault("risk.max_position_fraction", defaults.MaxPositionFraction)
	v.SetDefault("risk.max_concurrent_positions", defaults.MaxConcurrentPositions)
	v.SetDefault("risk.max_daily_loss_fraction", defaults.MaxDailyLossFraction)
	v.SetDefault("risk.max_loss_per_trade_fraction", defaults.MaxLossPerTradeFraction)
	v.SetDefault("risk.trailing_stop_percent", defaults.TrailingStopPercent)
	v.SetDefault("risk.max_orders_per_day", defaults.MaxOrdersPerDay)
	v.SetDefault("risk.min_seconds_between_orders", defaults.MinSecondsBetweenOrders)

	v.SetDefault("store.db_path", filepath.Join(DefaultConfigDir(), "gate.db"))
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("audit.log_dir", filepath.Join(DefaultConfigDir(), "audit"))
	v.SetDefault("audit.max_size", 50)
	v.SetDefault("audit.max_backups", 30)
	v.SetDefault("audit.max_age", 365)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GATE_TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("GATE_FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}
	if v := os.Getenv("GATE_DB_PATH"); v != "" {
		cfg.Store.DBPath = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Trading.Mode != "" && c.Trading.Mode != "live" && c.Trading.Mode != "paper" {
		return apperrors.NewValidationError("trading.mode", c.Trading.Mode, "must be 'live' or 'paper'")
	}
	if c.Trading.InitialCash < 0 {
		return apperrors.NewValidationError("trading.initial_cash", c.Trading.InitialCash, "must be non-negative")
	}
	return c.Risk.Validate()
}

// Validate validates the risk limits. An invalid snapshot is rejected
// with no effect on the live configuration.
func (r RiskConfig) Validate() error {
	if r.MaxPositionFraction <= 0 || r.MaxPositionFraction > 1 {
		return apperrors.NewValidationError("risk.max_position_fraction", r.MaxPositionFraction, "must be in (0, 1]")
	}
	if r.MaxConcurrentPositions <= 0 {
		return apperrors.NewValidationError("risk.max_concurrent_positions", r.MaxConcurrentPositions, "must be positive")
	}
	if r.MaxDailyLossFraction <= 0 || r.MaxDailyLossFraction > 1 {
		return apperrors.NewValidationError("risk.max_daily_loss_fraction", r.MaxDailyLossFraction, "must be in (0, 1]")
	}
	if r.MaxLossPerTradeFraction <= 0 || r.MaxLossPerTradeFraction > 1 {
		return apperrors.NewValidationError("risk.max_loss_per_trade_fraction", r.MaxLossPerTradeFraction, "must be in (0, 1]")
	}
	if r.TrailingStopPercent <= 0 || r.TrailingStopPercent >= 100 {
		return apperrors.NewValidationError("risk.trailing_stop_percent", r.TrailingStopPercent, "must be in (0, 100)")
	}
	if r.MaxOrdersPerDay <= 0 {
		return apperrors.NewValidationError("risk.max_orders_per_day", r.MaxOrdersPerDay, "must be positive")
	}
	if r.MinSecondsBetweenOrders < 0 {
		return apperrors.NewValidationError("risk.min_seconds_between_orders", r.MinSecondsBetweenOrders, "must be non-negative")
	}
	return nil
}

// TrailingDistance returns the trailing stop distance as a fraction.
func (r RiskConfig) TrailingDistance() float64 {
	return r.TrailingStopPercent / 100
}

// IsPaperMode returns true if paper trading mode is enabled.
func (c *Config) IsPaperMode() bool {
	return c.Trading.Mode == "paper"
}
