// Package logging provides structured logging functionality.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "alpaca-gate", "logs", "gate.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		writers = append(writers, consoleWriter)
	}

	if cfg.File {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			fileWriter := &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			}
			writers = append(writers, fileWriter)
		}
	}

	var writer io.Writer
	if len(writers) == 0 {
		writer = os.Stdout
	} else if len(writers) == 1 {
		writer = writers[0]
	} else {
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	return zerolog.New(writer).
		With().
		Timestamp().
		Logger()
}

// SetDebugLevel raises the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithSymbol adds a symbol to the logger context.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// WithOrderID adds an order ID to the logger context.
func WithOrderID(logger zerolog.Logger, orderID string) zerolog.Logger {
	return logger.With().Str("order_id", orderID).Logger()
}

// LogGateDecision logs a gate accept or reject decision.
func LogGateDecision(logger zerolog.Logger, symbol, kind string, accepted bool, reason string) {
	event := logger.Info().
		Str("event", "gate_decision").
		Str("symbol", symbol).
		Str("kind", kind).
		Bool("accepted", accepted)
	if reason != "" {
		event = event.Str("reason", reason)
	}
	event.Msg("Gate decision")
}

// LogFill logs an order fill.
func LogFill(logger zerolog.Logger, orderID, symbol, side string, qty, price float64) {
	logger.Info().
		Str("event", "fill").
		Str("order_id", orderID).
		Str("symbol", symbol).
		Str("side", side).
		Float64("quantity", qty).
		Float64("price", price).
		Msg("Order filled")
}

// LogBreaker logs a circuit breaker state change.
func LogBreaker(logger zerolog.Logger, state string, dailyPnL, threshold float64) {
	logger.Warn().
		Str("event", "breaker").
		Str("state", state).
		Float64("daily_pnl", dailyPnL).
		Float64("threshold", threshold).
		Msg("Circuit breaker state change")
}

// LogStopHit logs a trailing stop trigger.
func LogStopHit(logger zerolog.Logger, symbol string, price, stop float64) {
	logger.Info().
		Str("event", "stop_hit").
		Str("symbol", symbol).
		Float64("price", price).
		Float64("stop", stop).
		Msg("Trailing stop hit")
}
