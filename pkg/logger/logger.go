// Package logger holds the process-wide zap logger.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const service = "job-ingest"

var (
	log   *zap.Logger
	level = zap.NewAtomicLevel()
)

// Init initializes the logger. Debug mode uses the console encoder; otherwise
// JSON with an ISO8601 timestamp. LOG_LEVEL overrides the level either way.
func Init(debug bool) {
	var config zap.Config

	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		level.SetLevel(zap.DebugLevel)
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		level.SetLevel(zap.InfoLevel)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		_ = SetLevel(v)
	}
	config.Level = level

	l, err := config.Build(zap.Fields(zap.String("service", service)))
	if err != nil {
		panic(err)
	}
	log = l
}

// Replace swaps the global logger, mainly for tests.
func Replace(l *zap.Logger) {
	log = l
}

// SetLevel changes the level at runtime ("debug", "info", "warn", "error").
func SetLevel(name string) error {
	return level.UnmarshalText([]byte(strings.ToLower(name)))
}

// Get returns the logger instance
func Get() *zap.Logger {
	if log == nil {
		Init(os.Getenv("DEBUG") == "true")
	}
	return log
}

// Named returns a child logger for one component
func Named(component string) *zap.Logger {
	return Get().Named(component)
}

// Sugar returns the sugared logger
func Sugar() *zap.SugaredLogger {
	return Get().Sugar()
}

func Info(msg string, fields ...zap.Field) {
	Get().Info(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	Get().Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Get().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Get().Error(msg, fields...)
}

// Fatal logs and exits with status 1
func Fatal(msg string, fields ...zap.Field) {
	Get().Fatal(msg, fields...)
}

// With returns a logger with additional fields
func With(fields ...zap.Field) *zap.Logger {
	return Get().With(fields...)
}

// Sync flushes any buffered log entries
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
