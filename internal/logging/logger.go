package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the global logger instance
	Logger *SafeLogger
)

// SafeLogger wraps a zap logger and tolerates use before initialization,
// which keeps tests that never call InitLogger from panicking.
type SafeLogger struct {
	l *zap.Logger
}

// NewSafeLogger wraps an existing zap logger.
func NewSafeLogger(l *zap.Logger) *SafeLogger {
	return &SafeLogger{l: l}
}

func (s *SafeLogger) logger() *zap.Logger {
	if s == nil || s.l == nil {
		return zap.NewNop()
	}
	return s.l
}

// Debug logs a message at debug level.
func (s *SafeLogger) Debug(msg string, fields ...zap.Field) {
	s.logger().Debug(msg, fields...)
}

// Info logs a message at info level.
func (s *SafeLogger) Info(msg string, fields ...zap.Field) {
	s.logger().Info(msg, fields...)
}

// Warn logs a message at warn level.
func (s *SafeLogger) Warn(msg string, fields ...zap.Field) {
	s.logger().Warn(msg, fields...)
}

// Error logs a message at error level.
func (s *SafeLogger) Error(msg string, fields ...zap.Field) {
	s.logger().Error(msg, fields...)
}

// Fatal logs a message at fatal level and exits.
func (s *SafeLogger) Fatal(msg string, fields ...zap.Field) {
	s.logger().Fatal(msg, fields...)
}

// With returns a child logger with the given fields attached.
func (s *SafeLogger) With(fields ...zap.Field) *SafeLogger {
	return &SafeLogger{l: s.logger().With(fields...)}
}

// InitLogger initializes the global logger
func InitLogger() error {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	// Set log level from environment
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(logLevel)); err == nil {
			config.Level = zap.NewAtomicLevelAt(level)
		}
	}

	logger, err := config.Build(
		zap.Fields(
			zap.String("service", "app-library"),
			zap.String("version", "v1"),
		),
	)
	if err != nil {
		return err
	}

	Logger = NewSafeLogger(logger)
	return nil
}
