package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger so the rest of the code does not depend on zap directly.
type Logger struct {
	logger *zap.Logger
}

// Field is a structured key/value pair attached to a log line.
type Field = zap.Field

// Re-exported field constructors used across the repo.
var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Duration = zap.Duration
	Err      = zap.Error
)

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a console logger writing to stderr, so stdout stays reserved for rendered tables.
func New(level string) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{logger: z}, nil
}

// FromZap wraps an existing zap logger (tests use zaptest/zap.NewNop).
func FromZap(z *zap.Logger) *Logger {
	return &Logger{logger: z}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{logger: zap.NewNop()}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.logger.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field) { l.logger.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field) { l.logger.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.logger.Error(msg, fields...) }

// With returns a child logger carrying the given fields on every line.
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{logger: l.logger.With(fields...)}
}

// Zap exposes the underlying logger.
func (l *Logger) Zap() *zap.Logger {
	return l.logger
}

func (l *Logger) Sync() error {
	return l.logger.Sync()
}
