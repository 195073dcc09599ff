// Package logging builds the zap loggers used across tuplebatch. Loggers
// emit JSON and mask the values of sensitive fields.
package logging

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel converts DEBUG, INFO, WARN or ERROR (any case) to a zap level.
// Unknown strings map to INFO.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "INFO":
		return zapcore.InfoLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// EncoderConfig returns the JSON encoder settings shared by every logger.
func EncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.MessageKey = "message"
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	return cfg
}

// New creates a JSON logger writing to output at the given level.
// A nil output writes to stdout.
func New(level string, output io.Writer, options ...zap.Option) *zap.Logger {
	if output == nil {
		output = os.Stdout
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(EncoderConfig()),
		zapcore.Lock(zapcore.AddSync(output)),
		zap.NewAtomicLevelAt(ParseLevel(level)),
	)
	return zap.New(Redact(core), options...)
}

// Adjust returns logger, or a no-op logger when logger is nil.
func Adjust(logger *zap.Logger) *zap.Logger {
	if logger != nil {
		return logger
	}
	return zap.NewNop()
}
