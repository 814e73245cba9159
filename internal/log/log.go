package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLevel is used when no level is given.
const DefaultLevel = zapcore.WarnLevel

// NewAtLevel builds a console logger writing to stderr at the given level.
// An empty level falls back to DefaultLevel.
func NewAtLevel(level string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	return cfg.Build()
}

// ParseLevel maps a level name such as "debug" or "INFO" to a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		return DefaultLevel, nil
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return DefaultLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return lvl, nil
}
