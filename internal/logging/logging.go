// Package logging builds the zap loggers used across the service.
package logging

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger for the given level ("debug", "info", ...) and
// format ("json" or "console").
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}

	var cfg zap.Config
	switch format {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, errors.Errorf("invalid log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.TimeKey = "time"

	logger, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "building logger")
	}
	return logger, nil
}

// Leveled adapts a zap logger to the key/value logger interface used by
// go-retryablehttp.
type Leveled struct {
	L *zap.SugaredLogger
}

func (l Leveled) Error(msg string, keysAndValues ...interface{}) { l.L.Errorw(msg, keysAndValues...) }
func (l Leveled) Info(msg string, keysAndValues ...interface{})  { l.L.Infow(msg, keysAndValues...) }
func (l Leveled) Debug(msg string, keysAndValues ...interface{}) { l.L.Debugw(msg, keysAndValues...) }
func (l Leveled) Warn(msg string, keysAndValues ...interface{})  { l.L.Warnw(msg, keysAndValues...) }
