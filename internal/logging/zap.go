package logging

import (
	"go.uber.org/zap"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// ZapLogger implements types.Logger on top of a sugared zap logger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ types.Logger = (*ZapLogger)(nil)

// NewZap wraps a sugared zap logger. A nil logger falls back to zap.NewNop().
func NewZap(sugar *zap.SugaredLogger) *ZapLogger {
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}

	return &ZapLogger{sugar: sugar}
}

// NewZapProduction builds a JSON production logger, at debug level when debug is true.
func NewZapProduction(debug bool) (*ZapLogger, error) {
	config := zap.NewProductionConfig()
	if debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return NewZap(logger.Sugar()), nil
}

func (l *ZapLogger) Debug(msg string, keysAndValues ...any) { l.sugar.Debugw(msg, keysAndValues...) }
func (l *ZapLogger) Info(msg string, keysAndValues ...any)  { l.sugar.Infow(msg, keysAndValues...) }
func (l *ZapLogger) Warn(msg string, keysAndValues ...any)  { l.sugar.Warnw(msg, keysAndValues...) }
func (l *ZapLogger) Error(msg string, keysAndValues ...any) { l.sugar.Errorw(msg, keysAndValues...) }
func (l *ZapLogger) Fatal(msg string, keysAndValues ...any) { l.sugar.Fatalw(msg, keysAndValues...) }

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}
