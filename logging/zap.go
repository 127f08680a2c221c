// Package logging adapts go.uber.org/zap to the traffic.Logger interface.
package logging

import (
	"go.uber.org/zap"

	"github.com/jimc1682000/akamai-reports/traffic"
)

// ZapLogger forwards traffic.Logger calls to a zap sugared logger, keeping
// the key/value pairs structured.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ traffic.Logger = (*ZapLogger)(nil)

// NewZapLogger wraps an existing zap logger. The caller keeps ownership;
// call Sync before shutdown.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: l.Sugar()}
}

// NewProduction builds an adapter over zap's production configuration
// (JSON output, info level).
func NewProduction() (*ZapLogger, error) {
	l, err := zap.NewProduction(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return NewZapLogger(l), nil
}

// NewDevelopment builds an adapter over zap's development configuration
// (console output, debug level).
func NewDevelopment() (*ZapLogger, error) {
	l, err := zap.NewDevelopment(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return NewZapLogger(l), nil
}

func (z *ZapLogger) Debug(msg string, keysAndValues ...interface{}) {
	z.sugar.Debugw(msg, keysAndValues...)
}

func (z *ZapLogger) Info(msg string, keysAndValues ...interface{}) {
	z.sugar.Infow(msg, keysAndValues...)
}

func (z *ZapLogger) Warn(msg string, keysAndValues ...interface{}) {
	z.sugar.Warnw(msg, keysAndValues...)
}

func (z *ZapLogger) Error(msg string, keysAndValues ...interface{}) {
	z.sugar.Errorw(msg, keysAndValues...)
}

// Sync flushes buffered log entries.
func (z *ZapLogger) Sync() error {
	return z.sugar.Sync()
}
