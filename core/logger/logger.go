// Package logger is a thin, swappable wrapper over zap, so the rest of the
// tree can call logger.Infow(...) without every package importing zap
// directly.
package logger

import (
	"go.uber.org/zap"
)

// Logger is the logging surface every package in this repo depends on.
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Fatal(args ...interface{})
	Panic(args ...interface{})
	With(keysAndValues ...interface{}) Logger
}

type zapLogger struct {
	sugared *zap.SugaredLogger
}

// New builds a production Logger: JSON output, info level, caller+stack on
// error.
func New() Logger {
	z, err := zap.NewProduction()
	if err != nil {
		// Fall back to a no-op core rather than panic on logger construction;
		// nothing downstream can usefully recover from a broken logger anyway.
		z = zap.NewNop()
	}
	return &zapLogger{sugared: z.Sugar()}
}

// NewDevelopment builds a human-readable, colorized logger suitable for
// local runs and tests.
func NewDevelopment() Logger {
	z, err := zap.NewDevelopment()
	if err != nil {
		z = zap.NewNop()
	}
	return &zapLogger{sugared: z.Sugar()}
}

func (l *zapLogger) Debug(args ...interface{})                   { l.sugared.Debug(args...) }
func (l *zapLogger) Debugf(template string, args ...interface{}) { l.sugared.Debugf(template, args...) }
func (l *zapLogger) Debugw(msg string, kv ...interface{})        { l.sugared.Debugw(msg, kv...) }
func (l *zapLogger) Info(args ...interface{})                    { l.sugared.Info(args...) }
func (l *zapLogger) Infof(template string, args ...interface{})  { l.sugared.Infof(template, args...) }
func (l *zapLogger) Infow(msg string, kv ...interface{})         { l.sugared.Infow(msg, kv...) }
func (l *zapLogger) Warn(args ...interface{})                    { l.sugared.Warn(args...) }
func (l *zapLogger) Warnf(template string, args ...interface{})  { l.sugared.Warnf(template, args...) }
func (l *zapLogger) Warnw(msg string, kv ...interface{})         { l.sugared.Warnw(msg, kv...) }
func (l *zapLogger) Error(args ...interface{})                   { l.sugared.Error(args...) }
func (l *zapLogger) Errorf(template string, args ...interface{}) { l.sugared.Errorf(template, args...) }
func (l *zapLogger) Errorw(msg string, kv ...interface{})        { l.sugared.Errorw(msg, kv...) }
func (l *zapLogger) Fatal(args ...interface{})                   { l.sugared.Fatal(args...) }
func (l *zapLogger) Panic(args ...interface{})                   { l.sugared.Panic(args...) }
func (l *zapLogger) With(kv ...interface{}) Logger {
	return &zapLogger{sugared: l.sugared.With(kv...)}
}

// Default is the package-level logger every call site uses unless it was
// handed a specific Logger (e.g. via dependency injection in tests).
var Default Logger = New()

// SetLogger replaces the package default, e.g. to NewDevelopment() in tests.
func SetLogger(l Logger) { Default = l }

func Debug(args ...interface{})                   { Default.Debug(args...) }
func Debugf(template string, args ...interface{}) { Default.Debugf(template, args...) }
func Debugw(msg string, kv ...interface{})        { Default.Debugw(msg, kv...) }
func Info(args ...interface{})                    { Default.Info(args...) }
func Infof(template string, args ...interface{})  { Default.Infof(template, args...) }
func Infow(msg string, kv ...interface{})         { Default.Infow(msg, kv...) }
func Warn(args ...interface{})                    { Default.Warn(args...) }
func Warnf(template string, args ...interface{})  { Default.Warnf(template, args...) }
func Warnw(msg string, kv ...interface{})         { Default.Warnw(msg, kv...) }
func Error(args ...interface{})                   { Default.Error(args...) }
func Errorf(template string, args ...interface{}) { Default.Errorf(template, args...) }
func Errorw(msg string, kv ...interface{})        { Default.Errorw(msg, kv...) }
func Fatal(args ...interface{})                   { Default.Fatal(args...) }
func Panic(args ...interface{})                   { Default.Panic(args...) }
