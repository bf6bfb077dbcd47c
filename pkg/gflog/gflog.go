// Package gflog provides the process-wide structured logger.
//
// It wraps a zap.SugaredLogger singleton behind a small set of
// package-level helpers (Debugw, Infow, Warnw, Errorf, Fatalf) so call
// sites never touch *zap.Logger directly, matching the shape of the
// teacher's own pkg/logger package. Token secrets must never be passed to
// these helpers; token keys are safe to log.
package gflog

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var singleton atomic.Pointer[zap.SugaredLogger]

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	singleton.Store(l.Sugar())
}

// SetDevelopment swaps the singleton for a human-readable development
// logger. Intended to be called once at process startup based on
// configuration, not per-request.
func SetDevelopment() {
	l, err := zap.NewDevelopment()
	if err != nil {
		return
	}
	singleton.Store(l.Sugar())
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	_ = singleton.Load().Sync()
}

// Debugw logs at debug level with structured key/value pairs.
func Debugw(msg string, kv ...any) { singleton.Load().Debugw(msg, kv...) }

// Infow logs at info level with structured key/value pairs.
func Infow(msg string, kv ...any) { singleton.Load().Infow(msg, kv...) }

// Warnw logs at warn level with structured key/value pairs.
func Warnw(msg string, kv ...any) { singleton.Load().Warnw(msg, kv...) }

// Errorw logs at error level with structured key/value pairs.
func Errorw(msg string, kv ...any) { singleton.Load().Errorw(msg, kv...) }

// Debug logs a single message at debug level.
func Debug(msg string) { singleton.Load().Debug(msg) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { singleton.Load().Errorf(format, args...) }

// Fatalf logs a formatted message at fatal level and exits the process.
func Fatalf(format string, args ...any) { singleton.Load().Fatalf(format, args...) }
