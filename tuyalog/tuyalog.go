// Package tuyalog is a thin logging facade mirroring clog's
// LogProvider/Clog split: a small interface of levels plus a concrete type
// that gates calls through it. Where clog backs onto stdlib log, Logger
// backs onto logr.Logger, so a zap-backed logr.Logger can be installed in
// the CLI while tests pass logr.Discard() with no provider wiring at all.
package tuyalog

import "github.com/go-logr/logr"

// Provider is the set of levels this package's callers use. It exists
// separately from Logger so an alternate backend (a metrics-emitting
// logger, say) can be swapped in without touching session/client/discovery.
type Provider interface {
	Error(err error, msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Logger adapts a logr.Logger to Provider. V(1) is treated as this
// package's Debug level, matching the V(1) calls already scattered through
// session, client, and discovery.
type Logger struct {
	base logr.Logger
}

var _ Provider = Logger{}

// New wraps base for use as a Provider.
func New(base logr.Logger) Logger {
	return Logger{base: base}
}

// Error logs an error-level event.
func (l Logger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.base.Error(err, msg, keysAndValues...)
}

// Info logs an info-level event.
func (l Logger) Info(msg string, keysAndValues ...interface{}) {
	l.base.Info(msg, keysAndValues...)
}

// Debug logs a debug-level event, at verbosity 1.
func (l Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.base.V(1).Info(msg, keysAndValues...)
}

// Base returns the underlying logr.Logger, for callers (session, client,
// discovery) that already take a logr.Logger directly rather than a
// Provider.
func (l Logger) Base() logr.Logger {
	return l.base
}
