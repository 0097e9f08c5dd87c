package types

import (
	"log/slog"
	"time"
)

// Clock abstracts time so prediction timestamps and elapsed-time math can be
// pinned in tests.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system time in UTC.
type RealClock struct{}

// Now returns the current UTC time.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock is a Clock that always returns T.
type FixedClock struct {
	T time.Time
}

// Now returns the fixed time.
func (c FixedClock) Now() time.Time {
	return c.T
}

// Logger is the minimal structured logger used by worker code paths that
// wrap *slog.Logger behind an adapter.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// SlogLogger adapts *slog.Logger to Logger; slog's With returns the concrete
// type, so the adapter rewraps it.
type SlogLogger struct {
	L *slog.Logger
}

// NewSlogLogger wraps l, defaulting to slog.Default().
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{L: l}
}

func (a *SlogLogger) Info(msg string, args ...any)  { a.L.Info(msg, args...) }
func (a *SlogLogger) Error(msg string, args ...any) { a.L.Error(msg, args...) }
func (a *SlogLogger) Warn(msg string, args ...any)  { a.L.Warn(msg, args...) }
func (a *SlogLogger) With(args ...any) Logger       { return &SlogLogger{L: a.L.With(args...)} }
