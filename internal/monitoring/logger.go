// Package monitoring holds the diagnostic logger shared by the analysis
// packages. Library code logs through Logf; the CLI decides where it goes.
package monitoring

import (
	"context"
	"fmt"
	"log"
	"log/slog"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SlogLogf adapts a structured logger to the Logf signature. Each formatted
// line becomes one record at the given level, tagged with component.
func SlogLogf(l *slog.Logger, level slog.Level, component string) func(string, ...interface{}) {
	if l == nil {
		l = slog.Default()
	}
	if component != "" {
		l = l.With("component", component)
	}
	return func(format string, v ...interface{}) {
		l.Log(context.Background(), level, fmt.Sprintf(format, v...))
	}
}
