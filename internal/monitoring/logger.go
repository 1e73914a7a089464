// Package monitoring holds the process-wide diagnostic logger used by the
// scan engine. Library packages log through Logf; binaries decide where the
// lines end up.
package monitoring

import (
	"log"

	"go.uber.org/zap"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// UseZap routes Logf into a sugared zap logger at info level.
func UseZap(l *zap.SugaredLogger) {
	if l == nil {
		SetLogger(nil)
		return
	}
	SetLogger(l.Infof)
}

// Scoped returns a logger that prefixes every line with "[scope] ". The
// current Logf is looked up on each call so later SetLogger calls apply.
func Scoped(scope string) func(format string, v ...interface{}) {
	prefix := "[" + scope + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
