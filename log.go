package govent

// logging functions

import (
	"github.com/intuitivelabs/slog"
)

// Log is the generic log used by the dispatcher, timeout engine and
// registration table for diagnostics. Replace it (or reconfigure its
// level) before calling NewDispatcher if the default is too quiet.
var Log slog.Log = slog.New(slog.LERR, slog.LbackTraceL|slog.LlocInfoL,
	slog.LStdErr)

// BuildTags records which logging build variant (debug/nodebug) was
// compiled in, appended to by log_debug.go / log_nodebug.go's init().
var BuildTags []string

// WARN is a shorthand for logging a warning message.
func WARN(f string, a ...interface{}) {
	Log.LLog(slog.LWARN, 1, "WARNING: govent: ", f, a...)
}

// ERR is a shorthand for logging an error message.
func ERR(f string, a ...interface{}) {
	Log.LLog(slog.LERR, 1, "ERROR: govent: ", f, a...)
}

// BUG is a shorthand for logging a condition that should never happen
// (a broken table invariant, an inconsistent timeout list).
func BUG(f string, a ...interface{}) {
	Log.LLog(slog.LBUG, 1, "BUG: govent: ", f, a...)
}
