//+build default debug !nodebug

package govent

// logging functions, debug version

import (
	"github.com/intuitivelabs/slog"
)

func init() {
	BuildTags = append(BuildTags, "debug")
}

// DBGon reports whether debug logging is compiled in and enabled.
func DBGon() bool {
	return Log.DBGon()
}

// DBG is a shorthand for logging a debug message.
func DBG(f string, a ...interface{}) {
	Log.LLog(slog.LDBG, 1, "DBG: govent: ", f, a...)
}
