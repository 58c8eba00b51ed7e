package monitoring

import (
	"log"
	"os"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Debugf carries high-volume per-event reconstruction traces (round counts,
// cluster sizes, inlier fractions). It is a no-op unless TRACKLET_DEBUG is set
// at process start or SetDebugLogger installs a sink.
var Debugf func(format string, v ...interface{}) = discard

func discard(string, ...interface{}) {}

func init() {
	if os.Getenv("TRACKLET_DEBUG") != "" {
		Debugf = log.Printf
	}
}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebugLogger replaces the trace logger. Passing nil disables tracing.
func SetDebugLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Debugf = discard
		return
	}
	Debugf = f
}
