package monitoring

import "log"

// Logf is the package-level diagnostic logger for the fusion service. It
// defaults to log.Printf; SetLogger can redirect or mute it (tests mute it to
// keep output clean, the simulator redirects it into its report).
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
