// Package monitoring holds the process-wide diagnostic logger used by the
// classification, scenario and transport packages.
package monitoring

import "log"

// Logf receives diagnostics. It is log.Printf unless SetLogger replaced it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger swaps the logger; nil silences diagnostics entirely.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	Logf = f
}
