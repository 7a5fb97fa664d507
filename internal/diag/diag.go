// Package diag holds the process-wide logging hook the library packages
// write through.
package diag

import "log"

// Logf is the logging function used by the library packages. It defaults to
// log.Printf.
var Logf func(format string, v ...any) = log.Printf

// SetLogger replaces the logging function. Passing nil silences logging.
func SetLogger(fn func(format string, v ...any)) {
	if fn == nil {
		Logf = func(format string, v ...any) {}
		return
	}
	Logf = fn
}
