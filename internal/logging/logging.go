// Package logging provides the thin stdlib-log wrapper every component in
// this module logs through.
package logging

import (
	"log"
	"os"
)

// Logger prefixes every line with a role and component tag, matching the
// plain log.Logger usage throughout the codebase this module is built on.
type Logger struct {
	*log.Logger
}

// New returns a Logger writing to stderr with a "[role][component] " prefix.
func New(role, component string) *Logger {
	prefix := "[" + role + "][" + component + "] "
	return &Logger{Logger: log.New(os.Stderr, prefix, log.LstdFlags|log.Lmicroseconds)}
}
