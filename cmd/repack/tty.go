package main

import (
	"log"
	"os"

	"github.com/mattn/go-isatty"
)

// isTerminal reports whether f is attached to an interactive terminal,
// grounded on unikraft-kraftkit/utils/terminal.go's IsTerminal helper.
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd())
}

// autopackLogger builds the *log.Logger passed as autopack.Config.Logger:
// plain messages for an interactive terminal, timestamped ones when stderr
// is redirected to a file or pipe so output can be correlated after the
// fact (e.g. CI logs).
func autopackLogger() *log.Logger {
	if isTerminal(os.Stderr) {
		return log.New(os.Stderr, "", 0)
	}
	return log.New(os.Stderr, "", log.LstdFlags)
}
