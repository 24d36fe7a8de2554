package hook

import (
	"log"
	"os"
)

// debug is the package-level diagnostic logger, silent unless DEBUG is
// set — matching the teacher's own os.Stderr/fmt.Fprintf convention
// rather than reaching for a structured-logging dependency the corpus
// never uses (see SPEC_FULL.md §1). It must never write to stdout: that
// channel is reserved for the hook's rendered JSON response.
var debug = log.New(os.Stderr, "edda-hook: ", log.LstdFlags)

func debugEnabled() bool {
	return os.Getenv("DEBUG") != ""
}

// Debugf logs a formatted diagnostic line to stderr only when DEBUG is
// set in the environment.
func Debugf(format string, args ...any) {
	if !debugEnabled() {
		return
	}
	debug.Printf(format, args...)
}
