// Package assert checks programmer error preconditions. Builds with the
// debug tag panic on a failed check, other builds log it and let the caller
// return without doing anything.
package assert

import (
	"fmt"

	"git.sr.ht/~rjarry/mlsync/lib/log"
)

// That returns cond. When cond is false the failure is reported according to
// the build mode.
func That(cond bool, format string, args ...any) bool {
	if !cond {
		fail(fmt.Sprintf(format, args...))
	}
	return cond
}

func logFailure(msg string) {
	log.Errorf("assertion failed: %s", msg)
}
