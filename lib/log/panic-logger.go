package log

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

// Cleanup is run before the crash report is written
var Cleanup = func() {}

// PanicHandler writes a stack trace to /tmp/mlsync-crash-*.log and passes
// the panic on. It must be deferred at the top of every goroutine.
func PanicHandler() {
	r := recover()
	if r == nil {
		return
	}

	Cleanup()

	filename := time.Now().Format("/tmp/mlsync-crash-20060102-150405.log")
	panicLog, err := os.OpenFile(filename, os.O_SYNC|os.O_APPEND|os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		// we tried, not possible. bye
		panic(r)
	}
	defer panicLog.Close()

	outputs := io.MultiWriter(panicLog, os.Stderr)

	// if any error happens here, we do not care.
	fmt.Fprintln(panicLog, strings.Repeat("#", 80))
	fmt.Fprintf(panicLog, "%sPANIC CAUGHT!\n", strings.Repeat(" ", 34))
	fmt.Fprintf(panicLog, "%s%s\n", strings.Repeat(" ", 24),
		time.Now().Format("2006-01-02T15:04:05.000000-0700"))
	fmt.Fprintln(panicLog, strings.Repeat("#", 80))
	fmt.Fprintf(outputs, "mlsync crashed: %v\n", r)
	panicLog.Write(debug.Stack()) //nolint:errcheck // see above
	fmt.Fprintf(os.Stderr, "\nThe stack trace was written to: %s\n", filename)
	Errorf("panic: %v", r)
	panic(r)
}

// Recover converts a panic of the calling goroutine into an error passed to
// fn. Used where a crash must only abort the current unit of work.
func Recover(fn func(error)) {
	r := recover()
	if r == nil {
		return
	}
	Errorf("recovered: %v\n%s", r, debug.Stack())
	fn(fmt.Errorf("internal error: %v", r))
}
