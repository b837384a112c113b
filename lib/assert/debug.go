//go:build debug
// +build debug

package assert

const Enabled = true

func fail(msg string) {
	logFailure(msg)
	panic("assertion failed: " + msg)
}
