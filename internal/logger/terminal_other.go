//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package logger

// Color output is disabled where termios is unavailable.
func isTerminal(uintptr) bool {
	return false
}
