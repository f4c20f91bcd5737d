// Package process answers whether a registry owner's process still exists.
// The answer is diagnostic only; window liveness is decided by probing the
// endpoint.
package process

// Alive reports whether a process with pid is running.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return isProcessRunning(pid)
}
