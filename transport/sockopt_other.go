//go:build !unix && !windows

package transport

// setBroadcast is a no-op where the platform offers no socket option API.
func setBroadcast(uintptr) error {
	return nil
}
