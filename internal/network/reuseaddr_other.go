//go:build !linux && !windows

package network

// Other platforms keep the default socket options.
func setReuseAddr(uintptr) error {
	return nil
}
