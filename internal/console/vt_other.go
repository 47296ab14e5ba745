//go:build !windows

package console

// EnableVirtualTerminal is a no-op; VT sequences are native on this
// platform.
func EnableVirtualTerminal() error {
	return nil
}
