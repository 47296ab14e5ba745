//go:build windows

package privilege

import "golang.org/x/sys/windows"

// IsElevated returns true if the process token is elevated, i.e. the program
// was started with "Run as administrator" or UAC is disabled for the user.
func IsElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}
