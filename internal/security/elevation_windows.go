//go:build windows

package security

import "golang.org/x/sys/windows"

// IsElevated reports whether the current process token carries
// administrative rights.
func IsElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}
