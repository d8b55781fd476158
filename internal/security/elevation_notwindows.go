//go:build !windows

package security

// IsElevated always reports false off Windows; the tool manages a
// Windows-only encryption surface.
func IsElevated() bool {
	return false
}
