//go:build !windows

package bitlocker

import "errors"

// ErrNotSupported is returned on platforms without BitLocker.
var ErrNotSupported = errors.New("bitlocker: volume encryption management is only available on Windows")

type unsupportedManager struct{}

// NewManager returns a Manager whose every operation fails with
// ErrNotSupported. BitLocker exists only on Windows; this keeps the CLI and
// the platform-independent remediation core buildable elsewhere.
func NewManager() Manager {
	return unsupportedManager{}
}

func (unsupportedManager) ListFixedVolumes() ([]Volume, error) { return nil, ErrNotSupported }

func (unsupportedManager) ProtectionStatus(string) (ProtectionStatus, error) {
	return ProtectionUnknown, ErrNotSupported
}

func (unsupportedManager) KeyProtectors(string) ([]KeyProtector, error) {
	return nil, ErrNotSupported
}

func (unsupportedManager) RemoveKeyProtector(string, string) error { return ErrNotSupported }

func (unsupportedManager) AddProtector(string, ProtectorType, string) (string, error) {
	return "", ErrNotSupported
}

func (unsupportedManager) ResumeProtection(string) error { return ErrNotSupported }
