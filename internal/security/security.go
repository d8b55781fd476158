// Package security holds the run preconditions: process elevation and the
// policy for which volumes may be touched.
package security

import (
	"fmt"
	"os"
	"strings"

	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/bitlocker"
	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/config"
)

// Checks verifies the configured run preconditions. Called at the top of
// every command before any platform access.
func Checks(cfg *config.Config) error {
	if cfg == nil {
		cfg = config.Default()
	}

	if cfg.Security.RequireAdmin && !IsElevated() {
		return fmt.Errorf("administrative rights are required")
	}

	if cfg.Security.BlockServers && IsServerOS() {
		return fmt.Errorf("running on server operating systems is not allowed")
	}

	return nil
}

// IsServerOS reports whether the host looks like a Windows Server edition.
func IsServerOS() bool {
	serverIndicators := []string{
		"Windows Server",
		"Server",
		"DC",
		"Domain Controller",
	}

	for _, indicator := range serverIndicators {
		if strings.Contains(os.Getenv("OS"), indicator) {
			return true
		}
	}

	return false
}

// ShouldSkipVolume applies the configured drive exclusion list.
func ShouldSkipVolume(cfg *config.Config, vol bitlocker.Volume) bool {
	if cfg == nil {
		return false
	}
	for _, excluded := range cfg.Security.ExcludedDrives {
		if strings.EqualFold(vol.Letter, excluded) {
			return true
		}
	}
	return false
}
