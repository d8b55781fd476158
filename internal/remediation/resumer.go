package remediation

import (
	"fmt"

	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/bitlocker"
	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/logging"
	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/security"
)

// Resumer makes sure protection is active again after a protector rewrite
// left it off or suspended.
type Resumer struct {
	mgr      bitlocker.Manager
	log      *logging.Logger
	elevated func() bool
}

func NewResumer(mgr bitlocker.Manager, log *logging.Logger) *Resumer {
	return &Resumer{mgr: mgr, log: log, elevated: security.IsElevated}
}

// EnsureResumed re-enables key protectors when protection is not on. It is
// a lightweight resume, not an encryption pass. Errors here are soft: the
// compliance pipeline is expected to re-enable protection on a later cycle
// even if this step fails.
func (r *Resumer) EnsureResumed(volumeID string) error {
	if !r.elevated() {
		return ErrNotElevated
	}

	status, err := r.mgr.ProtectionStatus(volumeID)
	if err != nil {
		return fmt.Errorf("reading protection status of %s: %w", volumeID, err)
	}
	if status == bitlocker.ProtectionOn {
		return nil
	}

	if err := r.mgr.ResumeProtection(volumeID); err != nil {
		return fmt.Errorf("resuming protection on %s: %w", volumeID, err)
	}

	r.log.Info().Str("volume", volumeID).Msg("protection resumed")
	return nil
}
