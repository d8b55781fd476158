package remediation

import (
	"fmt"

	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/bitlocker"
	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/logging"
	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/security"
)

// Reconciler rewrites a volume's key-protector set to a single protector of
// the desired type.
type Reconciler struct {
	mgr      bitlocker.Manager
	log      *logging.Logger
	elevated func() bool
	// safetyNet installs an auto-generated recovery password before the
	// destructive removal step and drops it again once the target
	// protector is in place.
	safetyNet bool
}

func NewReconciler(mgr bitlocker.Manager, log *logging.Logger, safetyNet bool) *Reconciler {
	return &Reconciler{mgr: mgr, log: log, elevated: security.IsElevated, safetyNet: safetyNet}
}

// Reconcile removes every protector currently on the volume and installs
// exactly one protector of the target type.
//
// The remove-then-add sequence is not transactional: Win32_EncryptableVolume
// has no atomic replace, so a failure after the first removal can leave the
// volume with fewer protectors than it started with until the next
// remediation cycle. With the safety net enabled, a generated recovery
// password covers that window.
func (r *Reconciler) Reconcile(volumeID string, target bitlocker.ProtectorType, secret string) error {
	if !r.elevated() {
		return ErrNotElevated
	}

	switch target {
	case bitlocker.ProtectorTpm, bitlocker.ProtectorTpmAndPin, bitlocker.ProtectorRecoveryPassword:
	default:
		return fmt.Errorf("unsupported target protector type %q", target)
	}
	// Argument validation happens before any mutation.
	if target.RequiresSecret() && secret == "" {
		return fmt.Errorf("target protector %s requires a non-empty secret", target)
	}

	existing, err := r.mgr.KeyProtectors(volumeID)
	if err != nil {
		return fmt.Errorf("listing key protectors on %s: %w", volumeID, err)
	}

	var safetyNetID string
	if r.safetyNet {
		id, err := r.mgr.AddProtector(volumeID, bitlocker.ProtectorRecoveryPassword, "")
		if err != nil {
			return fmt.Errorf("adding safety-net recovery password on %s: %w", volumeID, err)
		}
		safetyNetID = id
		r.log.Debug().Str("volume", volumeID).Str("protector_id", id).Msg("installed safety-net recovery password")
	}

	for _, p := range existing {
		if err := r.mgr.RemoveKeyProtector(volumeID, p.ID); err != nil {
			return fmt.Errorf("removing %s protector %s from %s: %w", p.Type, p.ID, volumeID, err)
		}
		r.log.Debug().Str("volume", volumeID).Str("type", string(p.Type)).Str("protector_id", p.ID).Msg("removed key protector")
	}

	if _, err := r.mgr.AddProtector(volumeID, target, secret); err != nil {
		return fmt.Errorf("adding %s protector on %s: %w", target, volumeID, err)
	}

	if safetyNetID != "" {
		// Best effort: the target protector is already installed, so a
		// leftover safety net is a soft anomaly, not a failure.
		if err := r.mgr.RemoveKeyProtector(volumeID, safetyNetID); err != nil {
			r.log.Warn().Str("volume", volumeID).Str("protector_id", safetyNetID).Err(err).
				Msg("could not remove safety-net recovery password")
		}
	}

	r.log.Info().Str("volume", volumeID).Str("target", string(target)).Msg("key protector set reconciled")
	return nil
}
