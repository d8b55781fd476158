package remediation

import (
	"errors"
	"fmt"

	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/bitlocker"
	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/logging"
	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/security"
)

// ErrNotElevated is returned by any component entry point invoked without
// administrative rights. Each component checks independently; a single
// upstream check is not assumed.
var ErrNotElevated = errors.New("administrative rights are required")

// Inspector reads the key-protector set of a volume. Read-only.
type Inspector struct {
	mgr      bitlocker.Manager
	log      *logging.Logger
	elevated func() bool
}

func NewInspector(mgr bitlocker.Manager, log *logging.Logger) *Inspector {
	return &Inspector{mgr: mgr, log: log, elevated: security.IsElevated}
}

// Inspect returns the protector type tags attached to the volume.
// A nil slice with nil error means the volume carries no protectors (not
// under BitLocker management); that is not an error. A non-nil error means
// the platform query itself failed; callers treat it as recoverable and
// skip the volume.
func (i *Inspector) Inspect(volumeID string) ([]bitlocker.ProtectorType, error) {
	if !i.elevated() {
		return nil, ErrNotElevated
	}

	protectors, err := i.mgr.KeyProtectors(volumeID)
	if err != nil {
		return nil, fmt.Errorf("listing key protectors on %s: %w", volumeID, err)
	}
	if len(protectors) == 0 {
		return nil, nil
	}

	types := make([]bitlocker.ProtectorType, 0, len(protectors))
	for _, p := range protectors {
		types = append(types, p.Type)
	}

	i.log.Debug().Str("volume", volumeID).Interface("protectors", types).Msg("inspected key protectors")
	return types, nil
}
