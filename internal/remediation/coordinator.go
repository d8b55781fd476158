package remediation

import (
	"fmt"
	"time"

	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/bitlocker"
	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/config"
	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/logging"
	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/security"
)

// Coordinator drives the scan: it enumerates local fixed volumes, applies
// inspect/reconcile/resume per volume, and folds every outcome into one
// RunResult.
type Coordinator struct {
	mgr        bitlocker.Manager
	cfg        *config.Config
	log        *logging.Logger
	inspector  *Inspector
	reconciler *Reconciler
	resumer    *Resumer
	elevated   func() bool
	dryRun     bool
}

func NewCoordinator(mgr bitlocker.Manager, cfg *config.Config, log *logging.Logger) *Coordinator {
	return &Coordinator{
		mgr:        mgr,
		cfg:        cfg,
		log:        log,
		inspector:  NewInspector(mgr, log),
		reconciler: NewReconciler(mgr, log, cfg.Remediation.AddSafetyNet),
		resumer:    NewResumer(mgr, log),
		elevated:   security.IsElevated,
	}
}

// SetDryRun makes remediation report what it would change without mutating
// anything.
func (c *Coordinator) SetDryRun(enabled bool) {
	c.dryRun = enabled
}

// Run executes one detection or remediation pass and returns the aggregate
// result. It never returns an error: every failure is folded into the
// result's code and clauses.
func (c *Coordinator) Run(mode Mode) *RunResult {
	res := &RunResult{Mode: mode, Started: time.Now()}
	defer func() { res.Finished = time.Now() }()

	if c.cfg.Security.RequireAdmin && !c.elevated() {
		res.Append("administrative rights are required")
		res.Merge(StatusFail)
		return res
	}

	volumes, err := c.mgr.ListFixedVolumes()
	if err != nil {
		c.log.Error().Err(err).Msg("volume enumeration failed")
		res.Append("error enumerating volumes")
		res.Merge(StatusFail)
		return res
	}

	target := bitlocker.ProtectorType(c.cfg.Remediation.TargetProtector)
	secret := c.secretFor(target)

scan:
	for _, vol := range volumes {
		if vol.Letter == "" || vol.DriveType != bitlocker.DriveFixed {
			continue
		}
		if security.ShouldSkipVolume(c.cfg, vol) {
			c.log.Debug().Str("volume", vol.Letter).Msg("volume excluded by policy")
			continue
		}

		status, err := c.mgr.ProtectionStatus(vol.Letter)
		if err != nil {
			c.log.Warn().Str("volume", vol.Letter).Err(err).Msg("protection status query failed")
			res.Append(fmt.Sprintf("error inspecting volume %s", vol.Letter))
			res.Merge(StatusWarning)
			res.Volumes = append(res.Volumes, VolumeOutcome{Letter: vol.Letter, Outcome: "error", Error: err.Error()})
			continue
		}
		if status != bitlocker.ProtectionOn {
			// Key protectors are never listed for volumes whose
			// protection is not on.
			c.log.Debug().Str("volume", vol.Letter).Stringer("status", status).Msg("protection not on, volume out of scope")
			continue
		}

		types, err := c.inspector.Inspect(vol.Letter)
		if err != nil {
			c.log.Warn().Str("volume", vol.Letter).Err(err).Msg("key protector inspection failed")
			res.Append(fmt.Sprintf("error inspecting volume %s", vol.Letter))
			res.Merge(StatusWarning)
			res.Volumes = append(res.Volumes, VolumeOutcome{Letter: vol.Letter, Outcome: "error", Error: err.Error()})
			continue
		}

		if !hasProtector(types, bitlocker.ProtectorTpmPin) {
			if len(types) > 0 {
				res.Append(fmt.Sprintf("%s skipped: no TpmPin", vol.Letter))
				res.Volumes = append(res.Volumes, VolumeOutcome{Letter: vol.Letter, Outcome: "skipped", Detail: "no TpmPin"})
			} else {
				res.Append(fmt.Sprintf("%s skipped: not encrypted", vol.Letter))
				res.Merge(StatusWarning)
				res.Volumes = append(res.Volumes, VolumeOutcome{Letter: vol.Letter, Outcome: "skipped", Detail: "not encrypted"})
			}
			continue
		}

		if mode == ModeDetect {
			// Detection only needs an existence answer; stop at the
			// first hit to keep the administrative surface calls down.
			res.Append(fmt.Sprintf("TpmPin found on %s", vol.Letter))
			res.Merge(StatusFail)
			res.Volumes = append(res.Volumes, VolumeOutcome{Letter: vol.Letter, Outcome: "detected", Detail: "TpmPin present"})
			break scan
		}

		if c.dryRun {
			c.log.Info().Str("volume", vol.Letter).Str("target", string(target)).Msg("dry run, skipping mutation")
			res.Append(fmt.Sprintf("would update %s from TpmPin to %s", vol.Letter, target))
			res.Volumes = append(res.Volumes, VolumeOutcome{Letter: vol.Letter, Outcome: "detected", Detail: "dry run"})
			continue
		}

		if err := c.reconciler.Reconcile(vol.Letter, target, secret); err != nil {
			c.log.Error().Str("volume", vol.Letter).Err(err).Msg("key protector reconciliation failed")
			res.Append(fmt.Sprintf("error updating %s", vol.Letter))
			res.Merge(StatusFail)
			res.Volumes = append(res.Volumes, VolumeOutcome{Letter: vol.Letter, Outcome: "error", Error: err.Error()})
			if c.cfg.Remediation.StopOnFailure {
				// A failed write never leaves the run ambiguous:
				// abort instead of scanning further volumes.
				break scan
			}
			continue
		}
		res.Append(fmt.Sprintf("updated %s from TpmPin to %s", vol.Letter, target))
		res.Volumes = append(res.Volumes, VolumeOutcome{Letter: vol.Letter, Outcome: "updated", Detail: string(target)})

		if !c.cfg.Remediation.ResumeProtection {
			continue
		}
		if err := c.resumer.EnsureResumed(vol.Letter); err != nil {
			c.log.Warn().Str("volume", vol.Letter).Err(err).Msg("could not resume protection")
			res.Append(fmt.Sprintf("error turning encryption on for %s", vol.Letter))
			res.Merge(StatusWarning)
		} else {
			res.Append(fmt.Sprintf("encryption on for %s", vol.Letter))
		}
	}

	return res
}

// secretFor picks the configured secret material for the target type.
func (c *Coordinator) secretFor(target bitlocker.ProtectorType) string {
	switch target {
	case bitlocker.ProtectorTpmAndPin:
		return c.cfg.Remediation.PIN
	case bitlocker.ProtectorRecoveryPassword:
		return c.cfg.Remediation.RecoveryPassword
	default:
		return ""
	}
}

func hasProtector(types []bitlocker.ProtectorType, want bitlocker.ProtectorType) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}
