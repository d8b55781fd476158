package remediation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/bitlocker"
	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/config"
)

func TestRunSkipsNonFixedAndLetterlessVolumes(t *testing.T) {
	mgr := newFakeManager()
	mgr.volumes = []bitlocker.Volume{
		{Letter: "E:", DriveType: bitlocker.DriveRemovable},
		{Letter: "Z:", DriveType: bitlocker.DriveRemote},
		{Letter: "", DriveType: bitlocker.DriveFixed},
	}

	res := newTestCoordinator(mgr, config.Default(), true).Run(ModeDetect)

	require.Equal(t, StatusOK, res.Code)
	assert.Empty(t, mgr.statusCalls)
	assert.Empty(t, mgr.protectorCalls)
	assert.Zero(t, mgr.mutationCalls())
}

func TestRunSkipsVolumesWithProtectionOff(t *testing.T) {
	mgr := newFakeManager()
	st := mgr.addVolume("D:", bitlocker.ProtectorTpmPin)
	st.status = bitlocker.ProtectionOff

	res := newTestCoordinator(mgr, config.Default(), true).Run(ModeRemediate)

	require.Equal(t, 0, res.ExitCode())
	assert.Equal(t, 1, mgr.statusCalls["D:"])
	assert.Zero(t, mgr.protectorCalls["D:"], "key protectors must not be listed when protection is off")
	assert.Zero(t, mgr.mutationCalls())
}

func TestDetectStopsAtFirstNonCompliantVolume(t *testing.T) {
	mgr := newFakeManager()
	mgr.addVolume("C:", bitlocker.ProtectorTpmPin)
	mgr.addVolume("D:", bitlocker.ProtectorTpmPin)

	res := newTestCoordinator(mgr, config.Default(), true).Run(ModeDetect)

	require.Equal(t, StatusFail, res.Code)
	require.Equal(t, 1, res.ExitCode())
	assert.Contains(t, res.Clauses, "TpmPin found on C:")
	assert.Zero(t, mgr.protectorCalls["D:"], "scan must stop at the first hit")
	assert.Zero(t, mgr.mutationCalls(), "detect mode never mutates")
}

func TestDetectCleanDeviceExitsZero(t *testing.T) {
	mgr := newFakeManager()
	mgr.addVolume("C:", bitlocker.ProtectorTpm)
	mgr.addVolume("D:", bitlocker.ProtectorTpm, bitlocker.ProtectorRecoveryPassword)

	res := newTestCoordinator(mgr, config.Default(), true).Run(ModeDetect)

	require.Equal(t, StatusOK, res.Code)
	require.Equal(t, 0, res.ExitCode())
	assert.Zero(t, mgr.mutationCalls())
}

func TestRemediateLeavesExactlyOneTargetProtector(t *testing.T) {
	mgr := newFakeManager()
	st := mgr.addVolume("C:", bitlocker.ProtectorTpmPin)

	res := newTestCoordinator(mgr, config.Default(), true).Run(ModeRemediate)

	require.Equal(t, 0, res.ExitCode())
	require.Len(t, st.protectors, 1)
	assert.Equal(t, bitlocker.ProtectorTpm, st.protectors[0].Type)
	assert.Contains(t, res.Clauses, "updated C: from TpmPin to Tpm")
	assert.Contains(t, res.Clauses, "encryption on for C:")
}

func TestRemediateAbortsOnMutationFailure(t *testing.T) {
	mgr := newFakeManager()
	st := mgr.addVolume("C:", bitlocker.ProtectorTpmPin)
	st.removeErr = errors.New("access denied")
	mgr.addVolume("D:", bitlocker.ProtectorTpmPin)

	res := newTestCoordinator(mgr, config.Default(), true).Run(ModeRemediate)

	require.Equal(t, StatusFail, res.Code)
	require.Equal(t, 1, res.ExitCode())
	assert.Contains(t, res.Clauses, "error updating C:")
	assert.Zero(t, mgr.protectorCalls["D:"], "run must terminate on the first mutation failure")
}

func TestRemediateContinuesPastFailureWhenConfigured(t *testing.T) {
	mgr := newFakeManager()
	st := mgr.addVolume("C:", bitlocker.ProtectorTpmPin)
	st.removeErr = errors.New("access denied")
	other := mgr.addVolume("D:", bitlocker.ProtectorTpmPin)

	cfg := config.Default()
	require.NoError(t, config.ApplyProfile(cfg, "sweep"))

	res := newTestCoordinator(mgr, cfg, true).Run(ModeRemediate)

	require.Equal(t, 1, res.ExitCode(), "the failed volume still fails the run")
	require.Len(t, other.protectors, 1)
	assert.Equal(t, bitlocker.ProtectorTpm, other.protectors[0].Type, "later volumes are still fixed")
}

func TestResumeFailureAfterSuccessfulUpdateIsSoft(t *testing.T) {
	mgr := newFakeManager()
	st := mgr.addVolume("C:", bitlocker.ProtectorTpmPin)
	// Reconciliation suspends the fake volume, so resume will be attempted
	// and fail.
	st.resumeErr = errors.New("provider busy")

	res := newTestCoordinator(mgr, config.Default(), true).Run(ModeRemediate)

	require.Equal(t, StatusWarning, res.Code)
	require.Equal(t, 0, res.ExitCode(), "resume failure must not fail the run")
	assert.Equal(t, "WARNING", res.Prefix())
	assert.Contains(t, res.Clauses, "updated C: from TpmPin to Tpm")
	assert.Contains(t, res.Clauses, "error turning encryption on for C:")
	require.Len(t, st.protectors, 1)
	assert.Equal(t, bitlocker.ProtectorTpm, st.protectors[0].Type)
}

func TestNoAdminRightsFailsWithoutTouchingVolumes(t *testing.T) {
	mgr := newFakeManager()
	mgr.addVolume("C:", bitlocker.ProtectorTpmPin)

	res := newTestCoordinator(mgr, config.Default(), false).Run(ModeRemediate)

	require.Equal(t, 1, res.ExitCode())
	assert.Contains(t, res.Clauses, "administrative rights are required")
	assert.Zero(t, mgr.listCalls, "no volume may be touched without elevation")
	assert.Zero(t, mgr.mutationCalls())
}

func TestRemediateIsIdempotentOnCompliantDevice(t *testing.T) {
	mgr := newFakeManager()
	mgr.addVolume("C:", bitlocker.ProtectorTpm)
	mgr.addVolume("D:", bitlocker.ProtectorTpm)

	coord := newTestCoordinator(mgr, config.Default(), true)

	first := coord.Run(ModeRemediate)
	require.Equal(t, 0, first.ExitCode())
	mutationsAfterFirst := mgr.mutationCalls()

	second := coord.Run(ModeRemediate)
	require.Equal(t, 0, second.ExitCode())
	assert.Equal(t, mutationsAfterFirst, mgr.mutationCalls(), "second run must perform no mutation calls")
	assert.Zero(t, mutationsAfterFirst)
}

func TestRemediateMixedVolumes(t *testing.T) {
	mgr := newFakeManager()
	nonCompliant := mgr.addVolume("C:", bitlocker.ProtectorTpmPin)
	compliant := mgr.addVolume("D:", bitlocker.ProtectorTpm)

	res := newTestCoordinator(mgr, config.Default(), true).Run(ModeRemediate)

	require.Equal(t, 0, res.ExitCode())
	require.Len(t, nonCompliant.protectors, 1)
	assert.Equal(t, bitlocker.ProtectorTpm, nonCompliant.protectors[0].Type)
	assert.Equal(t, bitlocker.ProtectionOn, nonCompliant.status, "volume must be resumed after the rewrite")
	require.Len(t, compliant.protectors, 1)
	assert.Contains(t, res.Clauses, "D: skipped: no TpmPin")
}

func TestUnencryptedVolumeIsSoftWarning(t *testing.T) {
	mgr := newFakeManager()
	mgr.addVolume("C:") // protection on, no protectors at all

	res := newTestCoordinator(mgr, config.Default(), true).Run(ModeDetect)

	require.Equal(t, StatusWarning, res.Code)
	require.Equal(t, 0, res.ExitCode())
	assert.Contains(t, res.Clauses, "C: skipped: not encrypted")
}

func TestInspectionErrorSkipsVolume(t *testing.T) {
	mgr := newFakeManager()
	broken := mgr.addVolume("C:", bitlocker.ProtectorTpmPin)
	broken.protectorsErr = errors.New("wmi timeout")
	fixable := mgr.addVolume("D:", bitlocker.ProtectorTpmPin)

	res := newTestCoordinator(mgr, config.Default(), true).Run(ModeRemediate)

	require.Equal(t, 0, res.ExitCode(), "inspection errors are recoverable")
	assert.Contains(t, res.Clauses, "error inspecting volume C:")
	require.Len(t, fixable.protectors, 1)
	assert.Equal(t, bitlocker.ProtectorTpm, fixable.protectors[0].Type)
}

func TestEnumerationFailureIsFatal(t *testing.T) {
	mgr := newFakeManager()
	mgr.listErr = errors.New("wmi unavailable")

	res := newTestCoordinator(mgr, config.Default(), true).Run(ModeDetect)

	require.Equal(t, 1, res.ExitCode())
	assert.Contains(t, res.Clauses, "error enumerating volumes")
}

func TestExcludedDrivesAreNeverInspected(t *testing.T) {
	mgr := newFakeManager()
	mgr.addVolume("D:", bitlocker.ProtectorTpmPin)

	cfg := config.Default()
	cfg.Security.ExcludedDrives = append(cfg.Security.ExcludedDrives, "D:")

	res := newTestCoordinator(mgr, cfg, true).Run(ModeRemediate)

	require.Equal(t, 0, res.ExitCode())
	assert.Zero(t, mgr.statusCalls["D:"])
	assert.Zero(t, mgr.mutationCalls())
}

func TestDryRunReportsWithoutMutating(t *testing.T) {
	mgr := newFakeManager()
	st := mgr.addVolume("C:", bitlocker.ProtectorTpmPin)

	coord := newTestCoordinator(mgr, config.Default(), true)
	coord.SetDryRun(true)
	res := coord.Run(ModeRemediate)

	require.Equal(t, 0, res.ExitCode())
	assert.Contains(t, res.Clauses, "would update C: from TpmPin to Tpm")
	require.Len(t, st.protectors, 1)
	assert.Equal(t, bitlocker.ProtectorTpmPin, st.protectors[0].Type)
	assert.Zero(t, mgr.mutationCalls())
}
