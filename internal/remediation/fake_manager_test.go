package remediation

import (
	"fmt"

	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/bitlocker"
	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/config"
	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/logging"
)

// fakeVolumeState is the mutable per-volume state behind the fake manager.
type fakeVolumeState struct {
	status        bitlocker.ProtectionStatus
	statusErr     error
	protectors    []bitlocker.KeyProtector
	protectorsErr error
	removeErr     error
	addErr        error
	resumeErr     error
}

// fakeManager implements bitlocker.Manager in memory and counts every call,
// so tests can assert which volumes were touched and how.
type fakeManager struct {
	volumes []bitlocker.Volume
	listErr error
	state   map[string]*fakeVolumeState

	listCalls       int
	statusCalls     map[string]int
	protectorCalls  map[string]int
	removeCalls     int
	addCalls        int
	resumeCalls     int
	nextProtectorID int
}

func newFakeManager() *fakeManager {
	return &fakeManager{
		state:          make(map[string]*fakeVolumeState),
		statusCalls:    make(map[string]int),
		protectorCalls: make(map[string]int),
	}
}

// addVolume registers a fixed, protection-on volume carrying the given
// protector types.
func (m *fakeManager) addVolume(letter string, types ...bitlocker.ProtectorType) *fakeVolumeState {
	m.volumes = append(m.volumes, bitlocker.Volume{Letter: letter, DriveType: bitlocker.DriveFixed})
	st := &fakeVolumeState{status: bitlocker.ProtectionOn}
	for _, t := range types {
		m.nextProtectorID++
		st.protectors = append(st.protectors, bitlocker.KeyProtector{
			ID:   fmt.Sprintf("{%08d}", m.nextProtectorID),
			Type: t,
		})
	}
	m.state[letter] = st
	return st
}

func (m *fakeManager) mutationCalls() int {
	return m.removeCalls + m.addCalls + m.resumeCalls
}

func (m *fakeManager) ListFixedVolumes() ([]bitlocker.Volume, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.volumes, nil
}

func (m *fakeManager) ProtectionStatus(volumeID string) (bitlocker.ProtectionStatus, error) {
	m.statusCalls[volumeID]++
	st, ok := m.state[volumeID]
	if !ok {
		return bitlocker.ProtectionUnknown, fmt.Errorf("unknown volume %s", volumeID)
	}
	if st.statusErr != nil {
		return bitlocker.ProtectionUnknown, st.statusErr
	}
	return st.status, nil
}

func (m *fakeManager) KeyProtectors(volumeID string) ([]bitlocker.KeyProtector, error) {
	m.protectorCalls[volumeID]++
	st, ok := m.state[volumeID]
	if !ok {
		return nil, fmt.Errorf("unknown volume %s", volumeID)
	}
	if st.protectorsErr != nil {
		return nil, st.protectorsErr
	}
	out := make([]bitlocker.KeyProtector, len(st.protectors))
	copy(out, st.protectors)
	return out, nil
}

func (m *fakeManager) RemoveKeyProtector(volumeID, protectorID string) error {
	m.removeCalls++
	st, ok := m.state[volumeID]
	if !ok {
		return fmt.Errorf("unknown volume %s", volumeID)
	}
	if st.removeErr != nil {
		return st.removeErr
	}
	for i, p := range st.protectors {
		if p.ID == protectorID {
			st.protectors = append(st.protectors[:i], st.protectors[i+1:]...)
			// Removing the last protector suspends protection, like the
			// real surface does.
			if len(st.protectors) == 0 {
				st.status = bitlocker.ProtectionOff
			}
			return nil
		}
	}
	return fmt.Errorf("protector %s not found on %s", protectorID, volumeID)
}

func (m *fakeManager) AddProtector(volumeID string, t bitlocker.ProtectorType, secret string) (string, error) {
	m.addCalls++
	st, ok := m.state[volumeID]
	if !ok {
		return "", fmt.Errorf("unknown volume %s", volumeID)
	}
	if st.addErr != nil {
		return "", st.addErr
	}
	m.nextProtectorID++
	id := fmt.Sprintf("{%08d}", m.nextProtectorID)
	st.protectors = append(st.protectors, bitlocker.KeyProtector{ID: id, Type: t})
	return id, nil
}

func (m *fakeManager) ResumeProtection(volumeID string) error {
	m.resumeCalls++
	st, ok := m.state[volumeID]
	if !ok {
		return fmt.Errorf("unknown volume %s", volumeID)
	}
	if st.resumeErr != nil {
		return st.resumeErr
	}
	st.status = bitlocker.ProtectionOn
	return nil
}

// newTestCoordinator wires a coordinator against the fake manager with the
// elevation guard forced to the given answer on every component.
func newTestCoordinator(mgr bitlocker.Manager, cfg *config.Config, elevated bool) *Coordinator {
	c := NewCoordinator(mgr, cfg, logging.Nop())
	guard := func() bool { return elevated }
	c.elevated = guard
	c.inspector.elevated = guard
	c.reconciler.elevated = guard
	c.resumer.elevated = guard
	return c
}
