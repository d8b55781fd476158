// Package bitlocker wraps the Windows volume-encryption management surface
// (WMI class Win32_EncryptableVolume) behind a small interface so the
// remediation logic can be exercised without a live device.
package bitlocker

// ProtectorType is the tag BitLocker reports for a key protector.
type ProtectorType string

const (
	ProtectorUnknown          ProtectorType = "Unknown"
	ProtectorTpm              ProtectorType = "Tpm"
	ProtectorExternalKey      ProtectorType = "ExternalKey"
	ProtectorRecoveryPassword ProtectorType = "RecoveryPassword"
	// ProtectorTpmPin is the TPM+PIN tag as the platform reports it. It is
	// the non-compliant legacy configuration this tool exists to replace.
	ProtectorTpmPin            ProtectorType = "TpmPin"
	ProtectorTpmStartupKey     ProtectorType = "TpmStartupKey"
	ProtectorTpmPinStartupKey  ProtectorType = "TpmPinStartupKey"
	ProtectorPublicKey         ProtectorType = "PublicKey"
	ProtectorPassphrase        ProtectorType = "Passphrase"
	// ProtectorTpmAndPin is the desired-state spelling used when installing
	// a new TPM+PIN protector (ProtectKeyWithTPMAndPIN).
	ProtectorTpmAndPin ProtectorType = "TpmAndPin"
)

// Key protector type values returned by GetKeyProtectorType.
// https://learn.microsoft.com/en-us/windows/win32/secprov/getkeyprotectortype-win32-encryptablevolume
var wmiProtectorTypes = map[int32]ProtectorType{
	0: ProtectorUnknown,
	1: ProtectorTpm,
	2: ProtectorExternalKey,
	3: ProtectorRecoveryPassword,
	4: ProtectorTpmPin,
	5: ProtectorTpmStartupKey,
	6: ProtectorTpmPinStartupKey,
	7: ProtectorPublicKey,
	8: ProtectorPassphrase,
}

// ProtectorTypeFromWMI maps a raw GetKeyProtectorType value to its tag.
func ProtectorTypeFromWMI(v int32) ProtectorType {
	if t, ok := wmiProtectorTypes[v]; ok {
		return t
	}
	return ProtectorUnknown
}

// RequiresSecret reports whether installing a protector of this type needs
// caller-supplied secret material.
func (t ProtectorType) RequiresSecret() bool {
	return t == ProtectorTpmAndPin || t == ProtectorRecoveryPassword
}

// ProtectionStatus mirrors GetProtectionStatus.
// https://learn.microsoft.com/en-us/windows/win32/secprov/getprotectionstatus-win32-encryptablevolume
type ProtectionStatus int32

const (
	ProtectionOff     ProtectionStatus = 0
	ProtectionOn      ProtectionStatus = 1
	ProtectionUnknown ProtectionStatus = 2
)

func (s ProtectionStatus) String() string {
	switch s {
	case ProtectionOff:
		return "Off"
	case ProtectionOn:
		return "On"
	default:
		return "Unknown"
	}
}

// DriveType distinguishes the classes of logical drives Windows reports.
type DriveType string

const (
	DriveFixed     DriveType = "Fixed"
	DriveRemovable DriveType = "Removable"
	DriveRemote    DriveType = "Remote"
	DriveCDROM     DriveType = "CDROM"
	DriveUnknown   DriveType = "Unknown"
)

// Volume is a logical volume as seen by the scan. Read fresh from the
// platform on every run, never cached.
type Volume struct {
	Letter    string // drive letter with separator, e.g. "C:"
	DriveType DriveType
	IsSystem  bool
}

// KeyProtector is a single protector attached to a volume.
type KeyProtector struct {
	ID   string
	Type ProtectorType
}

// Manager is the encryption-management capability the remediation core
// needs. The production implementation talks to WMI; tests substitute a
// fake.
type Manager interface {
	// ListFixedVolumes enumerates local fixed volumes that have a drive
	// letter assigned.
	ListFixedVolumes() ([]Volume, error)
	// ProtectionStatus returns the volume's current protection state.
	ProtectionStatus(volumeID string) (ProtectionStatus, error)
	// KeyProtectors lists the protectors currently attached to the volume.
	// A volume with no BitLocker record yields an empty slice, not an error.
	KeyProtectors(volumeID string) ([]KeyProtector, error)
	// RemoveKeyProtector deletes one protector by identity.
	RemoveKeyProtector(volumeID, protectorID string) error
	// AddProtector installs a new protector and returns its ID. secret
	// carries the PIN for TpmAndPin or the numerical password for
	// RecoveryPassword; an empty secret for RecoveryPassword lets the
	// platform generate one.
	AddProtector(volumeID string, t ProtectorType, secret string) (string, error)
	// ResumeProtection re-enables key protectors on a volume whose
	// protection is off or suspended. It does not start an encryption pass.
	ResumeProtection(volumeID string) error
}
