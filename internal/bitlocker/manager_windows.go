//go:build windows

package bitlocker

import (
	"fmt"
	"strings"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"github.com/scjalliance/comshim"
	"golang.org/x/sys/windows"
)

// wmiManager implements Manager on top of the
// ROOT\CIMV2\Security\MicrosoftVolumeEncryption WMI namespace.
type wmiManager struct{}

// NewManager returns the production encryption-management surface.
func NewManager() Manager {
	return &wmiManager{}
}

// volumeHandle holds the COM objects for one Win32_EncryptableVolume row.
type volumeHandle struct {
	letter  string
	handle  *ole.IDispatch
	wmiIntf *ole.IDispatch
	wmiSvc  *ole.IDispatch
}

// connect binds to the encryptable volume identified by driveLetter.
func connect(driveLetter string) (*volumeHandle, error) {
	comshim.Add(1)
	v := &volumeHandle{letter: driveLetter}

	unknown, err := oleutil.CreateObject("WbemScripting.SWbemLocator")
	if err != nil {
		comshim.Done()
		return nil, fmt.Errorf("createObject: %w", err)
	}
	defer unknown.Release()

	v.wmiIntf, err = unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		comshim.Done()
		return nil, fmt.Errorf("queryInterface: %w", err)
	}
	serviceRaw, err := oleutil.CallMethod(v.wmiIntf, "ConnectServer", nil, `\\.\ROOT\CIMV2\Security\MicrosoftVolumeEncryption`)
	if err != nil {
		v.close()
		return nil, fmt.Errorf("connectServer: %w", err)
	}
	v.wmiSvc = serviceRaw.ToIDispatch()

	raw, err := oleutil.CallMethod(v.wmiSvc, "ExecQuery", "SELECT * FROM Win32_EncryptableVolume WHERE DriveLetter = '"+driveLetter+"'")
	if err != nil {
		v.close()
		return nil, fmt.Errorf("execQuery: %w", err)
	}
	result := raw.ToIDispatch()
	defer result.Release()

	itemRaw, err := oleutil.CallMethod(result, "ItemIndex", 0)
	if err != nil {
		v.close()
		return nil, fmt.Errorf("fetching encryptable volume row for %s: %w", driveLetter, err)
	}
	v.handle = itemRaw.ToIDispatch()

	return v, nil
}

func (v *volumeHandle) close() {
	if v.handle != nil {
		v.handle.Release()
	}
	if v.wmiIntf != nil {
		v.wmiIntf.Release()
	}
	if v.wmiSvc != nil {
		v.wmiSvc.Release()
	}
	comshim.Done()
}

func (m *wmiManager) ListFixedVolumes() ([]Volume, error) {
	mask, err := windows.GetLogicalDrives()
	if err != nil {
		return nil, fmt.Errorf("GetLogicalDrives: %w", err)
	}

	systemDrive := systemDriveLetter()

	var volumes []Volume
	for c := 0; c < 26; c++ {
		if mask&(1<<c) == 0 {
			continue
		}
		letter := string(rune('A'+c)) + ":"
		volumes = append(volumes, Volume{
			Letter:    letter,
			DriveType: driveTypeOf(letter),
			IsSystem:  strings.EqualFold(letter, systemDrive),
		})
	}

	fixed := volumes[:0]
	for _, vol := range volumes {
		if vol.DriveType == DriveFixed {
			fixed = append(fixed, vol)
		}
	}

	return fixed, nil
}

func driveTypeOf(letter string) DriveType {
	switch windows.GetDriveType(windows.StringToUTF16Ptr(letter + `\`)) {
	case windows.DRIVE_FIXED:
		return DriveFixed
	case windows.DRIVE_REMOVABLE:
		return DriveRemovable
	case windows.DRIVE_REMOTE:
		return DriveRemote
	case windows.DRIVE_CDROM:
		return DriveCDROM
	default:
		return DriveUnknown
	}
}

func systemDriveLetter() string {
	sysDir, err := windows.GetSystemDirectory()
	if err != nil || len(sysDir) < 2 {
		return "C:"
	}
	return sysDir[:2]
}

func (m *wmiManager) ProtectionStatus(volumeID string) (ProtectionStatus, error) {
	vol, err := connect(volumeID)
	if err != nil {
		return ProtectionUnknown, fmt.Errorf("connecting to volume %s: %w", volumeID, err)
	}
	defer vol.close()

	var status int32
	resultRaw, err := oleutil.CallMethod(vol.handle, "GetProtectionStatus", &status)
	if err != nil {
		return ProtectionUnknown, fmt.Errorf("GetProtectionStatus(%s): %w", volumeID, err)
	} else if val, ok := resultRaw.Value().(int32); val != 0 || !ok {
		return ProtectionUnknown, fmt.Errorf("GetProtectionStatus(%s): %w", volumeID, managementErrHandler(val))
	}

	return ProtectionStatus(status), nil
}

func (m *wmiManager) KeyProtectors(volumeID string) ([]KeyProtector, error) {
	vol, err := connect(volumeID)
	if err != nil {
		return nil, fmt.Errorf("connecting to volume %s: %w", volumeID, err)
	}
	defer vol.close()

	ids, err := vol.protectorIDs()
	if err != nil {
		return nil, err
	}

	protectors := make([]KeyProtector, 0, len(ids))
	for _, id := range ids {
		var rawType int32
		resultRaw, err := oleutil.CallMethod(vol.handle, "GetKeyProtectorType", id, &rawType)
		if err != nil {
			return nil, fmt.Errorf("GetKeyProtectorType(%s): %w", volumeID, err)
		} else if val, ok := resultRaw.Value().(int32); val != 0 || !ok {
			return nil, fmt.Errorf("GetKeyProtectorType(%s): %w", volumeID, managementErrHandler(val))
		}
		protectors = append(protectors, KeyProtector{ID: id, Type: ProtectorTypeFromWMI(rawType)})
	}

	return protectors, nil
}

// protectorIDs lists all key protector IDs on the volume. The first argument
// of GetKeyProtectors selects the protector type; 0 means every type.
// https://learn.microsoft.com/en-us/windows/win32/secprov/getkeyprotectors-win32-encryptablevolume
func (v *volumeHandle) protectorIDs() ([]string, error) {
	var protectorResults ole.VARIANT
	ole.VariantInit(&protectorResults)

	resultRaw, err := oleutil.CallMethod(v.handle, "GetKeyProtectors", 0, &protectorResults)
	if err != nil {
		return nil, fmt.Errorf("GetKeyProtectors(%s): %w", v.letter, err)
	} else if val, ok := resultRaw.Value().(int32); val != 0 || !ok {
		return nil, fmt.Errorf("GetKeyProtectors(%s): %w", v.letter, managementErrHandler(val))
	}

	var ids []string
	for _, raw := range protectorResults.ToArray().ToValueArray() {
		id, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("GetKeyProtectors(%s): protector ID was not a string", v.letter)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func (m *wmiManager) RemoveKeyProtector(volumeID, protectorID string) error {
	vol, err := connect(volumeID)
	if err != nil {
		return fmt.Errorf("connecting to volume %s: %w", volumeID, err)
	}
	defer vol.close()

	resultRaw, err := oleutil.CallMethod(vol.handle, "DeleteKeyProtector", protectorID)
	if err != nil {
		return fmt.Errorf("DeleteKeyProtector(%s): %w", volumeID, err)
	} else if val, ok := resultRaw.Value().(int32); val != 0 || !ok {
		return fmt.Errorf("DeleteKeyProtector(%s): %w", volumeID, managementErrHandler(val))
	}

	return nil
}

func (m *wmiManager) AddProtector(volumeID string, t ProtectorType, secret string) (string, error) {
	vol, err := connect(volumeID)
	if err != nil {
		return "", fmt.Errorf("connecting to volume %s: %w", volumeID, err)
	}
	defer vol.close()

	var protectorID ole.VARIANT
	ole.VariantInit(&protectorID)

	var resultRaw *ole.VARIANT
	switch t {
	case ProtectorTpm:
		// https://learn.microsoft.com/en-us/windows/win32/secprov/protectkeywithtpm-win32-encryptablevolume
		resultRaw, err = oleutil.CallMethod(vol.handle, "ProtectKeyWithTPM", nil, nil, &protectorID)
	case ProtectorTpmAndPin:
		// https://learn.microsoft.com/en-us/windows/win32/secprov/protectkeywithtpmandpin-win32-encryptablevolume
		resultRaw, err = oleutil.CallMethod(vol.handle, "ProtectKeyWithTPMAndPIN", nil, nil, secret, &protectorID)
	case ProtectorRecoveryPassword:
		// An empty password asks the platform to generate one.
		// https://learn.microsoft.com/en-us/windows/win32/secprov/protectkeywithnumericalpassword-win32-encryptablevolume
		if secret == "" {
			resultRaw, err = oleutil.CallMethod(vol.handle, "ProtectKeyWithNumericalPassword", nil, nil, &protectorID)
		} else {
			resultRaw, err = oleutil.CallMethod(vol.handle, "ProtectKeyWithNumericalPassword", nil, secret, &protectorID)
		}
	default:
		return "", fmt.Errorf("AddProtector(%s): unsupported protector type %q", volumeID, t)
	}

	if err != nil {
		return "", fmt.Errorf("AddProtector(%s, %s): %w", volumeID, t, err)
	} else if val, ok := resultRaw.Value().(int32); val != 0 || !ok {
		return "", fmt.Errorf("AddProtector(%s, %s): %w", volumeID, t, managementErrHandler(val))
	}

	return protectorID.ToString(), nil
}

func (m *wmiManager) ResumeProtection(volumeID string) error {
	vol, err := connect(volumeID)
	if err != nil {
		return fmt.Errorf("connecting to volume %s: %w", volumeID, err)
	}
	defer vol.close()

	// EnableKeyProtectors re-arms existing protectors. It does not run an
	// encryption conversion pass.
	// https://learn.microsoft.com/en-us/windows/win32/secprov/enablekeyprotectors-win32-encryptablevolume
	resultRaw, err := oleutil.CallMethod(vol.handle, "EnableKeyProtectors")
	if err != nil {
		return fmt.Errorf("EnableKeyProtectors(%s): %w", volumeID, err)
	} else if val, ok := resultRaw.Value().(int32); val != 0 || !ok {
		return fmt.Errorf("EnableKeyProtectors(%s): %w", volumeID, managementErrHandler(val))
	}

	return nil
}
