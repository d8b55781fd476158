package bitlocker

import "fmt"

// BitLocker-specific HRESULTs returned by Win32_EncryptableVolume methods.
// https://learn.microsoft.com/en-us/windows/win32/secprov/-volume-encryption-provider-error-codes
const (
	ErrorCodeIODevice                   int32 = -2147023779
	ErrorCodeDriveIncompatibleVolume    int32 = -2144272206
	ErrorCodeNoTPMWithPassphrase        int32 = -2144272212
	ErrorCodePassphraseTooLong          int32 = -2144272214
	ErrorCodePolicyPassphraseNotAllowed int32 = -2144272278
	ErrorCodeNotDecrypted               int32 = -2144272327
	ErrorCodeInvalidPasswordFormat      int32 = -2144272331
	ErrorCodeBootableCDOrDVD            int32 = -2144272336
	ErrorCodeProtectorExists            int32 = -2144272335
	ErrorCodeKeyProtectorNotFound       int32 = -2144272341
)

// ManagementError is a non-zero return value from a Win32_EncryptableVolume
// method call.
type ManagementError struct {
	msg  string
	code int32
}

func NewManagementError(msg string, code int32) *ManagementError {
	return &ManagementError{msg: msg, code: code}
}

func (e *ManagementError) Error() string { return e.msg }

// Code returns the BitLocker HRESULT that produced this error.
func (e *ManagementError) Code() int32 { return e.code }

func managementErrHandler(val int32) error {
	var msg string

	switch val {
	case ErrorCodeIODevice:
		msg = "an I/O error has occurred; the device may need to be reset"
	case ErrorCodeDriveIncompatibleVolume:
		msg = "the drive specified does not support hardware-based encryption"
	case ErrorCodeNoTPMWithPassphrase:
		msg = "a TPM key protector cannot be added because a password protector exists on the drive"
	case ErrorCodePassphraseTooLong:
		msg = "the passphrase cannot exceed 256 characters"
	case ErrorCodePolicyPassphraseNotAllowed:
		msg = "group policy settings do not permit the creation of a password"
	case ErrorCodeNotDecrypted:
		msg = "the drive must be fully decrypted to complete this operation"
	case ErrorCodeInvalidPasswordFormat:
		msg = "the format of the recovery password provided is invalid"
	case ErrorCodeBootableCDOrDVD:
		msg = "bootable media (CD or DVD) was detected in the computer"
	case ErrorCodeProtectorExists:
		msg = "only one key protector of this type is allowed for this drive"
	case ErrorCodeKeyProtectorNotFound:
		msg = "the provided key protector does not exist on the drive"
	default:
		msg = fmt.Sprintf("error code returned by volume encryption provider: %d", val)
	}

	return &ManagementError{msg: msg, code: val}
}
