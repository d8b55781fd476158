package bitlocker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProtectorTypeFromWMI(t *testing.T) {
	cases := []struct {
		raw  int32
		want ProtectorType
	}{
		{0, ProtectorUnknown},
		{1, ProtectorTpm},
		{2, ProtectorExternalKey},
		{3, ProtectorRecoveryPassword},
		{4, ProtectorTpmPin},
		{5, ProtectorTpmStartupKey},
		{6, ProtectorTpmPinStartupKey},
		{7, ProtectorPublicKey},
		{8, ProtectorPassphrase},
		{9, ProtectorUnknown},
		{-1, ProtectorUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ProtectorTypeFromWMI(tc.raw), "raw value %d", tc.raw)
	}
}

func TestRequiresSecret(t *testing.T) {
	assert.False(t, ProtectorTpm.RequiresSecret())
	assert.False(t, ProtectorTpmPin.RequiresSecret())
	assert.True(t, ProtectorTpmAndPin.RequiresSecret())
	assert.True(t, ProtectorRecoveryPassword.RequiresSecret())
}

func TestProtectionStatusString(t *testing.T) {
	assert.Equal(t, "Off", ProtectionOff.String())
	assert.Equal(t, "On", ProtectionOn.String())
	assert.Equal(t, "Unknown", ProtectionUnknown.String())
	assert.Equal(t, "Unknown", ProtectionStatus(42).String())
}

func TestManagementErrorCarriesCode(t *testing.T) {
	err := managementErrHandler(ErrorCodeKeyProtectorNotFound)
	assert.Error(t, err)

	var mgmtErr *ManagementError
	assert.ErrorAs(t, err, &mgmtErr)
	assert.Equal(t, ErrorCodeKeyProtectorNotFound, mgmtErr.Code())
	assert.Contains(t, err.Error(), "key protector does not exist")
}

func TestManagementErrorUnknownCode(t *testing.T) {
	err := managementErrHandler(-1)
	var mgmtErr *ManagementError
	assert.ErrorAs(t, err, &mgmtErr)
	assert.Equal(t, int32(-1), mgmtErr.Code())
}
