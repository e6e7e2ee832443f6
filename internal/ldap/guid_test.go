package ldap

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWellKnownObject(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		wantGUID uuid.UUID
		wantDN   string
		wantErr  bool
	}{
		{
			name:     "computers container",
			value:    "B:32:AA312825768811D1ADED00C04FD8D5CD:CN=Computers,DC=example,DC=com",
			wantGUID: WellKnownComputersGUID,
			wantDN:   "CN=Computers,DC=example,DC=com",
		},
		{
			name:     "users container",
			value:    "B:32:A9D1CA15768811D1ADED00C04FD8D5CD:CN=Users,DC=example,DC=com",
			wantGUID: uuid.MustParse("a9d1ca15-7688-11d1-aded-00c04fd8d5cd"),
			wantDN:   "CN=Users,DC=example,DC=com",
		},
		{
			name:    "not dn-with-binary",
			value:   "CN=Computers,DC=example,DC=com",
			wantErr: true,
		},
		{
			name:    "short hex",
			value:   "B:32:AA312825:CN=Computers,DC=example,DC=com",
			wantErr: true,
		},
		{
			name:    "empty",
			value:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wko, err := ParseWellKnownObject(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantGUID, wko.GUID)
			assert.Equal(t, tt.wantDN, wko.DN)
		})
	}
}

func TestFindWellKnownContainer(t *testing.T) {
	values := []string{
		"B:32:A9D1CA15768811D1ADED00C04FD8D5CD:CN=Users,DC=example,DC=com",
		"garbage value",
		"B:32:AA312825768811D1ADED00C04FD8D5CD:CN=Computers,DC=example,DC=com",
	}

	dn := FindWellKnownContainer(values, WellKnownComputersGUID)
	assert.Equal(t, "CN=Computers,DC=example,DC=com", dn)

	assert.Empty(t, FindWellKnownContainer(values, uuid.MustParse("00000000-0000-0000-0000-000000000001")))
	assert.Empty(t, FindWellKnownContainer(nil, WellKnownComputersGUID))
}

func TestFindWellKnownContainerCaseInsensitive(t *testing.T) {
	// AD may render the binary portion in either case.
	values := []string{
		"B:32:aa312825768811d1aded00c04fd8d5cd:OU=Machines,DC=example,DC=com",
	}
	dn := FindWellKnownContainer(values, WellKnownComputersGUID)
	assert.Equal(t, "OU=Machines,DC=example,DC=com", dn)
}

func TestIsValidGUID(t *testing.T) {
	assert.True(t, IsValidGUID("aa312825-7688-11d1-aded-00c04fd8d5cd"))
	assert.True(t, IsValidGUID("AA312825768811D1ADED00C04FD8D5CD"))
	assert.False(t, IsValidGUID(""))
	assert.False(t, IsValidGUID("not-a-guid"))
	assert.False(t, IsValidGUID("AA312825"))
}
