package enroll

import (
	"context"
	"testing"

	"github.com/jcmturner/gokrb5/v8/iana/etypeID"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attributesSession(t *testing.T, accountAttrs map[string][]string) (*Session, *fakeDirectory) {
	t.Helper()
	session, dir := reconcileSession(t)
	if accountAttrs != nil {
		dir.putEntry(testComputerDN, accountAttrs)
	} else {
		require.NoError(t, session.createOrUpdateComputerAccount(context.Background(), false))
	}
	return session, dir
}

func TestRetrieveAccountInfoKvno(t *testing.T) {
	session, _ := attributesSession(t, map[string][]string{
		"msDS-KeyVersionNumber": {"5"},
	})

	require.NoError(t, session.retrieveComputerAccountInfo(context.Background()))
	assert.Equal(t, uint32(5), session.Kvno())
}

func TestRetrieveAccountInfoKvnoAbsent(t *testing.T) {
	// Old AD didn't expose msDS-KeyVersionNumber at all.
	session, _ := attributesSession(t, map[string][]string{
		"objectClass": {"computer"},
	})

	require.NoError(t, session.retrieveComputerAccountInfo(context.Background()))
	assert.Zero(t, session.Kvno())
}

func TestRetrieveAccountInfoKvnoMalformed(t *testing.T) {
	session, _ := attributesSession(t, map[string][]string{
		"msDS-KeyVersionNumber": {"5abc"},
	})

	err := session.retrieveComputerAccountInfo(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindDirectory, KindOf(err))
}

func TestRetrieveAccountInfoExplicitKvnoWins(t *testing.T) {
	session, _ := attributesSession(t, map[string][]string{
		"msDS-KeyVersionNumber": {"5"},
	})
	session.SetKvno(9)

	require.NoError(t, session.retrieveComputerAccountInfo(context.Background()))
	assert.Equal(t, uint32(9), session.Kvno())
}

func TestUpdateEnctypesAdoptsDirectoryValue(t *testing.T) {
	session, dir := attributesSession(t, map[string][]string{
		"msDS-supportedEncryptionTypes": {"4"},
	})
	require.NoError(t, session.retrieveComputerAccountInfo(context.Background()))

	require.NoError(t, session.updateAndCalculateEnctypes(context.Background()))

	// Directory-declared enctypes replace the default set, so the
	// stored mask already matches and no write is needed.
	assert.Equal(t, []int32{etypeID.RC4_HMAC}, session.KeytabEnctypes())
	assert.Empty(t, dir.modifies)
}

func TestUpdateEnctypesExplicitListWins(t *testing.T) {
	session, dir := attributesSession(t, map[string][]string{
		"msDS-supportedEncryptionTypes": {"4"},
	})
	session.SetKeytabEnctypes([]int32{etypeID.AES256_CTS_HMAC_SHA1_96})
	require.NoError(t, session.retrieveComputerAccountInfo(context.Background()))

	require.NoError(t, session.updateAndCalculateEnctypes(context.Background()))

	assert.Equal(t, []int32{etypeID.AES256_CTS_HMAC_SHA1_96}, session.KeytabEnctypes())
	require.Len(t, dir.modifies, 1)
	assert.Equal(t, []string{"16"}, dir.modifies[0].ReplaceAttributes["msDS-supportedEncryptionTypes"])
}

func TestUpdateEnctypesInvalidDirectoryValueKeepsDefaults(t *testing.T) {
	session, dir := attributesSession(t, map[string][]string{
		"msDS-supportedEncryptionTypes": {"garbage"},
	})
	require.NoError(t, session.retrieveComputerAccountInfo(context.Background()))

	require.NoError(t, session.updateAndCalculateEnctypes(context.Background()))

	// Warn-and-keep-defaults: the full default mask gets written.
	require.Len(t, dir.modifies, 1)
	assert.Equal(t, []string{"31"}, dir.modifies[0].ReplaceAttributes["msDS-supportedEncryptionTypes"])
}

func TestUpdateDNSHostName(t *testing.T) {
	t.Run("differs", func(t *testing.T) {
		session, dir := attributesSession(t, map[string][]string{
			"dNSHostName": {"stale.example.com"},
		})
		require.NoError(t, session.retrieveComputerAccountInfo(context.Background()))

		require.NoError(t, session.updateDNSHostName(context.Background()))
		require.Len(t, dir.modifies, 1)
		assert.Equal(t, []string{"host1.example.com"}, dir.modifies[0].ReplaceAttributes["dNSHostName"])
	})

	t.Run("already correct", func(t *testing.T) {
		session, dir := attributesSession(t, map[string][]string{
			"dNSHostName": {"host1.example.com"},
		})
		require.NoError(t, session.retrieveComputerAccountInfo(context.Background()))

		require.NoError(t, session.updateDNSHostName(context.Background()))
		assert.Empty(t, dir.modifies)
	})
}

func TestUpdateServicePrincipals(t *testing.T) {
	session, dir := attributesSession(t, map[string][]string{
		"servicePrincipalName": {"HOST/HOST1"},
	})
	require.NoError(t, session.retrieveComputerAccountInfo(context.Background()))

	require.NoError(t, session.updateServicePrincipals(context.Background()))
	require.Len(t, dir.modifies, 1)
	assert.ElementsMatch(t, []string{
		"HOST/HOST1",
		"HOST/host1.example.com",
		"RestrictedKrbHost/HOST1",
		"RestrictedKrbHost/host1.example.com",
	}, dir.modifies[0].ReplaceAttributes["servicePrincipalName"])
}

func TestComputerSID(t *testing.T) {
	session, _ := attributesSession(t, map[string][]string{
		"objectClass": {"computer"},
	})
	assert.Empty(t, session.ComputerSID())
}
