package enroll

import (
	"github.com/isometry/adenroll/internal/krb5"
)

// addPrincipalToKeytab prunes stale entries for one principal, runs
// salt discovery the first time through, and writes fresh entries for
// every enctype at the current kvno.
func (e *Session) addPrincipalToKeytab(principal krb5.Principal) error {
	log := e.conn.Logger()

	// Remove old material for this principal. Entries one version back
	// stay so existing sessions continue to work.
	if removed := krb5.PruneKeytab(e.keytab, principal, e.kvno); removed > 0 {
		log.Info("Cleared old entries from keytab", map[string]any{
			"keytab":    e.keytabName,
			"principal": principal.String(),
			"removed":   removed,
		})
	}

	enctypes := e.KeytabEnctypes()
	salts := krb5.CandidateSalts(principal, e.computerName)

	// Salting in the keytab is wild; the format has to be autodetected.
	// The probe doubles as a test that the new account credentials
	// actually work. Discovered once, then reused for every principal.
	if e.whichSalt < 0 {
		which, err := e.conn.DiscoverSalt(principal, string(e.computerPassword), e.kvno, enctypes, salts)
		if err != nil {
			e.conn.SetLastError(err.Error())
			return directoryError(err, "couldn't authenticate while discovering which salt to use: %s", principal.String())
		}
		e.whichSalt = which
		log.Info("Discovered which keytab salt to use", map[string]any{"salt": salts[which].Name})
	}

	if err := krb5.AddKeytabEntries(e.keytab, principal, e.kvno, string(e.computerPassword), enctypes, salts[e.whichSalt]); err != nil {
		return failError(err, "couldn't add keytab entries: %s", e.keytabName)
	}

	log.Info("Added entries to keytab", map[string]any{
		"principal": principal.String(),
		"keytab":    e.keytabName,
	})
	return nil
}

// updateKeytabForPrincipals synchronizes the keytab for every principal
// and writes the result to disk.
func (e *Session) updateKeytabForPrincipals() error {
	if e.keytab == nil || len(e.keytabPrincipals) == 0 {
		return unexpectedError(nil, "no keytab prepared for update")
	}

	for _, principal := range e.keytabPrincipals {
		if err := e.addPrincipalToKeytab(principal); err != nil {
			return err
		}
	}

	if err := krb5.WriteKeytab(e.keytab, e.keytabName); err != nil {
		return failError(err, "couldn't update keytab: %s", e.keytabName)
	}
	return nil
}
