package enroll

import (
	"fmt"
	"strings"

	"github.com/isometry/adenroll/internal/krb5"
)

// ensureHostFQDN adopts the connection's discovered host name unless the
// caller set one, or explicitly suppressed it with an empty value.
func (e *Session) ensureHostFQDN() error {
	log := e.conn.Logger()

	if e.hostFQDN != "" {
		log.Info("Using fully qualified name", map[string]any{"fqdn": e.hostFQDN})
		return nil
	}

	if e.hostFQDNExplicit {
		log.Info("Not setting fully qualified name", nil)
		return nil
	}

	e.hostFQDN = e.conn.HostFQDN()
	return nil
}

// ensureComputerName derives the short computer name from the host name:
// everything before the first dot, uppercased.
func (e *Session) ensureComputerName() error {
	log := e.conn.Logger()

	if e.computerName != "" {
		log.Info("Enrolling computer name", map[string]any{"name": e.computerName})
		return nil
	}

	if e.hostFQDN == "" {
		return configError(nil, "no host name from which to determine the computer name")
	}

	dot := strings.Index(e.hostFQDN, ".")
	if dot <= 0 || dot == len(e.hostFQDN)-1 {
		return configError(nil, "couldn't determine the computer account name from host name: %s", e.hostFQDN)
	}

	e.computerName = upperName(e.hostFQDN[:dot])
	log.Info("Computer account name calculated from fqdn", map[string]any{"name": e.computerName})
	return nil
}

// ensureComputerSAM formats the sAMAccountName and parses it into the
// computer principal, reparented into the domain realm.
func (e *Session) ensureComputerSAM() error {
	e.computerSAM = e.computerName + "$"
	e.hasComputerPrincipal = false

	principal, err := krb5.ParsePrincipal(e.computerSAM, e.conn.DomainRealm())
	if err != nil {
		return unexpectedError(err, "couldn't parse computer account principal: %s", e.computerSAM)
	}

	e.computerPrincipal = principal
	e.hasComputerPrincipal = true
	return nil
}

// ensureComputerPassword establishes the password material: an explicit
// caller value, the deterministic reset password, or 120 random
// characters.
func (e *Session) ensureComputerPassword() error {
	log := e.conn.Logger()

	if len(e.computerPassword) > 0 {
		return nil
	}

	if e.resetPassword {
		if e.computerName == "" {
			return unexpectedError(nil, "no computer name to derive the reset password from")
		}
		e.computerPassword = []byte(krb5.ResetPassword(e.computerName))
		e.computerPasswordExplicit = false
		log.Info("Using default reset computer password", nil)
		return nil
	}

	password, err := krb5.GenerateHostPassword(krb5.HostPasswordLength)
	if err != nil {
		return unexpectedError(err, "couldn't generate computer password")
	}
	e.computerPassword = []byte(password)
	e.computerPasswordExplicit = false
	log.Info("Generated computer password", map[string]any{"length": krb5.HostPasswordLength})
	return nil
}

// ensureServiceNames fills in the default service names specified by MS.
func (e *Session) ensureServiceNames() error {
	if e.serviceNames != nil {
		return nil
	}
	e.serviceNames = []string{"HOST", "RestrictedKrbHost"}
	return nil
}

// ensureServicePrincipals derives the service principal names and builds
// the keytab principal list: the computer principal first, then each
// service principal, all forced into the domain realm.
func (e *Session) ensureServicePrincipals() error {
	if e.servicePrincipals == nil {
		for _, service := range e.serviceNames {
			e.servicePrincipals = append(e.servicePrincipals, fmt.Sprintf("%s/%s", service, e.computerName))
			if e.hostFQDN != "" {
				e.servicePrincipals = append(e.servicePrincipals, fmt.Sprintf("%s/%s", service, e.hostFQDN))
			}
		}
	}

	if !e.hasComputerPrincipal {
		return unexpectedError(nil, "no computer principal to build keytab principals from")
	}

	realm := e.conn.DomainRealm()
	e.keytabPrincipals = make([]krb5.Principal, 0, len(e.servicePrincipals)+1)
	e.keytabPrincipals = append(e.keytabPrincipals, e.computerPrincipal)

	for _, spn := range e.servicePrincipals {
		principal, err := krb5.ParsePrincipal(spn, realm)
		if err != nil {
			return configError(err, "couldn't parse kerberos service principal: %s", spn)
		}
		e.keytabPrincipals = append(e.keytabPrincipals, principal)
	}

	return nil
}

// ensureHostKeytab opens or creates the destination keytab.
func (e *Session) ensureHostKeytab() error {
	if e.keytab != nil {
		return nil
	}

	if e.keytabName == "" {
		e.keytabName = krb5.DefaultKeytabPath()
	}

	kt, err := krb5.OpenKeytab(e.keytabName)
	if err != nil {
		return failError(err, "failed to open keytab: %s", e.keytabName)
	}
	e.keytab = kt

	e.conn.Logger().Info("Using keytab", map[string]any{"keytab": e.keytabName})
	return nil
}

// Prepare runs the derivation stages without touching the directory.
// It is idempotent and safe to re-run.
func (e *Session) Prepare(flags Flags) error {
	if e == nil || e.conn == nil {
		return unexpectedError(nil, "enrollment session has no connection")
	}

	e.conn.ClearLastError()

	if err := e.ensureHostFQDN(); err != nil {
		return err
	}
	if err := e.ensureComputerName(); err != nil {
		return err
	}
	if err := e.ensureComputerSAM(); err != nil {
		return err
	}
	if err := e.ensureComputerPassword(); err != nil {
		return err
	}
	if flags&FlagNoKeytab == 0 {
		if err := e.ensureHostKeytab(); err != nil {
			return err
		}
	}
	if err := e.ensureServiceNames(); err != nil {
		return err
	}
	return e.ensureServicePrincipals()
}
