package enroll

import (
	"context"
	"strconv"

	"github.com/isometry/adenroll/internal/krb5"
	adldap "github.com/isometry/adenroll/internal/ldap"
)

// retrieveComputerAccountInfo fetches the post-creation attributes used
// for diffing and key management. The raw entry is cached on the
// session so the best-effort updates can compute minimal deltas.
func (e *Session) retrieveComputerAccountInfo(ctx context.Context) error {
	log := e.conn.Logger()

	result, err := e.conn.Directory().Search(ctx, &adldap.SearchRequest{
		BaseDN: e.computerDN,
		Scope:  adldap.ScopeBaseObject,
		Filter: "(objectClass=*)",
		Attributes: []string{
			"msDS-KeyVersionNumber",
			"msDS-supportedEncryptionTypes",
			"dNSHostName",
			"servicePrincipalName",
			"objectSid",
		},
	})
	if err != nil {
		e.conn.SetLastError(err.Error())
		return directoryError(err, "couldn't retrieve computer account info: %s", e.computerDN)
	}
	if len(result.Entries) == 0 {
		return directoryError(nil, "computer account vanished after creation: %s", e.computerDN)
	}

	e.computerAttributes = result.Entries[0]

	if e.kvno == 0 {
		value := e.computerAttributes.GetAttributeValue("msDS-KeyVersionNumber")
		if value != "" {
			kvno, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return directoryError(err, "invalid kvno %q for computer account in directory: %s", value, e.computerDN)
			}
			e.kvno = uint32(kvno)
			log.Info("Retrieved kvno for computer account", map[string]any{
				"kvno": e.kvno,
				"dn":   e.computerDN,
			})
		} else {
			// Old AD didn't have this attribute, use zero
			log.Info("No kvno found for computer account", map[string]any{"dn": e.computerDN})
		}
	}

	return nil
}

// ComputerSID reports the SID of the enrolled account, when known.
func (e *Session) ComputerSID() string {
	if e.computerAttributes == nil {
		return ""
	}
	return adldap.ExtractSID(e.computerAttributes)
}

// updateAndCalculateEnctypes reconciles msDS-supportedEncryptionTypes.
// The keytab pins the client to specific enctypes, so the server must
// know which ones the client holds keys for. Directory-declared
// enctypes win unless the caller set an explicit list.
func (e *Session) updateAndCalculateEnctypes(ctx context.Context) error {
	log := e.conn.Logger()

	value := ""
	if e.computerAttributes != nil {
		value = e.computerAttributes.GetAttributeValue("msDS-supportedEncryptionTypes")
	}

	if !e.keytabEnctypesExplicit && value != "" {
		read, err := krb5.ParseEnctypeMask(value)
		if err != nil {
			log.Warn("Invalid or unsupported encryption types are set on the computer account", map[string]any{
				"value": value,
			})
		} else {
			e.keytabEnctypes = read
		}
	}

	newValue, err := krb5.FormatEnctypeMask(e.KeytabEnctypes())
	if err != nil {
		log.Warn("The encryption types desired are not available in active directory", nil)
		return configError(err, "unusable encryption type selection")
	}

	if value == newValue {
		return nil
	}

	err = e.conn.Directory().Modify(ctx, &adldap.ModifyRequest{
		DN:                e.computerDN,
		ReplaceAttributes: map[string][]string{"msDS-supportedEncryptionTypes": {newValue}},
	})
	if adldap.IsInsufficientAccess(err) {
		e.conn.SetLastError(err.Error())
		return credentialsError(err, "insufficient permissions to set encryption types on computer account: %s", e.computerDN)
	}
	if err != nil {
		e.conn.SetLastError(err.Error())
		return directoryError(err, "couldn't set encryption types on computer account: %s", e.computerDN)
	}

	return nil
}

// updateDNSHostName writes dNSHostName when it differs.
func (e *Session) updateDNSHostName(ctx context.Context) error {
	return e.updateAttribute(ctx, "dNSHostName", []string{e.hostFQDN}, "host name")
}

// updateServicePrincipals writes servicePrincipalName when the value
// sets differ.
func (e *Session) updateServicePrincipals(ctx context.Context) error {
	return e.updateAttribute(ctx, "servicePrincipalName", e.servicePrincipals, "service principals")
}

// updateAttribute issues a minimal-delta replace of one attribute,
// using the cached entry for the diff.
func (e *Session) updateAttribute(ctx context.Context, name string, values []string, what string) error {
	if len(values) == 0 || (len(values) == 1 && values[0] == "") {
		return nil
	}

	if e.computerAttributes != nil {
		current := e.computerAttributes.GetAttributeValues(name)
		if haveMod(current, values) && haveMod(values, current) {
			return nil
		}
	}

	err := e.conn.Directory().Modify(ctx, &adldap.ModifyRequest{
		DN:                e.computerDN,
		ReplaceAttributes: map[string][]string{name: values},
	})
	if adldap.IsInsufficientAccess(err) {
		e.conn.SetLastError(err.Error())
		return credentialsError(err, "insufficient permissions to set %s on computer account: %s", what, e.computerDN)
	}
	if err != nil {
		e.conn.SetLastError(err.Error())
		return directoryError(err, "couldn't set %s on computer account: %s", what, e.computerDN)
	}

	return nil
}
