package enroll

import (
	"context"
	"fmt"
	"strings"

	adldap "github.com/isometry/adenroll/internal/ldap"
)

// validatePreferredOU checks that a caller-provided OU exists and is an
// organizational unit. The naming context itself always passes.
func (e *Session) validatePreferredOU(ctx context.Context) error {
	log := e.conn.Logger()

	if e.preferredOUValidated {
		return nil
	}

	base := e.conn.NamingContext()
	if strings.EqualFold(e.preferredOU, base) {
		e.preferredOUValidated = true
		return nil
	}

	matched, err := e.conn.Directory().Compare(ctx, e.preferredOU, "objectClass", "organizationalUnit")
	if err != nil {
		e.conn.SetLastError(err.Error())
		return directoryError(err, "couldn't check preferred organizational unit: %s", e.preferredOU)
	}

	if !matched {
		return configError(nil, "the computer organizational unit is invalid: %s", e.preferredOU)
	}

	log.Info("The computer organizational unit is valid", map[string]any{"ou": e.preferredOU})
	e.preferredOUValidated = true
	return nil
}

// lookupPreferredOU queries the naming context for a preferredOU
// attribute and falls back to the naming context itself.
//
// The (objectClass=computer) filter is what the documentation
// prescribes, but in practice the search comes back empty on most
// domains; the fallback is the common path. Left as is until it can be
// tested against a domain that actually carries the attribute.
func (e *Session) lookupPreferredOU(ctx context.Context) error {
	log := e.conn.Logger()
	base := e.conn.NamingContext()

	result, err := e.conn.Directory().Search(ctx, &adldap.SearchRequest{
		BaseDN:     base,
		Scope:      adldap.ScopeBaseObject,
		Filter:     "(objectClass=computer)",
		Attributes: []string{"preferredOU"},
	})
	if err != nil {
		e.conn.SetLastError(err.Error())
		return directoryError(err, "couldn't lookup preferred organizational unit")
	}

	if len(result.Entries) > 0 {
		e.preferredOU = result.Entries[0].GetAttributeValue("preferredOU")
	}
	if e.preferredOU == "" {
		log.Info("No preferred organizational unit found, using directory base", map[string]any{"base": base})
		e.preferredOU = base
	}

	return nil
}

// lookupComputerContainer locates the container for computer objects:
// the well-known Computers container advertised in wellKnownObjects,
// then a CN=Computers container, then the OU itself.
func (e *Session) lookupComputerContainer(ctx context.Context) error {
	log := e.conn.Logger()

	if e.computerContainer != "" {
		return nil
	}

	result, err := e.conn.Directory().Search(ctx, &adldap.SearchRequest{
		BaseDN:     e.preferredOU,
		Scope:      adldap.ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: []string{"wellKnownObjects"},
	})
	if err != nil {
		e.conn.SetLastError(err.Error())
		return directoryError(err, "couldn't lookup computer container")
	}

	if len(result.Entries) > 0 {
		values := result.Entries[0].GetAttributeValues("wellKnownObjects")
		if dn := adldap.FindWellKnownContainer(values, adldap.WellKnownComputersGUID); dn != "" {
			e.computerContainer = dn
			log.Info("Found well known computer container", map[string]any{"container": dn})
		}
	}

	// Try harder
	if e.computerContainer == "" {
		result, err := e.conn.Directory().Search(ctx, &adldap.SearchRequest{
			BaseDN:     e.preferredOU,
			Scope:      adldap.ScopeBaseObject,
			Filter:     "(&(objectClass=container)(cn=Computers))",
			Attributes: []string{"wellKnownObjects"},
		})
		if err == nil && len(result.Entries) > 0 {
			e.computerContainer = result.Entries[0].DN
			if e.computerContainer != "" {
				log.Info("Well known computer container not found, but found suitable one", map[string]any{
					"container": e.computerContainer,
				})
			}
		}
	}

	if e.computerContainer == "" {
		log.Warn("Couldn't find a computer container in the ou, creating computer account directly", map[string]any{
			"ou": e.preferredOU,
		})
		e.computerContainer = e.preferredOU
	}

	return nil
}

// calcComputerAccount computes the DN the computer object lives at.
func (e *Session) calcComputerAccount() error {
	e.computerDN = fmt.Sprintf("CN=%s,%s", adldap.EscapeDNValue(e.computerName), e.computerContainer)
	e.conn.Logger().Info("Calculated computer DN", map[string]any{"dn": e.computerDN})
	return nil
}

// resolveAccountLocation runs OU validation or discovery, container
// lookup and DN calculation, unless the caller pinned the DN directly.
func (e *Session) resolveAccountLocation(ctx context.Context) error {
	if e.computerDN != "" {
		return nil
	}

	if e.preferredOU != "" {
		if err := e.validatePreferredOU(ctx); err != nil {
			return err
		}
	} else {
		if err := e.lookupPreferredOU(ctx); err != nil {
			return err
		}
	}

	if err := e.lookupComputerContainer(ctx); err != nil {
		return err
	}

	return e.calcComputerAccount()
}
