package enroll

import (
	"context"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"

	adldap "github.com/isometry/adenroll/internal/ldap"
)

// userAccountControl for new computer objects:
// WORKSTATION_TRUST_ACCOUNT | DONT_EXPIRE_PASSWD.
const computerAccountControl = "69632"

// accountMods builds the target attribute set for the computer object.
// Order is stable so log lines are predictable.
func (e *Session) accountMods() []attributeMod {
	return []attributeMod{
		{name: "objectClass", values: []string{"computer"}},
		{name: "sAMAccountName", values: []string{e.computerSAM}},
		{name: "userAccountControl", values: []string{computerAccountControl}},
	}
}

type attributeMod struct {
	name   string
	values []string
}

// createOrUpdateComputerAccount reconciles the computer object: create
// it when absent, or narrow the mods to actual differences and replace
// them, honoring the overwrite policy.
func (e *Session) createOrUpdateComputerAccount(ctx context.Context, allowOverwrite bool) error {
	mods := e.accountMods()
	attrs := make([]string, len(mods))
	for i, mod := range mods {
		attrs[i] = mod.name
	}

	result, err := e.conn.Directory().Search(ctx, &adldap.SearchRequest{
		BaseDN:     e.computerDN,
		Scope:      adldap.ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: attrs,
	})

	switch {
	case err == nil && len(result.Entries) > 0:
		if !allowOverwrite {
			return configError(nil, "the computer account %s already exists", e.computerName)
		}
		return e.modifyComputerAccount(ctx, filterNecessaryMods(result.Entries[0], mods))

	case err == nil || adldap.IsNoSuchObject(err):
		return e.createComputerAccount(ctx, mods)

	default:
		e.conn.SetLastError(err.Error())
		return directoryError(err, "couldn't lookup computer account: %s", e.computerDN)
	}
}

// createComputerAccount adds the entry. Mods with no values are pruned
// first; AD rejects blank attributes.
func (e *Session) createComputerAccount(ctx context.Context, mods []attributeMod) error {
	log := e.conn.Logger()

	attributes := make(map[string][]string, len(mods))
	names := make([]string, 0, len(mods))
	for _, mod := range mods {
		if len(mod.values) == 0 || (len(mod.values) == 1 && mod.values[0] == "") {
			continue
		}
		attributes[mod.name] = mod.values
		names = append(names, mod.name)
	}

	log.Info("Creating computer account", map[string]any{
		"dn":         e.computerDN,
		"attributes": strings.Join(names, ", "),
	})

	err := e.conn.Directory().Add(ctx, &adldap.AddRequest{
		DN:         e.computerDN,
		Attributes: attributes,
	})

	// AD returns OBJECT_CLASS_VIOLATION when the caller lacks
	// permission to populate hidden attributes on the new object, so
	// both map to a credentials problem.
	if adldap.IsInsufficientAccess(err) || adldap.IsObjectClassViolation(err) {
		e.conn.SetLastError(err.Error())
		return credentialsError(err, "insufficient permissions to modify computer account: %s", e.computerDN)
	}
	if err != nil {
		e.conn.SetLastError(err.Error())
		return directoryError(err, "couldn't create computer account: %s", e.computerDN)
	}

	log.Info("Created computer account", map[string]any{"dn": e.computerDN})
	return nil
}

// modifyComputerAccount replaces the attributes that differ. An empty
// mod set is success without a directory write.
func (e *Session) modifyComputerAccount(ctx context.Context, mods []attributeMod) error {
	log := e.conn.Logger()

	if len(mods) == 0 {
		return nil
	}

	replace := make(map[string][]string, len(mods))
	names := make([]string, 0, len(mods))
	for _, mod := range mods {
		replace[mod.name] = mod.values
		names = append(names, mod.name)
	}

	log.Info("Modifying computer account attributes", map[string]any{
		"dn":         e.computerDN,
		"attributes": strings.Join(names, ", "),
	})

	err := e.conn.Directory().Modify(ctx, &adldap.ModifyRequest{
		DN:                e.computerDN,
		ReplaceAttributes: replace,
	})

	if adldap.IsInsufficientAccess(err) {
		e.conn.SetLastError(err.Error())
		return credentialsError(err, "insufficient permissions to modify computer account: %s", e.computerDN)
	}
	if err != nil {
		e.conn.SetLastError(err.Error())
		return directoryError(err, "couldn't modify computer account: %s", e.computerDN)
	}

	log.Info("Updated existing computer account", map[string]any{"dn": e.computerDN})
	return nil
}

// filterNecessaryMods retains only the mods with at least one desired
// value the entry does not hold (see haveMod).
func filterNecessaryMods(entry *goldap.Entry, mods []attributeMod) []attributeMod {
	if entry == nil {
		return mods
	}

	necessary := mods[:0]
	for _, mod := range mods {
		if !haveMod(entry.GetAttributeValues(mod.name), mod.values) {
			necessary = append(necessary, mod)
		}
	}
	return necessary
}

// haveMod reports whether the entry already carries every desired value
// for the attribute, compared case-sensitively and without regard to
// order. Attribute definitions rule; server casing is preserved. The
// containment check (rather than strict equality) matters for
// objectClass, where the directory reports the whole class chain.
func haveMod(current, desired []string) bool {
	if len(desired) == 0 {
		return true
	}
	if len(current) == 0 {
		return false
	}

	have := make(map[string]struct{}, len(current))
	for _, v := range current {
		have[v] = struct{}{}
	}
	for _, v := range desired {
		if _, ok := have[v]; !ok {
			return false
		}
	}
	return true
}
