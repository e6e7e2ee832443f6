package krb5

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jcmturner/gokrb5/v8/crypto"
	"github.com/jcmturner/gokrb5/v8/keytab"
)

// DefaultKeytabPath returns the keytab the host keys are written to
// when the caller supplies none.
func DefaultKeytabPath() string {
	if name := os.Getenv("KRB5_KTNAME"); name != "" {
		if len(name) > 5 && name[:5] == "FILE:" {
			return name[5:]
		}
		return name
	}
	return "/etc/krb5.keytab"
}

// OpenKeytab loads a keytab file, or returns an empty keytab when the
// file does not exist yet.
func OpenKeytab(path string) (*keytab.Keytab, error) {
	kt, err := keytab.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return keytab.New(), nil
		}
		return nil, fmt.Errorf("couldn't open keytab %s: %w", path, err)
	}
	return kt, nil
}

// WriteKeytab marshals the keytab back to disk. Keytabs carry key
// material, so the file is created with mode 0600 (owner only).
func WriteKeytab(kt *keytab.Keytab, path string) error {
	b, err := kt.Marshal()
	if err != nil {
		return fmt.Errorf("couldn't marshal keytab: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("couldn't write keytab %s: %w", path, err)
	}
	return nil
}

// PruneKeytab removes every entry for the given principal whose version
// is not kvno-1. Entries one version behind are kept so existing
// sessions keep working across the key change; the current version is
// removed too and rewritten from the new password afterwards.
// Returns the number of entries removed.
func PruneKeytab(kt *keytab.Keytab, principal Principal, kvno uint32) int {
	kept := kt.Entries[:0]
	removed := 0

	for i := range kt.Entries {
		e := kt.Entries[i]
		matches := e.Principal.Realm == principal.Realm &&
			componentsEqual(e.Principal.Components, principal.Name.NameString)
		if matches && e.KVNO+1 != kvno {
			removed++
			continue
		}
		kept = append(kept, e)
	}

	kt.Entries = kept
	return removed
}

func componentsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// AddKeytabEntries writes one entry per enctype for the principal at the
// given kvno, deriving each key from the password with the supplied
// salt. gokrb5's AddEntry always uses the default principal salt, so
// the key derived with the supplied salt is patched into every entry
// afterwards.
func AddKeytabEntries(kt *keytab.Keytab, principal Principal, kvno uint32, password string, enctypes []int32, salt Salt) error {
	ts := time.Now()

	for _, enctype := range enctypes {
		et, err := crypto.GetEtype(enctype)
		if err != nil {
			return fmt.Errorf("unsupported encryption type %d: %w", enctype, err)
		}

		key, err := et.StringToKey(password, salt.Value, et.GetDefaultStringToKeyParams())
		if err != nil {
			return fmt.Errorf("couldn't derive %s key: %w", EnctypeName(enctype), err)
		}

		if err := kt.AddEntry(principal.SPNString(), principal.Realm, password, ts, uint8(kvno), enctype); err != nil {
			return fmt.Errorf("couldn't add keytab entry for %s: %w", principal, err)
		}

		e := &kt.Entries[len(kt.Entries)-1]
		e.KVNO = kvno
		e.Key.KeyValue = key
	}

	return nil
}

// KeytabKey derives the key for one enctype from the password and salt,
// the same derivation AddKeytabEntries applies to each entry.
func KeytabKey(password string, enctype int32, salt Salt) ([]byte, error) {
	et, err := crypto.GetEtype(enctype)
	if err != nil {
		return nil, err
	}
	return et.StringToKey(password, salt.Value, et.GetDefaultStringToKeyParams())
}
