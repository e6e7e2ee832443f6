package krb5

import (
	"fmt"
	"strings"

	"github.com/jcmturner/gokrb5/v8/iana/nametype"
	"github.com/jcmturner/gokrb5/v8/types"
)

// Principal is a Kerberos principal with its realm.
type Principal struct {
	Name  types.PrincipalName
	Realm string
}

// ParsePrincipal parses a principal string ("NAME$", "HOST/name", or
// either with an "@REALM" suffix) and forces the given realm onto the
// result, mirroring how enrollment reparents every principal into the
// domain realm regardless of what the input carried.
func ParsePrincipal(s, realm string) (Principal, error) {
	if s == "" {
		return Principal{}, fmt.Errorf("empty principal")
	}

	name := s
	if at := strings.LastIndex(s, "@"); at != -1 {
		name = s[:at]
		if name == "" {
			return Principal{}, fmt.Errorf("invalid principal %q", s)
		}
	}

	components := strings.Split(name, "/")
	for _, c := range components {
		if c == "" {
			return Principal{}, fmt.Errorf("invalid principal %q", s)
		}
	}

	nt := int32(nametype.KRB_NT_PRINCIPAL)
	if len(components) > 1 {
		nt = nametype.KRB_NT_SRV_HST
	}

	return Principal{
		Name: types.PrincipalName{
			NameType:   nt,
			NameString: components,
		},
		Realm: strings.ToUpper(realm),
	}, nil
}

// String renders the principal in the usual name@REALM form.
func (p Principal) String() string {
	return fmt.Sprintf("%s@%s", p.SPNString(), p.Realm)
}

// SPNString renders the principal without the realm.
func (p Principal) SPNString() string {
	return strings.Join(p.Name.NameString, "/")
}

// Equal compares realm and components. Name type is not significant,
// matching the semantics of krb5_principal_compare.
func (p Principal) Equal(o Principal) bool {
	if p.Realm != o.Realm {
		return false
	}
	if len(p.Name.NameString) != len(o.Name.NameString) {
		return false
	}
	for i := range p.Name.NameString {
		if p.Name.NameString[i] != o.Name.NameString[i] {
			return false
		}
	}
	return true
}
