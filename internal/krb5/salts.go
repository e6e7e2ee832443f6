package krb5

import (
	"strings"
)

// Salt is one candidate string-to-key salt.
type Salt struct {
	Name  string // for logging
	Value string // the salt itself; "" means no salt
}

// PrincipalSalt builds the standard Kerberos salt for a principal:
// the realm followed by the name components, no separators.
func PrincipalSalt(p Principal) Salt {
	return Salt{
		Name:  "principal",
		Value: p.Realm + strings.Join(p.Name.NameString, ""),
	}
}

// W2K3Salt builds the Windows 2003 computer-account salt:
//
//	<REALM> + "host" + <name lowercased, no trailing $> + "." + <realm lowercased>
//
// Windows derives machine keys with this salt rather than the standard
// principal salt, which is why salt discovery is needed at all.
func W2K3Salt(realm, computerName string) Salt {
	name := strings.ToLower(strings.TrimSuffix(computerName, "$"))
	return Salt{
		Name:  "w2k3",
		Value: strings.ToUpper(realm) + "host" + name + "." + strings.ToLower(realm),
	}
}

// NullSalt is the empty salt, tried last.
func NullSalt() Salt {
	return Salt{Name: "null"}
}

// CandidateSalts builds the salt candidates for a principal in probe
// order: standard principal salt, Windows 2003 computer-account salt,
// null salt.
func CandidateSalts(p Principal, computerName string) []Salt {
	return []Salt{
		PrincipalSalt(p),
		W2K3Salt(p.Realm, computerName),
		NullSalt(),
	}
}
