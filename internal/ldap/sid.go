package ldap

import (
	"fmt"

	"github.com/bwmarrin/go-objectsid"
	"github.com/go-ldap/ldap/v3"
)

// DecodeSID converts a binary objectSid value to its S-1-5-21-... string form.
func DecodeSID(binarySID []byte) (string, error) {
	if len(binarySID) == 0 {
		return "", fmt.Errorf("binary SID cannot be empty")
	}
	sid := objectsid.Decode(binarySID)
	return sid.String(), nil
}

// ExtractSID extracts the objectSid from an LDAP entry as a string.
// Returns "" if the entry carries no (or a malformed) objectSid.
func ExtractSID(entry *ldap.Entry) string {
	if entry == nil {
		return ""
	}

	sidBytes := entry.GetRawAttributeValue("objectSid")
	if len(sidBytes) == 0 {
		return ""
	}

	sid, err := DecodeSID(sidBytes)
	if err != nil {
		return ""
	}
	return sid
}
