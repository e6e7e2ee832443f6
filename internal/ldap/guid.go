package ldap

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// WellKnownComputersGUID identifies the default computer container in the
// wellKnownObjects attribute of a domain or organizational unit.
var WellKnownComputersGUID = uuid.MustParse("aa312825-7688-11d1-aded-00c04fd8d5cd")

// WellKnownObject is one parsed value of the wellKnownObjects attribute.
// Values are DN-with-binary strings of the form "B:32:<hex GUID>:<DN>".
type WellKnownObject struct {
	GUID uuid.UUID
	DN   string
}

var wellKnownObjectRegex = regexp.MustCompile(`^B:32:([0-9a-fA-F]{32}):(.+)$`)

// ParseWellKnownObject parses a single wellKnownObjects value. Values
// that are not in DN-with-binary form yield an error.
func ParseWellKnownObject(value string) (*WellKnownObject, error) {
	m := wellKnownObjectRegex.FindStringSubmatch(value)
	if m == nil {
		return nil, fmt.Errorf("not a DN-with-binary value: %q", value)
	}

	guid, err := parseCompactGUID(m[1])
	if err != nil {
		return nil, fmt.Errorf("invalid GUID in wellKnownObjects value %q: %w", value, err)
	}

	return &WellKnownObject{GUID: guid, DN: m[2]}, nil
}

// FindWellKnownContainer scans wellKnownObjects values for the container
// tagged with the given GUID and returns its DN, or "" if absent.
func FindWellKnownContainer(values []string, guid uuid.UUID) string {
	for _, value := range values {
		wko, err := ParseWellKnownObject(value)
		if err != nil {
			continue
		}
		if wko.GUID == guid {
			return wko.DN
		}
	}
	return ""
}

// Compact GUID format: 32 hex digits, no hyphens.
var compactGUIDRegex = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

// parseCompactGUID parses a 32-hex-digit GUID as stored in DN-with-binary
// attribute values. Unlike objectGUID, these values are plain sequential
// hex, not the AD mixed-endian binary layout.
func parseCompactGUID(s string) (uuid.UUID, error) {
	if !compactGUIDRegex.MatchString(s) {
		return uuid.Nil, fmt.Errorf("not a compact GUID: %q", s)
	}
	hyphenated := strings.ToLower(fmt.Sprintf("%s-%s-%s-%s-%s",
		s[0:8], s[8:12], s[12:16], s[16:20], s[20:32]))
	return uuid.Parse(hyphenated)
}

// IsValidGUID checks if a string is a valid GUID in hyphenated or compact form.
func IsValidGUID(s string) bool {
	if s == "" {
		return false
	}
	if compactGUIDRegex.MatchString(s) {
		return true
	}
	_, err := uuid.Parse(s)
	return err == nil
}
