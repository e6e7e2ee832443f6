package krb5

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// HostPasswordLength is the generated machine password length. Matches
// what Windows itself provisions for computer accounts.
const HostPasswordLength = 120

// GenerateHostPassword produces a random machine-account password of the
// given length. The MS documentation says their servers only use ASCII
// characters between 32 and 122 inclusive, so random bytes outside that
// range are filtered out and regenerated.
func GenerateHostPassword(length int) (string, error) {
	password := make([]byte, 0, length)
	buffer := make([]byte, length)

	for len(password) < length {
		if _, err := rand.Read(buffer[:length-len(password)]); err != nil {
			return "", fmt.Errorf("couldn't generate random password material: %w", err)
		}
		password = appendPasswordChars(password, buffer[:length-len(password)], length)
	}

	return string(password), nil
}

func appendPasswordChars(dst, src []byte, limit int) []byte {
	for _, c := range src {
		if c >= 32 && c <= 122 && len(dst) < limit {
			dst = append(dst, c)
		}
	}
	return dst
}

// ResetPassword derives the well-known default machine password for a
// computer name: the name lowercased, truncated to 14 bytes. This is
// what AD sets when an administrator resets a computer account.
func ResetPassword(computerName string) string {
	password := strings.ToLower(strings.TrimSuffix(computerName, "$"))
	if len(password) > 14 {
		password = password[:14]
	}
	return password
}

// WipeBytes scrubs key material in place.
func WipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
