package krb5

import (
	"fmt"
	"strconv"

	"github.com/jcmturner/gokrb5/v8/iana/etypeID"
)

// Default enctype order for new keytab entries, strongest first. DES
// variants are retained for parity with what AD accepts historically;
// modern KDCs will refuse them.
var DefaultEnctypes = []int32{
	etypeID.AES256_CTS_HMAC_SHA1_96,
	etypeID.AES128_CTS_HMAC_SHA1_96,
	etypeID.DES3_CBC_SHA1_KD,
	etypeID.RC4_HMAC,
	etypeID.DES_CBC_MD5,
	etypeID.DES_CBC_CRC,
}

// msDS-supportedEncryptionTypes bit assignments.
const (
	maskDESCRC = 0x01
	maskDESMD5 = 0x02
	maskRC4    = 0x04
	maskAES128 = 0x08
	maskAES256 = 0x10
)

// maskTable maps mask bits to enctypes in the order the bits are
// assigned from strongest to weakest.
var maskTable = []struct {
	bit     int64
	enctype int32
}{
	{maskAES256, etypeID.AES256_CTS_HMAC_SHA1_96},
	{maskAES128, etypeID.AES128_CTS_HMAC_SHA1_96},
	{maskRC4, etypeID.RC4_HMAC},
	{maskDESMD5, etypeID.DES_CBC_MD5},
	{maskDESCRC, etypeID.DES_CBC_CRC},
}

// ParseEnctypeMask parses a decimal msDS-supportedEncryptionTypes value
// into an enctype list, strongest first. Returns an error when the
// value is not a number or no known bit is set.
func ParseEnctypeMask(value string) ([]int32, error) {
	mask, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption type value %q: %w", value, err)
	}

	var enctypes []int32
	for _, m := range maskTable {
		if mask&m.bit != 0 {
			enctypes = append(enctypes, m.enctype)
		}
	}

	if len(enctypes) == 0 {
		return nil, fmt.Errorf("no supported encryption types in value %q", value)
	}
	return enctypes, nil
}

// FormatEnctypeMask formats an enctype list as the decimal
// msDS-supportedEncryptionTypes bitfield. Enctypes with no assigned bit
// (DES3) contribute nothing. A zero mask yields an error: the account
// would advertise no usable encryption type.
func FormatEnctypeMask(enctypes []int32) (string, error) {
	var mask int64
	for _, enctype := range enctypes {
		for _, m := range maskTable {
			if m.enctype == enctype {
				mask |= m.bit
				break
			}
		}
	}

	if mask == 0 {
		return "", fmt.Errorf("none of the desired encryption types can be advertised in the directory")
	}
	return strconv.FormatInt(mask, 10), nil
}

// EnctypeName returns a human-readable name for known enctypes.
func EnctypeName(enctype int32) string {
	switch enctype {
	case etypeID.AES256_CTS_HMAC_SHA1_96:
		return "aes256-cts-hmac-sha1-96"
	case etypeID.AES128_CTS_HMAC_SHA1_96:
		return "aes128-cts-hmac-sha1-96"
	case etypeID.DES3_CBC_SHA1_KD:
		return "des3-cbc-sha1"
	case etypeID.RC4_HMAC:
		return "arcfour-hmac"
	case etypeID.DES_CBC_MD5:
		return "des-cbc-md5"
	case etypeID.DES_CBC_CRC:
		return "des-cbc-crc"
	default:
		return fmt.Sprintf("enctype-%d", enctype)
	}
}
