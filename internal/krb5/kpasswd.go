package krb5

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jcmturner/gofork/encoding/asn1"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/crypto"
	"github.com/jcmturner/gokrb5/v8/iana"
	"github.com/jcmturner/gokrb5/v8/iana/msgtype"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/types"
)

// kpasswd result codes, RFC 3244 §2.
const (
	KPasswdSuccess          = 0
	KPasswdMalformed        = 1
	KPasswdHardError        = 2
	KPasswdAuthError        = 3
	KPasswdSoftError        = 4
	KPasswdAccessDenied     = 5
	KPasswdBadVersion       = 6
	KPasswdInitialFlagNeeded = 7
)

// kpasswdProtocolVersion is the set-password protocol number used by
// Windows (and by MIT for krb5_set_password). The request body is a
// ChangePasswdData sequence rather than a bare octet string.
const kpasswdProtocolVersion = 0xff80

const kpasswdPort = 464

// changePasswdData is the request body of the set-password protocol.
//
//	ChangePasswdData ::= SEQUENCE {
//	    newpasswd  [0] OCTET STRING,
//	    targname   [1] PrincipalName OPTIONAL,
//	    targrealm  [2] Realm OPTIONAL
//	}
type changePasswdData struct {
	NewPasswd []byte              `asn1:"explicit,tag:0"`
	TargName  types.PrincipalName `asn1:"optional,explicit,tag:1"`
	TargRealm string              `asn1:"generalstring,optional,explicit,tag:2"`
}

// KPasswdResult is the outcome of a kpasswd exchange.
type KPasswdResult struct {
	Code    uint16
	Message string
}

// Succeeded reports whether the server accepted the new password.
func (r KPasswdResult) Succeeded() bool {
	return r.Code == KPasswdSuccess
}

// SetPassword performs the RFC 3244 set-password exchange for the
// target principal, authenticated with the given client's credentials.
// The client may be logged in as an administrator (administrative
// reset) or as the target itself (password change); either way the
// exchange runs against the realm's kpasswd service on port 464.
//
// A transport or library failure is returned as an error; a protocol
// refusal is reported in the result with the server's message.
func SetPassword(cl *krb5client.Client, target Principal, newPassword string) (KPasswdResult, error) {
	tkt, sessionKey, err := cl.GetServiceTicket("kadmin/changepw")
	if err != nil {
		return KPasswdResult{}, fmt.Errorf("couldn't get change password ticket: %w", err)
	}

	msg, subKey, err := buildKPasswdRequest(cl.Credentials.CName(), cl.Credentials.Domain(), target, newPassword, tkt, sessionKey)
	if err != nil {
		return KPasswdResult{}, err
	}

	reply, err := sendKPasswd(cl, target.Realm, msg)
	if err != nil {
		return KPasswdResult{}, err
	}

	return parseKPasswdReply(reply, subKey)
}

// buildKPasswdRequest assembles the framed kpasswd request: AP-REQ for
// the caller, KRB-PRIV holding the ChangePasswdData encrypted under a
// fresh authenticator subkey. The subkey is returned for decrypting the
// reply.
func buildKPasswdRequest(cname types.PrincipalName, crealm string, target Principal, newPassword string, tkt messages.Ticket, sessionKey types.EncryptionKey) ([]byte, types.EncryptionKey, error) {
	auth, err := types.NewAuthenticator(crealm, cname)
	if err != nil {
		return nil, types.EncryptionKey{}, fmt.Errorf("couldn't create authenticator: %w", err)
	}
	et, err := crypto.GetEtype(sessionKey.KeyType)
	if err != nil {
		return nil, types.EncryptionKey{}, fmt.Errorf("unsupported session key type %d: %w", sessionKey.KeyType, err)
	}
	if err := auth.GenerateSeqNumberAndSubKey(sessionKey.KeyType, et.GetKeyByteSize()); err != nil {
		return nil, types.EncryptionKey{}, fmt.Errorf("couldn't generate authenticator subkey: %w", err)
	}
	subKey := auth.SubKey

	apReq, err := messages.NewAPReq(tkt, sessionKey, auth)
	if err != nil {
		return nil, types.EncryptionKey{}, fmt.Errorf("couldn't build AP-REQ: %w", err)
	}
	apReqBytes, err := apReq.Marshal()
	if err != nil {
		return nil, types.EncryptionKey{}, fmt.Errorf("couldn't marshal AP-REQ: %w", err)
	}

	body, err := asn1.Marshal(changePasswdData{
		NewPasswd: []byte(newPassword),
		TargName:  target.Name,
		TargRealm: target.Realm,
	})
	if err != nil {
		return nil, types.EncryptionKey{}, fmt.Errorf("couldn't marshal password data: %w", err)
	}

	priv := messages.KRBPriv{
		PVNO:    iana.PVNO,
		MsgType: msgtype.KRB_PRIV,
		DecryptedEncPart: messages.EncKrbPrivPart{
			UserData:       body,
			Timestamp:      auth.CTime,
			Usec:           auth.Cusec,
			SequenceNumber: auth.SeqNumber,
		},
	}
	if err := priv.EncryptEncPart(subKey); err != nil {
		return nil, types.EncryptionKey{}, fmt.Errorf("couldn't encrypt password data: %w", err)
	}
	privBytes, err := priv.Marshal()
	if err != nil {
		return nil, types.EncryptionKey{}, fmt.Errorf("couldn't marshal KRB-PRIV: %w", err)
	}

	total := 6 + len(apReqBytes) + len(privBytes)
	msg := make([]byte, 6, total)
	binary.BigEndian.PutUint16(msg[0:2], uint16(total))
	binary.BigEndian.PutUint16(msg[2:4], kpasswdProtocolVersion)
	binary.BigEndian.PutUint16(msg[4:6], uint16(len(apReqBytes)))
	msg = append(msg, apReqBytes...)
	msg = append(msg, privBytes...)

	return msg, subKey, nil
}

// sendKPasswd delivers the request to the realm's kpasswd service,
// trying UDP first and falling back to TCP. The kpasswd servers are the
// realm's KDCs on port 464.
func sendKPasswd(cl *krb5client.Client, realm string, msg []byte) ([]byte, error) {
	count, kdcs, err := cl.Config.GetKDCs(realm, true)
	if err != nil || count < 1 {
		return nil, fmt.Errorf("couldn't locate kpasswd servers for realm %s: %w", realm, err)
	}

	var lastErr error
	for i := 1; i <= count; i++ {
		host := kdcs[i]
		if h, _, splitErr := net.SplitHostPort(host); splitErr == nil {
			host = h
		}
		addr := net.JoinHostPort(host, fmt.Sprintf("%d", kpasswdPort))

		reply, err := exchangeUDP(addr, msg)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		reply, err = exchangeTCP(addr, msg)
		if err == nil {
			return reply, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("kpasswd exchange failed: %w", lastErr)
}

func exchangeUDP(addr string, msg []byte) ([]byte, error) {
	conn, err := net.DialTimeout("udp", addr, 10*time.Second)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(15 * time.Second))

	if _, err := conn.Write(msg); err != nil {
		return nil, err
	}

	reply := make([]byte, 4096)
	n, err := conn.Read(reply)
	if err != nil {
		return nil, err
	}
	return reply[:n], nil
}

func exchangeTCP(addr string, msg []byte) ([]byte, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(15 * time.Second))

	// Over TCP the message carries a 4-octet length prefix.
	prefixed := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(prefixed, uint32(len(msg)))
	copy(prefixed[4:], msg)

	if _, err := conn.Write(prefixed); err != nil {
		return nil, err
	}

	var lenBuf [4]byte
	if _, err := readFull(conn, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 || length > 1<<20 {
		return nil, fmt.Errorf("invalid kpasswd reply length %d", length)
	}

	reply := make([]byte, length)
	if _, err := readFull(conn, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// parseKPasswdReply decodes the kpasswd reply: either a framed
// AP-REP + KRB-PRIV pair whose user data is the 16-bit result code plus
// an optional message, or a bare KRB-ERROR.
func parseKPasswdReply(reply []byte, subKey types.EncryptionKey) (KPasswdResult, error) {
	// A KRB-ERROR comes back unframed (ASN.1 APPLICATION 30).
	if len(reply) > 0 && reply[0] == 0x7e {
		var krbErr messages.KRBError
		if err := krbErr.Unmarshal(reply); err == nil {
			return KPasswdResult{}, fmt.Errorf("kpasswd server returned an error: %s", krbErr.Error())
		}
	}

	if len(reply) < 6 {
		return KPasswdResult{}, fmt.Errorf("kpasswd reply too short (%d bytes)", len(reply))
	}

	apRepLen := int(binary.BigEndian.Uint16(reply[4:6]))
	if apRepLen == 0 || 6+apRepLen > len(reply) {
		// An error may also arrive framed with a zero AP-REP length.
		var krbErr messages.KRBError
		if err := krbErr.Unmarshal(reply[6:]); err == nil {
			return KPasswdResult{}, fmt.Errorf("kpasswd server returned an error: %s", krbErr.Error())
		}
		return KPasswdResult{}, fmt.Errorf("malformed kpasswd reply")
	}

	privBytes := reply[6+apRepLen:]
	var priv messages.KRBPriv
	if err := priv.Unmarshal(privBytes); err != nil {
		return KPasswdResult{}, fmt.Errorf("couldn't parse kpasswd reply: %w", err)
	}
	if err := priv.DecryptEncPart(subKey); err != nil {
		return KPasswdResult{}, fmt.Errorf("couldn't decrypt kpasswd reply: %w", err)
	}

	userData := priv.DecryptedEncPart.UserData
	if len(userData) < 2 {
		return KPasswdResult{}, fmt.Errorf("kpasswd reply carries no result code")
	}

	result := KPasswdResult{
		Code:    binary.BigEndian.Uint16(userData[:2]),
		Message: resultMessage(userData[2:]),
	}
	return result, nil
}

// resultMessage extracts the printable portion of the result data.
// Servers send either a UTF-8 string or Active Directory's binary
// policy blob; the latter is not worth decoding for a log line.
func resultMessage(data []byte) string {
	s := strings.TrimRight(string(data), "\x00")
	for _, r := range s {
		if r < 32 && r != '\n' && r != '\t' {
			return ""
		}
	}
	return s
}

// ResultCodeMessage maps kpasswd result codes to short descriptions.
func ResultCodeMessage(code uint16) string {
	switch code {
	case KPasswdSuccess:
		return "success"
	case KPasswdMalformed:
		return "malformed request"
	case KPasswdHardError:
		return "server error"
	case KPasswdAuthError:
		return "authentication error"
	case KPasswdSoftError:
		return "password rejected"
	case KPasswdAccessDenied:
		return "access denied"
	case KPasswdBadVersion:
		return "bad protocol version"
	case KPasswdInitialFlagNeeded:
		return "initial ticket required"
	default:
		return fmt.Sprintf("result code %d", code)
	}
}
