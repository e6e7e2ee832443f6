package enroll

import (
	"strings"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/jcmturner/gokrb5/v8/keytab"

	"github.com/isometry/adenroll/internal/krb5"
)

// Session aggregates the configuration, derived state and collaborator
// handles of one enrollment. Sessions are single-threaded; a session
// must not be shared between goroutines.
//
// The host name, computer name, password, service principals and
// keytab enctypes carry a companion explicit flag that distinguishes
// "unset, derive a value" from "set by the caller, leave alone".
// clearState, run at the start of every join, lists which values are
// reset and which are kept.
type Session struct {
	refs int
	conn Conn

	hostFQDN         string
	hostFQDNExplicit bool

	computerName         string
	computerNameExplicit bool

	computerSAM string

	computerPassword         []byte
	computerPasswordExplicit bool
	resetPassword            bool

	computerPrincipal    krb5.Principal
	hasComputerPrincipal bool

	preferredOU          string
	preferredOUValidated bool
	computerContainer    string
	computerDN           string
	computerAttributes   *goldap.Entry

	serviceNames              []string
	servicePrincipals         []string
	servicePrincipalsExplicit bool

	kvno uint32

	keytabName       string
	keytab           *keytab.Keytab
	keytabPrincipals []krb5.Principal

	keytabEnctypes         []int32
	keytabEnctypesExplicit bool

	whichSalt int
}

// NewSession creates a session bound to a connection.
func NewSession(conn Conn) *Session {
	return &Session{
		refs:      1,
		conn:      conn,
		whichSalt: -1,
	}
}

// Ref increments the session reference count.
func (e *Session) Ref() *Session {
	e.refs++
	return e
}

// Unref decrements the reference count and tears the session down when
// it reaches zero. Teardown scrubs the password material and drops the
// keytab handle; it is safe to call on an already-failed session.
func (e *Session) Unref() {
	if e == nil {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}

	e.clearState()
	e.wipePassword()
	e.serviceNames = nil
	e.servicePrincipals = nil
	e.keytabEnctypes = nil
	e.preferredOU = ""
	e.computerContainer = ""
	e.computerDN = ""
	e.keytabName = ""
}

func (e *Session) wipePassword() {
	krb5.WipeBytes(e.computerPassword)
	e.computerPassword = nil
}

// clearState resets per-run state at the start of every join: the
// keytab handle and principals, the SAM name and computer principal,
// the computer DN, kvno, discovered salt and cached account entry, and
// the password and service principals unless the caller set them. The
// DN and kvno are reset even when set through SetComputerDN or SetKvno.
// The host name, computer name, OU, container, keytab name, service
// names and keytab enctypes are kept, whether the caller set them or an
// earlier run derived them.
func (e *Session) clearState() {
	e.keytabPrincipals = nil
	e.keytab = nil

	e.computerSAM = ""
	e.hasComputerPrincipal = false
	e.computerPrincipal = krb5.Principal{}

	if !e.computerPasswordExplicit {
		e.wipePassword()
	}

	if !e.servicePrincipalsExplicit {
		e.servicePrincipals = nil
	}

	e.computerDN = ""
	e.kvno = 0
	e.whichSalt = -1
	e.computerAttributes = nil
}

// Conn returns the connection the session is bound to.
func (e *Session) Conn() Conn {
	return e.conn
}

// HostFQDN returns the target host's fully qualified name.
func (e *Session) HostFQDN() string {
	return e.hostFQDN
}

// SetHostFQDN sets the host name to enroll. An empty value suppresses
// derivation: the account is enrolled without a dNSHostName.
func (e *Session) SetHostFQDN(value string) {
	e.hostFQDN = value
	e.hostFQDNExplicit = true
}

// ComputerName returns the short (NetBIOS-style) computer name.
func (e *Session) ComputerName() string {
	return e.computerName
}

// SetComputerName sets the short computer name explicitly.
func (e *Session) SetComputerName(value string) {
	e.computerName = value
	e.computerNameExplicit = value != ""
}

// ComputerSAM returns the derived sAMAccountName ("NAME$").
func (e *Session) ComputerSAM() string {
	return e.computerSAM
}

// ComputerPassword returns the current cleartext computer password.
func (e *Session) ComputerPassword() string {
	return string(e.computerPassword)
}

// SetComputerPassword sets an explicit computer password. Explicit
// passwords survive state resets between retries.
func (e *Session) SetComputerPassword(password string) {
	e.wipePassword()
	if password != "" {
		e.computerPassword = []byte(password)
	}
	e.computerPasswordExplicit = password != ""
}

// ResetComputerPassword arranges for the deterministic reset password
// derived from the computer name to be used instead of a random one.
func (e *Session) ResetComputerPassword() {
	e.wipePassword()
	e.computerPasswordExplicit = false
	e.resetPassword = true
}

// ComputerPrincipal returns the computer account's Kerberos principal.
func (e *Session) ComputerPrincipal() (krb5.Principal, bool) {
	return e.computerPrincipal, e.hasComputerPrincipal
}

// PreferredOU returns the organizational unit the account is placed under.
func (e *Session) PreferredOU() string {
	return e.preferredOU
}

// SetPreferredOU sets the organizational unit DN. Validation state is
// reset whenever the OU changes.
func (e *Session) SetPreferredOU(value string) {
	e.preferredOUValidated = false
	e.preferredOU = value
}

// ComputerContainer returns the container DN holding the computer object.
func (e *Session) ComputerContainer() string {
	return e.computerContainer
}

// SetComputerContainer overrides the container lookup.
func (e *Session) SetComputerContainer(value string) {
	e.computerContainer = value
}

// ComputerDN returns the distinguished name of the computer object.
func (e *Session) ComputerDN() string {
	return e.computerDN
}

// SetComputerDN sets the account DN; while it is set, location
// resolution skips OU and container discovery. Join resets the DN
// before its first stage, so a value set before Join is not used.
func (e *Session) SetComputerDN(value string) {
	e.computerDN = value
}

// ServiceNames returns the service name list, deriving the default if
// unset.
func (e *Session) ServiceNames() []string {
	_ = e.ensureServiceNames()
	return e.serviceNames
}

// SetServiceNames replaces the service name list.
func (e *Session) SetServiceNames(values []string) {
	e.serviceNames = append([]string(nil), values...)
}

// AddServiceName appends one service name.
func (e *Session) AddServiceName(value string) {
	e.serviceNames = append(e.serviceNames, value)
}

// ServicePrincipals returns the derived or explicit service principal
// names.
func (e *Session) ServicePrincipals() []string {
	return e.servicePrincipals
}

// SetServicePrincipals replaces the service principal list. Explicit
// lists survive state resets.
func (e *Session) SetServicePrincipals(values []string) {
	e.servicePrincipals = append([]string(nil), values...)
	e.servicePrincipalsExplicit = values != nil
}

// Kvno returns the computer account's current key version number.
func (e *Session) Kvno() uint32 {
	return e.kvno
}

// SetKvno sets the key version number. Join resets it to zero before
// its first stage and reads it from the directory, so a value set
// before Join is not used.
func (e *Session) SetKvno(value uint32) {
	e.kvno = value
}

// KeytabName returns the keytab path entries are written to.
func (e *Session) KeytabName() string {
	return e.keytabName
}

// SetKeytabName sets the keytab path. Any open keytab handle is dropped.
func (e *Session) SetKeytabName(value string) {
	e.keytabName = value
	e.keytab = nil
}

// Keytab exposes the open keytab, if stage 4.6 has opened one.
func (e *Session) Keytab() *keytab.Keytab {
	return e.keytab
}

// KeytabEnctypes returns the enctypes new keytab entries are derived
// for, falling back to the default set.
func (e *Session) KeytabEnctypes() []int32 {
	if e.keytabEnctypes != nil {
		return e.keytabEnctypes
	}
	return krb5.DefaultEnctypes
}

// SetKeytabEnctypes sets an explicit enctype list. Explicit lists are
// never overridden by what the directory advertises.
func (e *Session) SetKeytabEnctypes(values []int32) {
	e.keytabEnctypes = append([]int32(nil), values...)
	e.keytabEnctypesExplicit = values != nil
}

// upperName uppercases a computer name the way AD renders SAM accounts.
func upperName(name string) string {
	return strings.ToUpper(name)
}
