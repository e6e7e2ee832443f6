package enroll

import (
	"context"
	"errors"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"

	"github.com/isometry/adenroll/internal/krb5"
	adldap "github.com/isometry/adenroll/internal/ldap"
)

// fakeDirectory is an in-memory stand-in for the directory. Entries are
// keyed by DN; base-scope searches evaluate a small subset of the
// filters the pipeline issues.
type fakeDirectory struct {
	entries map[string]map[string][]string

	searches      []adldap.SearchRequest
	adds          []adldap.AddRequest
	modifies      []adldap.ModifyRequest
	compares      []string
	addErr        error
	autoKvno      string
	modifyErrAttr map[string]error
	compareResult bool
	compareErr    error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{entries: make(map[string]map[string][]string)}
}

func (d *fakeDirectory) putEntry(dn string, attrs map[string][]string) {
	copied := make(map[string][]string, len(attrs))
	for k, v := range attrs {
		copied[k] = append([]string(nil), v...)
	}
	d.entries[dn] = copied
}

func noSuchObject() error {
	return adldap.NewLDAPError("search", goldap.NewError(goldap.LDAPResultNoSuchObject, errors.New("no such object")))
}

func (d *fakeDirectory) Connect(ctx context.Context) error { return nil }
func (d *fakeDirectory) Close() error                      { return nil }
func (d *fakeDirectory) ServerHost() string                { return "dc.example.com" }

func (d *fakeDirectory) Search(ctx context.Context, req *adldap.SearchRequest) (*adldap.SearchResult, error) {
	d.searches = append(d.searches, *req)

	attrs, ok := d.entries[req.BaseDN]
	if !ok {
		return nil, noSuchObject()
	}

	if !matchFilter(req.Filter, attrs) {
		return &adldap.SearchResult{}, nil
	}

	visible := make(map[string][]string)
	for _, name := range req.Attributes {
		if values, ok := attrs[name]; ok {
			visible[name] = append([]string(nil), values...)
		}
	}

	return &adldap.SearchResult{
		Entries: []*goldap.Entry{goldap.NewEntry(req.BaseDN, visible)},
	}, nil
}

func matchFilter(filter string, attrs map[string][]string) bool {
	switch filter {
	case "", "(objectClass=*)":
		return true
	case "(objectClass=computer)":
		return hasValue(attrs["objectClass"], "computer")
	case "(&(objectClass=container)(cn=Computers))":
		return hasValue(attrs["objectClass"], "container") && hasValue(attrs["cn"], "Computers")
	default:
		return false
	}
}

func hasValue(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func (d *fakeDirectory) Add(ctx context.Context, req *adldap.AddRequest) error {
	d.adds = append(d.adds, *req)
	if d.addErr != nil {
		return d.addErr
	}
	d.putEntry(req.DN, req.Attributes)
	if d.autoKvno != "" {
		d.entries[req.DN]["msDS-KeyVersionNumber"] = []string{d.autoKvno}
	}
	return nil
}

func (d *fakeDirectory) Modify(ctx context.Context, req *adldap.ModifyRequest) error {
	d.modifies = append(d.modifies, *req)
	for attr := range req.ReplaceAttributes {
		if err := d.modifyErrAttr[attr]; err != nil {
			return err
		}
	}
	entry, ok := d.entries[req.DN]
	if !ok {
		return noSuchObject()
	}
	for attr, values := range req.ReplaceAttributes {
		entry[attr] = append([]string(nil), values...)
	}
	return nil
}

func (d *fakeDirectory) Compare(ctx context.Context, dn, attribute, value string) (bool, error) {
	d.compares = append(d.compares, dn)
	if d.compareErr != nil {
		return false, d.compareErr
	}
	return d.compareResult, nil
}

// passwordCall records one kpasswd exchange.
type passwordCall struct {
	target   krb5.Principal
	password string
}

// fakeConn is the Conn used by the pipeline tests.
type fakeConn struct {
	dir *fakeDirectory

	fqdn      string
	naming    string
	realm     string
	loginType LoginType

	lastError string

	passwordCalls  []passwordCall
	passwordResult krb5.KPasswdResult
	passwordErr    error

	saltIndex int
	saltErr   error
	saltCalls int
	saltSeen  []krb5.Salt
}

func newFakeConn(dir *fakeDirectory) *fakeConn {
	return &fakeConn{
		dir:    dir,
		fqdn:   "host1.example.com",
		naming: "DC=example,DC=com",
		realm:  "EXAMPLE.COM",
	}
}

func (c *fakeConn) Discover(ctx context.Context) error { return nil }
func (c *fakeConn) Connect(ctx context.Context) error  { return nil }

func (c *fakeConn) HostFQDN() string          { return c.fqdn }
func (c *fakeConn) NamingContext() string     { return c.naming }
func (c *fakeConn) DomainRealm() string       { return c.realm }
func (c *fakeConn) LoginType() LoginType      { return c.loginType }
func (c *fakeConn) Directory() adldap.Client  { return c.dir }
func (c *fakeConn) Logger() adldap.Logger     { return adldap.NopLogger{} }
func (c *fakeConn) LastError() string         { return c.lastError }
func (c *fakeConn) SetLastError(msg string)   { c.lastError = msg }
func (c *fakeConn) ClearLastError()           { c.lastError = "" }

func (c *fakeConn) SetPassword(target krb5.Principal, newPassword string) (krb5.KPasswdResult, error) {
	c.passwordCalls = append(c.passwordCalls, passwordCall{target: target, password: newPassword})
	if c.passwordErr != nil {
		return krb5.KPasswdResult{}, c.passwordErr
	}
	return c.passwordResult, nil
}

func (c *fakeConn) DiscoverSalt(p krb5.Principal, password string, kvno uint32, enctypes []int32, salts []krb5.Salt) (int, error) {
	c.saltCalls++
	c.saltSeen = salts
	if c.saltErr != nil {
		return -1, c.saltErr
	}
	return c.saltIndex, nil
}

// testDomain wires a fake directory pre-seeded with the naming context
// and the well-known Computers container.
func testDomain() (*fakeConn, *fakeDirectory) {
	dir := newFakeDirectory()
	dir.putEntry("DC=example,DC=com", map[string][]string{
		"objectClass": {"top", "domain", "domainDNS"},
		"wellKnownObjects": {
			"B:32:A9D1CA15768811D1ADED00C04FD8D5CD:CN=Users,DC=example,DC=com",
			"B:32:AA312825768811D1ADED00C04FD8D5CD:CN=Computers,DC=example,DC=com",
		},
	})
	dir.putEntry("CN=Computers,DC=example,DC=com", map[string][]string{
		"objectClass": {"top", "container"},
		"cn":          {"Computers"},
	})
	return newFakeConn(dir), dir
}
