package ldap

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-ldap/ldap/v3"
)

// ConnectionConfig holds configuration for the directory connection.
type ConnectionConfig struct {
	// Connection settings
	Domain   string        // Domain for SRV discovery
	LDAPURLs []string      // Direct LDAP URLs (override SRV discovery)
	Timeout  time.Duration `default:"30s"` // Network timeout per operation

	// Authentication settings
	Username       string // Login principal (SAM or UPN format)
	Password       string // Password for password-based Kerberos login
	KerberosRealm  string // Kerberos realm; discovered from the domain if empty
	KerberosCCache string // Path to a credential cache to log in from
	KerberosKeytab string // Path to a keytab to log in from
	KerberosConfig string `default:"/etc/krb5.conf"` // Path to krb5.conf
	KerberosSPN    string // Explicit LDAP service principal override

	// TLS settings
	TLSConfig *tls.Config // Custom TLS configuration
	UseTLS    bool        `default:"true"` // Use LDAPS or StartTLS
	SkipTLS   bool        // Skip TLS entirely (not recommended)
}

// DefaultConfig returns a secure default configuration.
func DefaultConfig() *ConnectionConfig {
	cfg := &ConnectionConfig{}
	if err := defaults.Set(cfg); err != nil {
		panic(err)
	}
	cfg.TLSConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	return cfg
}

// ApplyDefaults fills unset fields from the `default` struct tags.
func (c *ConnectionConfig) ApplyDefaults() error {
	return defaults.Set(c)
}

// ServerInfo contains information about a discovered LDAP server.
type ServerInfo struct {
	Host     string
	Port     int
	UseTLS   bool
	Priority int
	Weight   int
	Source   string // "srv", "config", "fallback"
}

// Client provides the directory operations the enrollment core consumes.
// Implementations are bound to a single connection and are not safe for
// concurrent use; the enrollment pipeline is strictly sequential.
type Client interface {
	// Connection management
	Connect(ctx context.Context) error
	Close() error

	// Basic operations
	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)
	Add(ctx context.Context, req *AddRequest) error
	Modify(ctx context.Context, req *ModifyRequest) error
	Compare(ctx context.Context, dn, attribute, value string) (bool, error)

	// ServerHost reports the host of the connected server, for SPN construction.
	ServerHost() string
}

// SearchRequest encapsulates LDAP search parameters.
type SearchRequest struct {
	BaseDN     string
	Scope      SearchScope
	Filter     string
	Attributes []string
	SizeLimit  int
}

// SearchResult contains search results.
type SearchResult struct {
	Entries []*ldap.Entry
}

// AddRequest encapsulates LDAP add parameters.
type AddRequest struct {
	DN         string
	Attributes map[string][]string
}

// ModifyRequest encapsulates LDAP modify parameters. Only replace
// semantics are exposed; the enrollment reconciler always issues
// minimal-delta REPLACE operations.
type ModifyRequest struct {
	DN                string
	ReplaceAttributes map[string][]string
}

// SearchScope defines LDAP search scope.
type SearchScope int

const (
	ScopeBaseObject SearchScope = iota
	ScopeSingleLevel
	ScopeWholeSubtree
)

// AuthMethod defines authentication method types.
type AuthMethod int

const (
	AuthMethodSimpleBind AuthMethod = iota // Username/password bind
	AuthMethodKerberos                     // GSSAPI/Kerberos bind
)

// String returns string representation of authentication method.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodSimpleBind:
		return "simple"
	case AuthMethodKerberos:
		return "kerberos"
	default:
		return "unknown"
	}
}

// GetAuthMethod determines the authentication method from the configuration.
// Kerberos takes precedence: GSSAPI is used with an explicit credential
// cache or keytab, with a username and password, and with the default
// credential cache when no password is configured. Only a password
// given without a username selects a simple bind.
func (c *ConnectionConfig) GetAuthMethod() AuthMethod {
	if c.KerberosCCache != "" || c.KerberosKeytab != "" {
		return AuthMethodKerberos
	}
	if c.Username != "" && c.Password != "" {
		return AuthMethodKerberos
	}
	if c.Password == "" {
		return AuthMethodKerberos
	}
	return AuthMethodSimpleBind
}

// HasAuthentication checks if any authentication method is configured.
func (c *ConnectionConfig) HasAuthentication() bool {
	hasPassword := c.Username != "" && c.Password != ""
	hasKerberos := c.KerberosCCache != "" || c.KerberosKeytab != ""
	return hasPassword || hasKerberos
}
