package enroll

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	krb5client "github.com/jcmturner/gokrb5/v8/client"
	krb5config "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/keytab"

	"github.com/isometry/adenroll/internal/krb5"
	adldap "github.com/isometry/adenroll/internal/ldap"
)

// LoginType identifies which kind of credentials the connection holds.
type LoginType int

const (
	LoginUserAccount LoginType = iota
	LoginComputerAccount
)

func (t LoginType) String() string {
	switch t {
	case LoginComputerAccount:
		return "computer"
	default:
		return "user"
	}
}

// Conn is the connection collaborator the enrollment session borrows:
// the bound LDAP handle, the Kerberos login, and the discovered
// environment. It is not safe for concurrent use.
type Conn interface {
	Discover(ctx context.Context) error
	Connect(ctx context.Context) error

	HostFQDN() string
	NamingContext() string
	DomainRealm() string
	LoginType() LoginType

	Directory() adldap.Client
	Logger() adldap.Logger

	LastError() string
	SetLastError(msg string)
	ClearLastError()

	// SetPassword runs the kpasswd exchange for the target principal
	// using the connection's login credentials.
	SetPassword(target krb5.Principal, newPassword string) (krb5.KPasswdResult, error)

	// DiscoverSalt probes candidate salts by test authentication and
	// returns the index of the first that works.
	DiscoverSalt(p krb5.Principal, password string, kvno uint32, enctypes []int32, salts []krb5.Salt) (int, error)
}

// Connection is the production Conn implementation.
type Connection struct {
	config *adldap.ConnectionConfig
	log    adldap.Logger

	client    adldap.Client
	krbConf   *krb5config.Config
	loginCl   *krb5client.Client
	loginType LoginType

	hostFQDN      string
	namingContext string
	domainRealm   string

	lastError string
}

// NewConnection creates a connection bound to the given configuration.
func NewConnection(config *adldap.ConnectionConfig, log adldap.Logger) (*Connection, error) {
	if config == nil {
		config = adldap.DefaultConfig()
	}
	if log == nil {
		log = adldap.NopLogger{}
	}
	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("invalid connection config: %w", err)
	}

	loginType := LoginUserAccount
	if strings.HasSuffix(strings.TrimSpace(config.Username), "$") {
		loginType = LoginComputerAccount
	}

	return &Connection{
		config:    config,
		log:       log,
		loginType: loginType,
	}, nil
}

// Discover determines the local host name and the domain realm without
// touching the network beyond DNS.
func (c *Connection) Discover(ctx context.Context) error {
	if c.hostFQDN == "" {
		fqdn, err := discoverHostFQDN(ctx)
		if err != nil {
			return failError(err, "couldn't determine the local host name")
		}
		c.hostFQDN = fqdn
		c.log.Info("Discovered host fully qualified name", map[string]any{"fqdn": fqdn})
	}

	if c.domainRealm == "" {
		if c.config.KerberosRealm != "" {
			c.domainRealm = strings.ToUpper(c.config.KerberosRealm)
		} else if c.config.Domain != "" {
			c.domainRealm = strings.ToUpper(c.config.Domain)
		} else {
			return configError(nil, "no domain or realm configured")
		}
	}

	return nil
}

// discoverHostFQDN resolves the machine's canonical DNS name, falling
// back to the bare hostname when DNS has no opinion.
func discoverHostFQDN(ctx context.Context) (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", err
	}

	if strings.Contains(hostname, ".") {
		return strings.TrimSuffix(hostname, "."), nil
	}

	cname, err := net.DefaultResolver.LookupCNAME(ctx, hostname)
	if err == nil && strings.Contains(cname, ".") {
		return strings.TrimSuffix(cname, "."), nil
	}

	return hostname, nil
}

// Connect dials the directory, binds, and reads the RootDSE for the
// naming context and the realm.
func (c *Connection) Connect(ctx context.Context) error {
	if c.client == nil {
		client, err := adldap.NewClient(c.config, c.log)
		if err != nil {
			return configError(err, "invalid directory configuration")
		}
		c.client = client
	}

	if err := c.client.Connect(ctx); err != nil {
		if adldap.IsAuthenticationError(err) {
			return credentialsError(err, "couldn't authenticate to the domain")
		}
		return directoryError(err, "couldn't connect to the domain")
	}

	return c.readRootDSE(ctx)
}

func (c *Connection) readRootDSE(ctx context.Context) error {
	if c.namingContext != "" {
		return nil
	}

	result, err := c.client.Search(ctx, &adldap.SearchRequest{
		BaseDN:     "",
		Scope:      adldap.ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: []string{"defaultNamingContext", "ldapServiceName"},
	})
	if err != nil {
		return directoryError(err, "couldn't read directory root DSE")
	}
	if len(result.Entries) == 0 {
		return directoryError(nil, "directory returned no root DSE")
	}

	entry := result.Entries[0]
	c.namingContext = entry.GetAttributeValue("defaultNamingContext")
	if c.namingContext == "" {
		return directoryError(nil, "directory advertises no default naming context")
	}

	// ldapServiceName is "dnsdomain:dc$@REALM"; prefer its realm over
	// the one guessed from configuration.
	if serviceName := entry.GetAttributeValue("ldapServiceName"); serviceName != "" {
		if at := strings.LastIndex(serviceName, "@"); at != -1 && at < len(serviceName)-1 {
			c.domainRealm = serviceName[at+1:]
		}
	}

	c.log.Info("Connected to directory", map[string]any{
		"naming_context": c.namingContext,
		"realm":          c.domainRealm,
	})
	return nil
}

func (c *Connection) HostFQDN() string      { return c.hostFQDN }
func (c *Connection) NamingContext() string { return c.namingContext }
func (c *Connection) DomainRealm() string   { return c.domainRealm }
func (c *Connection) LoginType() LoginType  { return c.loginType }

func (c *Connection) Directory() adldap.Client { return c.client }
func (c *Connection) Logger() adldap.Logger    { return c.log }

func (c *Connection) LastError() string       { return c.lastError }
func (c *Connection) SetLastError(msg string) { c.lastError = msg }
func (c *Connection) ClearLastError()         { c.lastError = "" }

// Close tears down the LDAP connection and the Kerberos login.
func (c *Connection) Close() error {
	var err error
	if c.client != nil {
		err = c.client.Close()
		c.client = nil
	}
	if c.loginCl != nil {
		c.loginCl.Destroy()
		c.loginCl = nil
	}
	return err
}

// kerberosConfig loads krb5.conf once.
func (c *Connection) kerberosConfig() (*krb5config.Config, error) {
	if c.krbConf != nil {
		return c.krbConf, nil
	}
	conf, err := krb5config.Load(c.config.KerberosConfig)
	if err != nil {
		return nil, fmt.Errorf("couldn't load %s: %w", c.config.KerberosConfig, err)
	}
	c.krbConf = conf
	return conf, nil
}

// loginClient builds (and caches) a logged-in Kerberos client from the
// connection's credentials: ccache, keytab or password, in that order.
func (c *Connection) loginClient() (*krb5client.Client, error) {
	if c.loginCl != nil {
		return c.loginCl, nil
	}

	conf, err := c.kerberosConfig()
	if err != nil {
		return nil, err
	}

	var cl *krb5client.Client
	needsLogin := false
	switch {
	case c.config.KerberosCCache != "":
		cc, err := credentials.LoadCCache(c.config.KerberosCCache)
		if err != nil {
			return nil, fmt.Errorf("couldn't load credential cache %s: %w", c.config.KerberosCCache, err)
		}
		cl, err = krb5client.NewFromCCache(cc, conf, krb5client.DisablePAFXFAST(true))
		if err != nil {
			return nil, err
		}

	case c.config.KerberosKeytab != "":
		kt, err := keytab.Load(c.config.KerberosKeytab)
		if err != nil {
			return nil, fmt.Errorf("couldn't load keytab %s: %w", c.config.KerberosKeytab, err)
		}
		cl = krb5client.NewWithKeytab(c.config.Username, c.domainRealm, kt, conf, krb5client.DisablePAFXFAST(true))
		needsLogin = true

	case c.config.Username != "" && c.config.Password != "":
		cl = krb5client.NewWithPassword(c.config.Username, c.domainRealm, c.config.Password, conf, krb5client.DisablePAFXFAST(true))
		needsLogin = true

	default:
		cc, err := credentials.LoadCCache(adldap.DefaultCCachePath())
		if err != nil {
			return nil, fmt.Errorf("no Kerberos credentials configured and no default credential cache: %w", err)
		}
		cl, err = krb5client.NewFromCCache(cc, conf, krb5client.DisablePAFXFAST(true))
		if err != nil {
			return nil, err
		}
	}

	if needsLogin {
		if err := cl.Login(); err != nil {
			return nil, err
		}
	}

	c.loginCl = cl
	return cl, nil
}

// SetPassword runs the kpasswd set-password exchange for the target
// principal using the connection's login.
func (c *Connection) SetPassword(target krb5.Principal, newPassword string) (krb5.KPasswdResult, error) {
	cl, err := c.loginClient()
	if err != nil {
		return krb5.KPasswdResult{}, err
	}
	return krb5.SetPassword(cl, target, newPassword)
}

// DiscoverSalt tries each candidate salt by deriving keys, loading them
// into an in-memory keytab, and performing an AS exchange. The first
// salt whose keys authenticate wins.
func (c *Connection) DiscoverSalt(p krb5.Principal, password string, kvno uint32, enctypes []int32, salts []krb5.Salt) (int, error) {
	conf, err := c.kerberosConfig()
	if err != nil {
		return -1, err
	}

	var lastErr error
	for i, salt := range salts {
		kt := keytab.New()
		if err := krb5.AddKeytabEntries(kt, p, kvno, password, enctypes, salt); err != nil {
			return -1, err
		}

		cl := krb5client.NewWithKeytab(p.SPNString(), p.Realm, kt, conf, krb5client.DisablePAFXFAST(true))
		err := cl.Login()
		cl.Destroy()
		if err == nil {
			c.log.Debug("Salt candidate authenticated", map[string]any{
				"principal": p.String(),
				"salt":      salt.Name,
			})
			return i, nil
		}
		lastErr = err
		c.log.Debug("Salt candidate rejected", map[string]any{
			"principal": p.String(),
			"salt":      salt.Name,
			"error":     err.Error(),
		})
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no salt candidates")
	}
	return -1, lastErr
}
