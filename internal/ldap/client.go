package ldap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// client implements the Client interface over a single LDAP connection.
// The enrollment pipeline is strictly sequential, so no pooling is done;
// the connection is dialed once and reused for every stage.
type client struct {
	config *ConnectionConfig
	log    Logger

	conn       *ldap.Conn
	serverInfo *ServerInfo
}

// NewClient creates a new single-connection LDAP client.
func NewClient(config *ConnectionConfig, log Logger) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = NopLogger{}
	}
	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("invalid connection config: %w", err)
	}
	return &client{config: config, log: log}, nil
}

// Connect discovers a domain controller, dials it and binds.
func (c *client) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	servers, err := c.candidateServers(ctx)
	if err != nil {
		return err
	}

	var lastErr error
	for _, server := range servers {
		conn, err := c.dial(server)
		if err != nil {
			c.log.Warn("Failed to connect to domain controller", map[string]any{
				"host":  server.Host,
				"port":  server.Port,
				"error": err.Error(),
			})
			lastErr = err
			continue
		}

		if err := c.authenticate(conn, server); err != nil {
			conn.Close()
			lastErr = err
			continue
		}

		c.conn = conn
		c.serverInfo = server
		c.log.Info("Connected to domain controller", map[string]any{
			"host":        server.Host,
			"port":        server.Port,
			"tls":         server.UseTLS,
			"auth_method": c.config.GetAuthMethod().String(),
			"source":      server.Source,
		})
		return nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no domain controllers found for domain %s", c.config.Domain)
	}
	return NewConnectionError("couldn't connect to any domain controller", true, lastErr)
}

// candidateServers resolves the list of servers to try, in order.
func (c *client) candidateServers(ctx context.Context) ([]*ServerInfo, error) {
	if len(c.config.LDAPURLs) > 0 {
		servers := make([]*ServerInfo, 0, len(c.config.LDAPURLs))
		for _, u := range c.config.LDAPURLs {
			server, err := ParseLDAPURL(u)
			if err != nil {
				return nil, err
			}
			servers = append(servers, server)
		}
		return servers, nil
	}

	if c.config.Domain == "" {
		return nil, fmt.Errorf("either a domain or explicit LDAP URLs must be configured")
	}

	discovery := NewSRVDiscovery(c.log)
	return discovery.DiscoverServers(ctx, c.config.Domain)
}

// dial establishes the transport to a single server, upgrading to TLS
// per the configuration.
func (c *client) dial(server *ServerInfo) (*ldap.Conn, error) {
	scheme := "ldap"
	if server.UseTLS {
		scheme = "ldaps"
	}
	addr := fmt.Sprintf("%s://%s:%d", scheme, server.Host, server.Port)

	tlsConfig := c.tlsConfig(server.Host)

	var opts []ldap.DialOpt
	if server.UseTLS {
		opts = append(opts, ldap.DialWithTLSConfig(tlsConfig))
	}

	conn, err := ldap.DialURL(addr, opts...)
	if err != nil {
		return nil, NewConnectionError(fmt.Sprintf("dial %s failed", addr), true, err)
	}
	conn.SetTimeout(c.config.Timeout)

	// Plain LDAP port: upgrade with StartTLS unless TLS is disabled.
	if !server.UseTLS && c.config.UseTLS && !c.config.SkipTLS {
		if err := conn.StartTLS(tlsConfig); err != nil {
			conn.Close()
			return nil, NewConnectionError("StartTLS failed", true, err)
		}
	}

	return conn, nil
}

func (c *client) tlsConfig(host string) *tls.Config {
	tlsConfig := c.config.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	} else {
		tlsConfig = tlsConfig.Clone()
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = host
	}
	return tlsConfig
}

// authenticate binds the connection based on the configured method.
func (c *client) authenticate(conn *ldap.Conn, server *ServerInfo) error {
	switch c.config.GetAuthMethod() {
	case AuthMethodKerberos:
		return performKerberosAuth(conn, c.config, server, c.log)
	case AuthMethodSimpleBind:
		if c.config.Username == "" {
			return fmt.Errorf("username is required for simple bind authentication")
		}
		if err := conn.Bind(c.config.Username, c.config.Password); err != nil {
			return NewLDAPError("bind", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported authentication method")
	}
}

// Close closes the connection. Safe to call multiple times.
func (c *client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// ServerHost reports the host of the connected server.
func (c *client) ServerHost() string {
	if c.serverInfo == nil {
		return ""
	}
	return c.serverInfo.Host
}

func (c *client) connection() (*ldap.Conn, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("not connected to the directory")
	}
	return c.conn, nil
}

// Search performs an LDAP search.
func (c *client) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}
	conn, err := c.connection()
	if err != nil {
		return nil, err
	}

	filter := req.Filter
	if filter == "" {
		filter = "(objectClass=*)"
	}

	ldapReq := ldap.NewSearchRequest(
		req.BaseDN,
		searchScope(req.Scope),
		ldap.NeverDerefAliases,
		req.SizeLimit,
		int(c.config.Timeout.Seconds()),
		false,
		filter,
		req.Attributes,
		nil,
	)

	var result *ldap.SearchResult
	err = LogOperation(c.log, "search", map[string]any{
		"base_dn": req.BaseDN,
		"filter":  filter,
	}, func() error {
		var searchErr error
		result, searchErr = conn.Search(ldapReq)
		return searchErr
	})
	if err != nil {
		return nil, NewLDAPError("search", err).WithDN(req.BaseDN)
	}

	return &SearchResult{Entries: result.Entries}, nil
}

// Add creates a directory entry.
func (c *client) Add(ctx context.Context, req *AddRequest) error {
	if req == nil {
		return fmt.Errorf("add request cannot be nil")
	}
	conn, err := c.connection()
	if err != nil {
		return err
	}

	ldapReq := ldap.NewAddRequest(req.DN, nil)
	for attr, values := range req.Attributes {
		ldapReq.Attribute(attr, values)
	}

	err = LogOperation(c.log, "add", map[string]any{
		"dn": req.DN,
	}, func() error {
		return conn.Add(ldapReq)
	})
	if err != nil {
		return NewLDAPError("add", err).WithDN(req.DN)
	}
	return nil
}

// Modify replaces attributes on a directory entry.
func (c *client) Modify(ctx context.Context, req *ModifyRequest) error {
	if req == nil {
		return fmt.Errorf("modify request cannot be nil")
	}
	conn, err := c.connection()
	if err != nil {
		return err
	}

	ldapReq := ldap.NewModifyRequest(req.DN, nil)
	for attr, values := range req.ReplaceAttributes {
		ldapReq.Replace(attr, values)
	}

	err = LogOperation(c.log, "modify", map[string]any{
		"dn": req.DN,
	}, func() error {
		return conn.Modify(ldapReq)
	})
	if err != nil {
		return NewLDAPError("modify", err).WithDN(req.DN)
	}
	return nil
}

// Compare checks an attribute value on a directory entry.
func (c *client) Compare(ctx context.Context, dn, attribute, value string) (bool, error) {
	conn, err := c.connection()
	if err != nil {
		return false, err
	}

	matched, err := conn.Compare(dn, attribute, value)
	if err != nil {
		return false, NewLDAPError("compare", err).WithDN(dn)
	}
	return matched, nil
}

func searchScope(scope SearchScope) int {
	switch scope {
	case ScopeSingleLevel:
		return ldap.ScopeSingleLevel
	case ScopeWholeSubtree:
		return ldap.ScopeWholeSubtree
	default:
		return ldap.ScopeBaseObject
	}
}

// ParseLDAPURL converts an LDAP URL into server info.
func ParseLDAPURL(ldapURL string) (*ServerInfo, error) {
	if ldapURL == "" {
		return nil, fmt.Errorf("LDAP URL cannot be empty")
	}

	parsed, err := url.Parse(ldapURL)
	if err != nil {
		return nil, fmt.Errorf("invalid LDAP URL %q: %w", ldapURL, err)
	}

	host := parsed.Hostname()
	if host == "" {
		return nil, fmt.Errorf("no hostname found in URL: %s", ldapURL)
	}

	useTLS := strings.EqualFold(parsed.Scheme, "ldaps")
	port := 389
	if useTLS {
		port = 636
	}
	if p := parsed.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port in URL %q: %w", ldapURL, err)
		}
	}

	return &ServerInfo{
		Host:   host,
		Port:   port,
		UseTLS: useTLS,
		Source: "config",
	}, nil
}
