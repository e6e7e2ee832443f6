package ldap

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

// performKerberosAuth performs a SASL/GSSAPI bind on an LDAP connection.
func performKerberosAuth(conn *ldap.Conn, cfg *ConnectionConfig, serverInfo *ServerInfo, log Logger) error {
	if err := prepareKerberosConfig(cfg); err != nil {
		return fmt.Errorf("kerberos configuration error: %w", err)
	}

	gssapiClient, err := createGSSAPIClient(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = gssapiClient.DeleteSecContext()
	}()

	spn, err := buildServicePrincipal(cfg, serverInfo)
	if err != nil {
		return fmt.Errorf("failed to build service principal: %w", err)
	}

	if err := conn.GSSAPIBind(gssapiClient, spn, ""); err != nil {
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}

	return nil
}

// createGSSAPIClient creates a GSSAPI client based on the configuration.
// Priority order: credential cache → keytab → password.
func createGSSAPIClient(cfg *ConnectionConfig, log Logger) (ldap.GSSAPIClient, error) {
	krb5confPath := cfg.KerberosConfig
	if krb5confPath == "" {
		krb5confPath = "/etc/krb5.conf"
	}

	if !fileExists(krb5confPath) {
		return nil, fmt.Errorf("kerberos configuration file not found at %s; "+
			"create it or point KerberosConfig at a valid krb5.conf", krb5confPath)
	}

	// Priority 1: Explicit credential cache
	if cfg.KerberosCCache != "" && fileExists(cfg.KerberosCCache) {
		return gssapi.NewClientFromCCache(cfg.KerberosCCache, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	// Priority 2: Default credential cache (if exists)
	defaultCCache := DefaultCCachePath()
	if cfg.KerberosCCache == "" && cfg.KerberosKeytab == "" && cfg.Password == "" && fileExists(defaultCCache) {
		log.Debug("Using default credential cache", map[string]any{"ccache": defaultCCache})
		return gssapi.NewClientFromCCache(defaultCCache, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	// Priority 3: Keytab
	if cfg.KerberosKeytab != "" && fileExists(cfg.KerberosKeytab) {
		return gssapi.NewClientWithKeytab(cfg.Username, cfg.KerberosRealm, cfg.KerberosKeytab, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	// Priority 4: Password authentication
	if cfg.Username != "" && cfg.Password != "" {
		return gssapi.NewClientWithPassword(cfg.Username, cfg.KerberosRealm, cfg.Password, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	return nil, fmt.Errorf("no suitable credentials found for Kerberos authentication")
}

// buildServicePrincipal constructs the LDAP service principal name.
// An explicit KerberosSPN overrides automatic construction.
func buildServicePrincipal(cfg *ConnectionConfig, serverInfo *ServerInfo) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("configuration is required for service principal")
	}

	if cfg.KerberosSPN != "" {
		return cfg.KerberosSPN, nil
	}

	if serverInfo == nil || serverInfo.Host == "" {
		return "", fmt.Errorf("server host is required for service principal")
	}

	hostname := serverInfo.Host
	if colonPos := strings.Index(hostname, ":"); colonPos != -1 {
		hostname = hostname[:colonPos]
	}

	return fmt.Sprintf("ldap/%s", hostname), nil
}

// prepareKerberosConfig validates and prepares Kerberos configuration.
func prepareKerberosConfig(cfg *ConnectionConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}

	if cfg.KerberosConfig == "" {
		cfg.KerberosConfig = "/etc/krb5.conf"
	}

	// Extract realm from username if not specified and username contains @
	if cfg.KerberosRealm == "" && strings.Contains(cfg.Username, "@") {
		parts := strings.SplitN(cfg.Username, "@", 2)
		cfg.Username = parts[0]
		cfg.KerberosRealm = parts[1]
	}

	if cfg.KerberosRealm == "" && cfg.Domain != "" {
		cfg.KerberosRealm = strings.ToUpper(cfg.Domain)
	}

	if cfg.KerberosRealm == "" {
		return fmt.Errorf("kerberos realm is required (set KerberosRealm, a domain, or include the realm in the username)")
	}

	hasCCache := (cfg.KerberosCCache != "" && fileExists(cfg.KerberosCCache)) || fileExists(DefaultCCachePath())
	hasKeytab := cfg.KerberosKeytab != "" && fileExists(cfg.KerberosKeytab)
	hasPassword := cfg.Username != "" && cfg.Password != ""

	if !hasCCache && !hasKeytab && !hasPassword {
		return fmt.Errorf("no suitable Kerberos credentials found: provide a credential cache, keytab, or password")
	}

	return nil
}

// DefaultCCachePath returns the default credential cache location.
func DefaultCCachePath() string {
	if ccache := os.Getenv("KRB5CCNAME"); ccache != "" {
		return strings.TrimPrefix(ccache, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
