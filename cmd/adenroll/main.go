package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/isometry/adenroll/internal/enroll"
	adldap "github.com/isometry/adenroll/internal/ldap"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("adenroll", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: adenroll join --domain DOMAIN [options]\n\n")
		flags.PrintDefaults()
	}

	var (
		domain         string
		user           string
		password       string
		ccache         string
		loginKeytab    string
		krb5Conf       string
		ldapURLs       []string
		hostFQDN       string
		computerName   string
		ou             string
		keytabPath     string
		serviceNames   []string
		noKeytab       bool
		allowOverwrite bool
		resetPassword  bool
		oneTimePasswd  string
		verbose        bool
	)

	flags.StringVarP(&domain, "domain", "D", "", "domain to enroll in")
	flags.StringVarP(&user, "user", "U", "", "user (or computer account) to authenticate as")
	flags.StringVar(&password, "password", "", "password for the login principal")
	flags.StringVarP(&ccache, "login-ccache", "C", "", "kerberos credential cache to authenticate with")
	flags.StringVar(&loginKeytab, "login-keytab", "", "keytab to authenticate with")
	flags.StringVar(&krb5Conf, "krb5-conf", "", "path to krb5.conf")
	flags.StringArrayVar(&ldapURLs, "ldap-url", nil, "explicit LDAP URL of a domain controller (repeatable)")
	flags.StringVarP(&hostFQDN, "host-fqdn", "H", "", "override the fully qualified host name")
	flags.StringVarP(&computerName, "computer-name", "N", "", "override the computer account name")
	flags.StringVarP(&ou, "domain-ou", "O", "", "organizational unit to place the computer account in")
	flags.StringVarP(&keytabPath, "keytab", "K", "", "path of the host keytab to write")
	flags.StringArrayVar(&serviceNames, "service-name", nil, "additional service name for keytab principals (repeatable)")
	flags.BoolVar(&noKeytab, "no-keytab", false, "skip keytab synchronization")
	flags.BoolVar(&allowOverwrite, "allow-overwrite", false, "permit updating an existing computer account")
	flags.BoolVar(&resetPassword, "reset-password", false, "use the well-known default reset password")
	flags.StringVar(&oneTimePasswd, "one-time-password", "", "explicit computer password to set")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 2
	}

	rest := flags.Args()
	if len(rest) != 1 || rest[0] != "join" {
		flags.Usage()
		return 2
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := adldap.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := adldap.DefaultConfig()
	cfg.Domain = strings.ToLower(domain)
	cfg.Username = user
	cfg.Password = password
	cfg.KerberosCCache = ccache
	cfg.KerberosKeytab = loginKeytab
	cfg.LDAPURLs = ldapURLs
	if krb5Conf != "" {
		cfg.KerberosConfig = krb5Conf
	}

	conn, err := enroll.NewConnection(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "adenroll: %v\n", err)
		return 2
	}
	defer conn.Close()

	session := enroll.NewSession(conn)
	defer session.Unref()

	if hostFQDN != "" {
		session.SetHostFQDN(hostFQDN)
	}
	if computerName != "" {
		session.SetComputerName(computerName)
	}
	if ou != "" {
		session.SetPreferredOU(ou)
	}
	if keytabPath != "" {
		session.SetKeytabName(keytabPath)
	}
	if len(serviceNames) > 0 {
		// Extra names are added on top of the default service names.
		session.SetServiceNames(session.ServiceNames())
	}
	for _, name := range serviceNames {
		session.AddServiceName(name)
	}
	if oneTimePasswd != "" {
		session.SetComputerPassword(oneTimePasswd)
	}
	if resetPassword {
		session.ResetComputerPassword()
	}

	var joinFlags enroll.Flags
	if allowOverwrite {
		joinFlags |= enroll.FlagAllowOverwrite
	}
	if noKeytab {
		joinFlags |= enroll.FlagNoKeytab
	}

	if err := session.Join(context.Background(), joinFlags); err != nil {
		kind := enroll.KindOf(err)
		fmt.Fprintf(os.Stderr, "adenroll: %s error: %v\n", kind, err)
		return exitCode(kind)
	}

	fmt.Printf("enrolled %s at %s\n", session.ComputerSAM(), session.ComputerDN())
	if sid := session.ComputerSID(); sid != "" {
		fmt.Printf("computer account SID: %s\n", sid)
	}
	return 0
}

func exitCode(kind enroll.Kind) int {
	switch kind {
	case enroll.KindConfig:
		return 3
	case enroll.KindCredentials:
		return 4
	case enroll.KindDirectory:
		return 5
	case enroll.KindFail:
		return 6
	default:
		return 1
	}
}
