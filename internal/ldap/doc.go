/*
Package ldap provides the Active Directory connection layer for the
enrollment core.

The package implements a deliberately small LDAP client focused on the
operations a machine join needs:

  - SRV-based domain controller discovery with LDAPS preference
  - A single blocking connection with GSSAPI (Kerberos) or simple bind
  - Search, Add, Modify and Compare with structured error classification
  - DN value escaping per RFC 4514
  - wellKnownObjects (DN-with-binary) parsing and GUID matching
  - objectSid decoding

The enrollment pipeline is strictly sequential, so there is no
connection pooling; the connection is dialed once per session and
borrowed by each pipeline stage.

Errors from directory operations are wrapped in LDAPError, which
preserves the LDAP result code, the server diagnostic message and the
DN involved. Helpers such as IsNoSuchObject and IsInsufficientAccess
let the enrollment core map directory results onto its own error
taxonomy.
*/
package ldap
