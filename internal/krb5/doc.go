/*
Package krb5 provides the Kerberos utility layer for the enrollment
core: principal handling, computer-account password rules, salt
construction, msDS-supportedEncryptionTypes codec, keytab file
maintenance and the kpasswd (RFC 3244) set/change-password protocol.

Everything here is built on gokrb5; no key material is derived outside
its crypto packages.
*/
package krb5
