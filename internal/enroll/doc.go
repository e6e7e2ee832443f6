/*
Package enroll implements the computer-account enrollment pipeline: the
multi-stage state machine that joins a host to an Active Directory
domain and keeps its keys synchronized between the directory and the
local keytab.

A Session aggregates caller configuration, derived state and the
connection collaborator. Join composes the stages in order:

	discover → prepare → connect → resolve location → reconcile object
	→ set password → retrieve account info → best-effort attribute
	updates → keytab synchronization

The pipeline is single-threaded and synchronous. Each required stage
short-circuits on the first failure; the three attribute updates after
the password change are best-effort. Failures carry a Kind from the
five-way taxonomy (unexpected, fail, directory, config, credentials) so
front-ends can map them to exit codes and advice.

Each Join starts by resetting per-run state. An explicit password or
service principal list survives that reset; derived ones are
recomputed. The host name, computer name, OU, container, keytab name,
service names and keytab enctypes are kept from an earlier run whether
the caller set them or they were derived. A DN or kvno set by the
caller is reset.
*/
package enroll
