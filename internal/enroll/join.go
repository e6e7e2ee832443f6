package enroll

import (
	"context"
)

// Flags adjust the join pipeline.
type Flags uint

const (
	// FlagAllowOverwrite permits modifying an existing computer object.
	FlagAllowOverwrite Flags = 1 << iota

	// FlagNoKeytab skips opening and synchronizing the host keytab.
	FlagNoKeytab
)

// Join runs the full enrollment pipeline: discover the environment,
// derive the enrollment parameters, connect, resolve the account
// location, reconcile the directory object, establish the password,
// reconcile the auxiliary attributes, and synchronize the keytab.
//
// Required stages short-circuit on the first failure. The attribute
// updates after the password change are best-effort: their failures are
// logged and swallowed so a permissions hiccup on dNSHostName doesn't
// undo an otherwise complete join. The session is left reusable; after
// the cause of a failure is fixed, another Join is safe.
func (e *Session) Join(ctx context.Context, flags Flags) error {
	if e == nil || e.conn == nil {
		return unexpectedError(nil, "enrollment session has no connection")
	}

	e.conn.ClearLastError()
	e.clearState()

	if err := e.conn.Discover(ctx); err != nil {
		return err
	}

	if err := e.Prepare(flags); err != nil {
		return err
	}

	if err := e.conn.Connect(ctx); err != nil {
		return err
	}

	// Figure out where to place the computer account
	if err := e.resolveAccountLocation(ctx); err != nil {
		return err
	}

	// This is where it really happens
	if err := e.createOrUpdateComputerAccount(ctx, flags&FlagAllowOverwrite != 0); err != nil {
		return err
	}

	if err := e.setComputerPassword(); err != nil {
		return err
	}

	// The kvno read back reflects the new key
	if err := e.retrieveComputerAccountInfo(ctx); err != nil {
		return err
	}

	// Failures setting these fields are ignored
	e.bestEffort(e.updateAndCalculateEnctypes(ctx), "encryption types")
	e.bestEffort(e.updateDNSHostName(ctx), "host name")
	e.bestEffort(e.updateServicePrincipals(ctx), "service principals")

	if flags&FlagNoKeytab != 0 {
		return nil
	}

	return e.updateKeytabForPrincipals()
}

func (e *Session) bestEffort(err error, what string) {
	if err == nil {
		return
	}
	e.conn.Logger().Warn("Continuing despite failure to update computer account", map[string]any{
		"update": what,
		"dn":     e.computerDN,
		"error":  err.Error(),
	})
}
