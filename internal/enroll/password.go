package enroll

import "github.com/isometry/adenroll/internal/krb5"

// setComputerPassword sets or changes the computer account password
// through the kpasswd service. With user credentials this is an
// administrative reset that needs no knowledge of the old password;
// with computer credentials the account changes its own password using
// its current key. Both run the same wire exchange, differing only in
// whose ticket authenticates it.
func (e *Session) setComputerPassword() error {
	log := e.conn.Logger()

	if len(e.computerPassword) == 0 || !e.hasComputerPrincipal {
		return unexpectedError(nil, "no computer password or principal prepared")
	}

	verb := "set"
	if e.conn.LoginType() == LoginComputerAccount {
		verb = "change"
	}

	result, err := e.conn.SetPassword(e.computerPrincipal, string(e.computerPassword))
	if err != nil {
		e.conn.SetLastError(err.Error())
		return directoryError(err, "couldn't %s password for computer account: %s", verb, e.computerSAM)
	}

	if !result.Succeeded() {
		msg := result.Message
		if msg == "" {
			msg = krb5.ResultCodeMessage(result.Code)
		}
		e.conn.SetLastError(msg)
		return credentialsError(nil, "cannot %s computer password: %s", verb, msg)
	}

	log.Info("Set computer password", map[string]any{"account": e.computerSAM})
	return nil
}
