package ldap

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLDAPError(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.Nil(t, NewLDAPError("search", nil))
	})

	t.Run("ldap result error", func(t *testing.T) {
		cause := ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))
		err := NewLDAPError("search", cause)

		require.NotNil(t, err)
		assert.Equal(t, "search", err.Operation)
		assert.Equal(t, uint16(ldap.LDAPResultNoSuchObject), err.LDAPCode)
		assert.Equal(t, ErrorCategoryNotFound, err.Category)
		assert.False(t, err.Retryable)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("generic error", func(t *testing.T) {
		cause := errors.New("connection reset by peer")
		err := NewLDAPError("bind", cause)

		require.NotNil(t, err)
		assert.Equal(t, uint16(0), err.LDAPCode)
		assert.Equal(t, ErrorCategoryConnection, err.Category)
		assert.True(t, err.Retryable)
	})
}

func TestLDAPErrorMessage(t *testing.T) {
	err := NewLDAPError("add", ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("access denied"))).
		WithDN("CN=HOST1,CN=Computers,DC=example,DC=com")

	msg := err.Error()
	assert.Contains(t, msg, "add")
	assert.Contains(t, msg, fmt.Sprintf("code %d", ldap.LDAPResultInsufficientAccessRights))
	assert.Contains(t, msg, "CN=HOST1,CN=Computers,DC=example,DC=com")
}

func TestCategorizeCode(t *testing.T) {
	tests := []struct {
		name string
		code uint16
		want ErrorCategory
	}{
		{"invalid credentials", ldap.LDAPResultInvalidCredentials, ErrorCategoryAuthentication},
		{"insufficient access", ldap.LDAPResultInsufficientAccessRights, ErrorCategoryPermission},
		{"unwilling to perform", ldap.LDAPResultUnwillingToPerform, ErrorCategoryPermission},
		{"no such object", ldap.LDAPResultNoSuchObject, ErrorCategoryNotFound},
		{"already exists", ldap.LDAPResultEntryAlreadyExists, ErrorCategoryConflict},
		{"object class violation", ldap.LDAPResultObjectClassViolation, ErrorCategoryConflict},
		{"constraint violation", ldap.LDAPResultConstraintViolation, ErrorCategoryValidation},
		{"server busy", ldap.LDAPResultBusy, ErrorCategoryServer},
		{"protocol error", ldap.LDAPResultProtocolError, ErrorCategoryConnection},
		{"something else", 9999, ErrorCategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, categorizeCode(tt.code))
		})
	}
}

func TestResultCodeHelpers(t *testing.T) {
	noSuchObject := NewLDAPError("search", ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("missing")))
	insufficient := NewLDAPError("modify", ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("denied")))
	violation := NewLDAPError("add", ldap.NewError(ldap.LDAPResultObjectClassViolation, errors.New("violation")))

	assert.True(t, IsNoSuchObject(noSuchObject))
	assert.False(t, IsNoSuchObject(insufficient))

	assert.True(t, IsInsufficientAccess(insufficient))
	assert.False(t, IsInsufficientAccess(noSuchObject))

	assert.True(t, IsObjectClassViolation(violation))
	assert.False(t, IsObjectClassViolation(noSuchObject))

	// Helpers see through wrapping.
	wrapped := fmt.Errorf("outer: %w", noSuchObject)
	assert.True(t, IsNoSuchObject(wrapped))

	assert.False(t, IsNoSuchObject(nil))
	assert.False(t, IsInsufficientAccess(errors.New("plain")))
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, ErrorCategoryUnknown, GetErrorCategory(nil))

	rawErr := ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad password"))
	assert.Equal(t, ErrorCategoryAuthentication, GetErrorCategory(rawErr))

	wrapped := NewLDAPError("bind", rawErr)
	assert.Equal(t, ErrorCategoryAuthentication, GetErrorCategory(wrapped))

	assert.Equal(t, ErrorCategoryConnection, GetErrorCategory(errors.New("network timeout")))
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.True(t, IsRetryableError(NewConnectionError("dial failed", true, nil)))
	assert.False(t, IsRetryableError(NewConnectionError("bad config", false, nil)))
	assert.True(t, IsRetryableError(NewLDAPError("search", ldap.NewError(ldap.LDAPResultBusy, errors.New("busy")))))
	assert.False(t, IsRetryableError(errors.New("parse failure")))
}

func TestConnectionError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := NewConnectionError("couldn't connect", true, cause)

	assert.Contains(t, err.Error(), "couldn't connect")
	assert.Contains(t, err.Error(), "refused")
	assert.ErrorIs(t, err, cause)
}
