// Package access classifies callers and decides who may act on which resources.
package access

import (
	"github.com/google/uuid"

	"github.com/example/storefront/internal/apperr"
)

// Identity is what the session provider tells us about the caller.
// The zero value is an anonymous caller.
type Identity struct {
	UserID  uuid.UUID
	IsAdmin bool
}

// Anonymous is the identity of an unauthenticated caller.
var Anonymous = Identity{}

// Authenticated reports whether the identity belongs to a signed-in user.
func (i Identity) Authenticated() bool {
	return i.UserID != uuid.Nil
}

// RequireUser fails with Unauthorized for anonymous callers.
func (i Identity) RequireUser() error {
	if !i.Authenticated() {
		return apperr.Unauthorized("authentication required")
	}
	return nil
}

// RequireAdmin fails unless the caller is an administrator.
func (i Identity) RequireAdmin() error {
	if err := i.RequireUser(); err != nil {
		return err
	}
	if !i.IsAdmin {
		return apperr.Forbidden("administrator access required")
	}
	return nil
}

// CanAccess fails unless the caller owns the resource or is an administrator.
func (i Identity) CanAccess(ownerID uuid.UUID) error {
	if err := i.RequireUser(); err != nil {
		return err
	}
	if i.IsAdmin || i.UserID == ownerID {
		return nil
	}
	return apperr.Forbidden("resource belongs to another user")
}
