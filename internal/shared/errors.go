package shared

import "errors"

var (
	// ErrNotFound indicates a referenced principal, audit, role
	// definition, or grant does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the principal lacks permission for the
	// requested action. The message shown to callers is always generic.
	ErrForbidden = errors.New("insufficient permissions")
	// ErrDuplicateGrant occurs when an active grant already exists for
	// the same principal and role definition.
	ErrDuplicateGrant = errors.New("duplicate grant")
	// ErrGrantNotActive occurs when deactivating a grant that is
	// already inactive.
	ErrGrantNotActive = errors.New("grant not active")
	// ErrValidation indicates a malformed or incomplete request.
	ErrValidation = errors.New("validation failed")
)
