package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// Role is the privilege level of a caller.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

var (
	// ErrUnauthenticated is returned when no caller identity could be resolved.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the caller lacks the role or ownership
	// required for an operation.
	ErrForbidden = errors.New("not authorized")
)

// Identity is an already-resolved caller.
type Identity struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the caller has administrative privilege.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanAccess reports whether the caller may read data owned by userID.
func (i Identity) CanAccess(userID string) bool {
	return i.IsAdmin() || (i.UserID != "" && i.UserID == userID)
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext extracts the caller identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
