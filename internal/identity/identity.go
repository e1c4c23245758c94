// Package identity resolves callers and decides what each role may do.
package identity

import (
	"context"

	id "dealroom/pkg/domain"
	dErrors "dealroom/pkg/domain-errors"
	"dealroom/pkg/requestcontext"
)

// Role is fixed at account creation; nothing in this core changes it.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleProposer Role = "proposer"
	RoleAdmin    Role = "admin"
	// RoleSystem is never issued to a caller. It marks transitions applied by the
	// timeout sweep.
	RoleSystem Role = "system"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleBuyer, RoleProposer, RoleAdmin:
		return true
	}
	return false
}

// Identity is the resolved caller passed into every service operation.
type Identity struct {
	ID   id.UserID
	Role Role
}

// System is the actor recorded for sweep transitions.
var System = Identity{ID: id.SystemUserID, Role: RoleSystem}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Resolver is the CurrentIdentity contract: it turns a bearer credential into an
// Identity or fails with CodeUnauthenticated.
type Resolver interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

// FromContext returns the identity placed on ctx by the auth middleware.
func FromContext(ctx context.Context) (Identity, error) {
	userID := requestcontext.UserID(ctx)
	role := Role(requestcontext.Role(ctx))
	if userID.IsNil() || !role.IsValid() {
		return Identity{}, dErrors.New(dErrors.CodeUnauthenticated, "no authenticated identity")
	}
	return Identity{ID: userID, Role: role}, nil
}

// WithIdentity places who on ctx.
func WithIdentity(ctx context.Context, who Identity) context.Context {
	return requestcontext.WithIdentity(ctx, who.ID, string(who.Role))
}
