// Package actorctx carries the verified caller identity through request contexts.
package actorctx

import (
	"context"

	"github.com/geocoder89/bizhub/internal/domain/profile"
)

// Actor is the verified, request-scoped identity attached by the authenticator.
type Actor struct {
	ID       string       `json:"id"`
	Email    string       `json:"email"`
	Phone    string       `json:"phone,omitempty"`
	Role     profile.Role `json:"role"`
	FullName string       `json:"full_name"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == profile.RoleAdmin
}

// CanAccess reports whether the actor may read or edit the profile with the given id.
func (a Actor) CanAccess(profileID string) bool {
	return a.ID == profileID || a.IsAdmin()
}

type actorKey struct{}

func With(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func From(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)

	return a, ok && a.ID != ""
}
