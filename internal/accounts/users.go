package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geocoder89/bizhub/internal/actorctx"
	"github.com/geocoder89/bizhub/internal/cache"
	"github.com/geocoder89/bizhub/internal/domain/profile"
)

var ErrSelfRoleChange = fmt.Errorf("%w: admins cannot change their own role", ErrForbidden)

func (s *Service) ListUsers(ctx context.Context, actor actorctx.Actor) ([]profile.Projection, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.cachedList(ctx, cache.AllUsersKey, s.profiles.ListAll)
}

func (s *Service) GetUser(ctx context.Context, actor actorctx.Actor, id string) (profile.Projection, error) {
	if !actor.CanAccess(id) {
		return profile.Projection{}, ErrForbidden
	}
	return s.lookup(ctx, id)
}

// UpdateDetails applies a self-service edit of display attributes.
func (s *Service) UpdateDetails(ctx context.Context, actor actorctx.Actor, id string, ch profile.Changes) (profile.Projection, error) {
	if !actor.CanAccess(id) {
		return profile.Projection{}, ErrForbidden
	}
	if ch.IsEmpty() {
		return profile.Projection{}, fmt.Errorf("%w: nothing to update", ErrValidation)
	}
	if ch.FullName != nil {
		name := strings.TrimSpace(*ch.FullName)
		if name == "" {
			return profile.Projection{}, fmt.Errorf("%w: full_name cannot be blank", ErrValidation)
		}
		ch.FullName = &name
	}
	if ch.Phone != nil {
		phone := strings.TrimSpace(*ch.Phone)
		ch.Phone = &phone
	}

	updated, err := s.profiles.UpdateDetails(ctx, id, ch, s.clock())
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return profile.Projection{}, ErrProfileNotFound
		}
		return profile.Projection{}, fmt.Errorf("update details: %w", err)
	}

	s.cache.InvalidateUser(ctx, id)
	return updated.Project(), nil
}

// UpdateRole sets a profile's role. The cached projection is dropped so the
// new role shows up on the next read.
func (s *Service) UpdateRole(ctx context.Context, actor actorctx.Actor, id, rawRole string) (profile.Projection, error) {
	if !actor.IsAdmin() {
		return profile.Projection{}, ErrForbidden
	}

	role, ok := profile.ParseRole(rawRole)
	if !ok {
		return profile.Projection{}, fmt.Errorf("%w: role must be one of %s", ErrValidation, profile.RoleSet(profile.AllRoles))
	}
	if actor.ID == id && role != profile.RoleAdmin {
		return profile.Projection{}, ErrSelfRoleChange
	}

	updated, err := s.profiles.UpdateRole(ctx, id, role, s.clock())
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return profile.Projection{}, ErrProfileNotFound
		}
		return profile.Projection{}, fmt.Errorf("update role: %w", err)
	}

	s.cache.InvalidateUser(ctx, id)
	s.log.InfoContext(ctx, "role changed", "profile_id", id, "role", role, "admin_id", actor.ID)
	return updated.Project(), nil
}
