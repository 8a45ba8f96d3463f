package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/bizhub/internal/actorctx"
	"github.com/geocoder89/bizhub/internal/cache"
	"github.com/geocoder89/bizhub/internal/domain/profile"
	"github.com/geocoder89/bizhub/internal/notifications"
)

// PendingUsers lists profiles awaiting a decision. The list is cached briefly.
func (s *Service) PendingUsers(ctx context.Context, actor actorctx.Actor) ([]profile.Projection, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.cachedList(ctx, cache.PendingUsersKey, s.profiles.ListPending)
}

func (s *Service) Approve(ctx context.Context, actor actorctx.Actor, id string) (profile.Projection, error) {
	return s.decide(ctx, actor, id, profile.DecisionApprove)
}

func (s *Service) Reject(ctx context.Context, actor actorctx.Actor, id string) (profile.Projection, error) {
	if actor.ID == id {
		return profile.Projection{}, ErrSelfRejection
	}
	return s.decide(ctx, actor, id, profile.DecisionReject)
}

// decideAttempts bounds how often a decision is re-evaluated after a
// concurrent change to the same profile.
const decideAttempts = 3

func (s *Service) decide(ctx context.Context, actor actorctx.Actor, id string, d profile.Decision) (profile.Projection, error) {
	if !actor.IsAdmin() {
		return profile.Projection{}, ErrForbidden
	}

	var (
		t       profile.Transition
		updated profile.Profile
	)
	for attempt := 1; ; attempt++ {
		current, err := s.profiles.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, profile.ErrNotFound) {
				return profile.Projection{}, ErrProfileNotFound
			}
			return profile.Projection{}, fmt.Errorf("%s: load profile: %w", d, err)
		}

		t, err = profile.NextApproval(current, d)
		if err != nil {
			return profile.Projection{}, err
		}
		if t.NoOp {
			return current.Project(), nil
		}

		updated, err = s.profiles.ApplyApproval(ctx, id, t, actor.ID, s.clock())
		if err == nil {
			break
		}
		if !errors.Is(err, profile.ErrStateChanged) {
			return profile.Projection{}, fmt.Errorf("%s: update profile: %w", d, err)
		}
		if attempt == decideAttempts {
			return profile.Projection{}, fmt.Errorf("%w: profile keeps changing", profile.ErrInvalidTransition)
		}
		s.log.InfoContext(ctx, "approval raced, re-evaluating", "profile_id", id, "decision", d)
	}

	s.cache.InvalidateUser(ctx, id)
	s.prom.ApprovalTransition(string(t.From), string(t.To))
	s.log.InfoContext(ctx, "approval decision",
		"profile_id", id,
		"from", t.From,
		"to", t.To,
		"admin_id", actor.ID,
	)

	s.notify(ctx, func(ctx context.Context, n notifications.Notifier) error {
		return n.DecisionMade(ctx, notifications.DecisionMadeInput{
			ProfileID: updated.ID,
			Email:     updated.Email,
			FullName:  updated.FullName,
			Status:    string(t.To),
			DecidedBy: actor.ID,
			At:        updated.UpdatedAt,
		})
	})

	return updated.Project(), nil
}

func (s *Service) cachedList(ctx context.Context, key string, load func(context.Context) ([]profile.Profile, error)) ([]profile.Projection, error) {
	if items, ok := s.cache.GetList(ctx, key); ok {
		return items, nil
	}

	ps, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", key, err)
	}

	items := profile.ProjectAll(ps)
	s.cache.SetList(ctx, key, items)
	return items, nil
}
