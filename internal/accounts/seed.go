package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/bizhub/internal/credentials"
	"github.com/geocoder89/bizhub/internal/domain/profile"
)

type AdminSeed struct {
	Email    string
	Password string
	FullName string
}

// EnsureAdmin bootstraps the first administrator. It is a no-op when no seed
// is configured or a profile for the email already exists.
func (s *Service) EnsureAdmin(ctx context.Context, seed AdminSeed) error {
	email := normalizeEmail(seed.Email)
	if email == "" || seed.Password == "" {
		return nil
	}

	exists, err := s.profiles.EmailExists(ctx, email)
	if err != nil {
		return fmt.Errorf("seed admin: check profiles: %w", err)
	}
	if exists {
		return nil
	}

	created := false
	ident, err := s.creds.CreateIdentity(ctx, credentials.NewIdentity{
		Email:    email,
		Password: seed.Password,
		FullName: seed.FullName,
	})
	switch {
	case err == nil:
		created = true
	case errors.Is(err, credentials.ErrIdentityExists):
		// identity left behind by an earlier run; adopt it if the password matches
		sess, signInErr := s.creds.SignIn(ctx, email, seed.Password)
		if signInErr != nil {
			return fmt.Errorf("seed admin: existing identity: %w", signInErr)
		}
		s.revokeSession(ctx, sess.Token)
		ident = sess.Identity
	default:
		return fmt.Errorf("seed admin: create identity: %w", err)
	}

	now := s.clock()
	approved := profile.StatusApproved
	p := profile.Profile{
		ID:             ident.ID,
		Email:          email,
		FullName:       seed.FullName,
		Role:           profile.RoleAdmin,
		IsActive:       true,
		ApprovalStatus: &approved,
		ApprovedAt:     &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if p.FullName == "" {
		p.FullName = "Administrator"
	}

	if err := s.profiles.Insert(ctx, p); err != nil {
		if created {
			s.compensateIdentity(ctx, ident.ID, err)
		}
		return fmt.Errorf("seed admin: insert profile: %w", err)
	}

	s.cache.InvalidateLists(ctx)
	s.log.InfoContext(ctx, "admin seeded", "profile_id", p.ID, "email", p.Email)
	return nil
}
