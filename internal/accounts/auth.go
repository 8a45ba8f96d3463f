package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/bizhub/internal/actorctx"
	"github.com/geocoder89/bizhub/internal/credentials"
	"github.com/geocoder89/bizhub/internal/domain/profile"
	"github.com/geocoder89/bizhub/internal/notifications"
	"github.com/geocoder89/bizhub/internal/repo/postgres"
)

type SignupInput struct {
	Email    string
	Password string
	FullName string
	Phone    string
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      profile.Projection
}

// Signup creates a credential-store identity and a pending profile for it.
// Duplicate emails are refused before anything is created; if the profile
// insert fails the identity is deleted again.
func (s *Service) Signup(ctx context.Context, in SignupInput) (profile.Projection, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return profile.Projection{}, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	taken, err := s.profiles.EmailExists(ctx, email)
	if err != nil {
		s.prom.AuthOutcome("signup", "error")
		return profile.Projection{}, fmt.Errorf("signup: check profiles: %w", err)
	}
	if !taken {
		taken, err = s.creds.EmailExists(ctx, email)
		if err != nil {
			s.prom.AuthOutcome("signup", "error")
			return profile.Projection{}, fmt.Errorf("signup: check credential store: %w", err)
		}
	}
	if taken {
		s.prom.AuthOutcome("signup", "conflict")
		return profile.Projection{}, ErrEmailTaken
	}

	fullName := strings.TrimSpace(in.FullName)
	if fullName == "" {
		fullName = strings.SplitN(email, "@", 2)[0]
	}
	phone := strings.TrimSpace(in.Phone)

	ident, err := s.creds.CreateIdentity(ctx, credentials.NewIdentity{
		Email:    email,
		Password: in.Password,
		FullName: fullName,
		Phone:    phone,
	})
	if err != nil {
		if errors.Is(err, credentials.ErrIdentityExists) {
			s.prom.AuthOutcome("signup", "conflict")
			return profile.Projection{}, ErrEmailTaken
		}
		s.prom.AuthOutcome("signup", "error")
		return profile.Projection{}, fmt.Errorf("signup: create identity: %w", err)
	}

	p := profile.NewPending(ident.ID, email, fullName, s.clock())
	p.Phone = phone

	if err := s.profiles.Insert(ctx, p); err != nil {
		s.compensateIdentity(ctx, ident.ID, err)
		s.prom.AuthOutcome("signup", "error")
		if errors.Is(err, postgres.ErrProfileEmailTaken) {
			return profile.Projection{}, ErrEmailTaken
		}
		return profile.Projection{}, fmt.Errorf("signup: insert profile: %w", err)
	}

	s.cache.InvalidateLists(ctx)
	s.prom.AuthOutcome("signup", "ok")
	s.log.InfoContext(ctx, "signup received", "profile_id", p.ID, "email", p.Email)

	s.notify(ctx, func(ctx context.Context, n notifications.Notifier) error {
		return n.SignupReceived(ctx, notifications.SignupReceivedInput{
			ProfileID: p.ID,
			Email:     p.Email,
			FullName:  p.FullName,
			At:        p.CreatedAt,
		})
	})

	return p.Project(), nil
}

// compensateIdentity deletes an identity whose profile could not be written.
// Failure is logged and counted, never returned.
func (s *Service) compensateIdentity(ctx context.Context, identityID string, cause error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := s.creds.DeleteIdentity(cctx, identityID); err != nil && !errors.Is(err, credentials.ErrIdentityNotFound) {
		s.prom.Compensation("failed")
		s.log.ErrorContext(ctx, "orphaned credential identity",
			"identity_id", identityID,
			"cause", cause,
			"err", err,
		)
		return
	}

	s.prom.Compensation("ok")
	s.log.WarnContext(ctx, "signup rolled back",
		"identity_id", identityID,
		"cause", cause,
	)
}

// Login verifies the password first. Only then is the approval state checked,
// so a wrong password never reveals whether the account exists.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return LoginResult{}, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	sess, err := s.creds.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, credentials.ErrInvalidCredentials) {
			s.prom.AuthOutcome("login", "invalid_credentials")
			return LoginResult{}, ErrInvalidCredentials
		}
		s.prom.AuthOutcome("login", "error")
		return LoginResult{}, fmt.Errorf("login: sign in: %w", err)
	}

	p, err := s.profiles.GetByID(ctx, sess.Identity.ID)
	if err != nil {
		s.revokeSession(ctx, sess.Token)
		if errors.Is(err, profile.ErrNotFound) {
			s.prom.AuthOutcome("login", "invalid_credentials")
			s.log.WarnContext(ctx, "identity without profile", "identity_id", sess.Identity.ID)
			return LoginResult{}, ErrInvalidCredentials
		}
		s.prom.AuthOutcome("login", "error")
		return LoginResult{}, fmt.Errorf("login: load profile: %w", err)
	}

	if !p.IsUsable() {
		s.revokeSession(ctx, sess.Token)
		s.prom.AuthOutcome("login", "pending_approval")
		return LoginResult{}, &PendingApprovalError{
			Status:   p.EffectiveStatus(),
			IsActive: p.IsActive,
			Disclose: s.discloseApproval,
		}
	}

	now := s.clock()
	if err := s.profiles.TouchLastLogin(ctx, p.ID, now); err != nil {
		s.log.WarnContext(ctx, "last login not recorded", "profile_id", p.ID, "err", err)
	} else {
		p.LastLoginAt = &now
	}

	proj := p.Project()
	s.cache.SetUser(ctx, proj)
	s.prom.AuthOutcome("login", "ok")

	return LoginResult{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		User:      proj,
	}, nil
}

func (s *Service) revokeSession(ctx context.Context, token string) {
	if err := s.creds.SignOut(ctx, token); err != nil {
		s.log.WarnContext(ctx, "session revoke failed", "err", err)
	}
}

// Logout revokes the bearer token at the credential store and drops the caller's cache entry.
func (s *Service) Logout(ctx context.Context, actor actorctx.Actor, token string) error {
	if err := s.creds.SignOut(ctx, token); err != nil {
		s.prom.AuthOutcome("logout", "error")
		return fmt.Errorf("logout: %w", err)
	}
	s.cache.ForgetUser(ctx, actor.ID)
	s.prom.AuthOutcome("logout", "ok")
	return nil
}

// Me returns the caller's projection, served from the session cache when possible.
func (s *Service) Me(ctx context.Context, actor actorctx.Actor) (profile.Projection, error) {
	return s.lookup(ctx, actor.ID)
}

// lookup reads through the session cache. Concurrent misses for one id share
// a single repository read.
func (s *Service) lookup(ctx context.Context, id string) (profile.Projection, error) {
	if p, ok := s.cache.GetUser(ctx, id); ok {
		return p, nil
	}

	v, err, _ := s.meGroup.Do(id, func() (any, error) {
		p, err := s.profiles.GetByID(context.WithoutCancel(ctx), id)
		if err != nil {
			if errors.Is(err, profile.ErrNotFound) {
				return nil, ErrProfileNotFound
			}
			return nil, fmt.Errorf("load profile: %w", err)
		}
		proj := p.Project()
		s.cache.SetUser(ctx, proj)
		return proj, nil
	})
	if err != nil {
		return profile.Projection{}, err
	}
	return v.(profile.Projection), nil
}

func (s *Service) notify(ctx context.Context, send func(context.Context, notifications.Notifier) error) {
	if s.notifier == nil {
		return
	}
	nctx := context.WithoutCancel(ctx)
	go func() {
		if err := send(nctx, s.notifier); err != nil {
			s.log.WarnContext(nctx, "notification not delivered", "err", err)
		}
	}()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
