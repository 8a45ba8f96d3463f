package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/bizhub/internal/auth"
	"github.com/geocoder89/bizhub/internal/repo/postgres"
	"github.com/geocoder89/bizhub/internal/security"
	"github.com/google/uuid"
)

type identityRepo interface {
	Create(ctx context.Context, row postgres.IdentityRow) error
	GetByEmail(ctx context.Context, email string) (postgres.IdentityRow, error)
	GetByID(ctx context.Context, id string) (postgres.IdentityRow, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type sessionRepo interface {
	Create(ctx context.Context, row postgres.SessionRow) error
	GetActive(ctx context.Context, id string, now time.Time) (postgres.SessionRow, error)
	Revoke(ctx context.Context, id string, at time.Time) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// LocalStore keeps identities in Postgres and issues signed bearer tokens
// whose jti points at a revocable session row.
type LocalStore struct {
	identities identityRepo
	sessions   sessionRepo
	tokens     *auth.Manager
	db         pinger
	now        func() time.Time
}

func NewLocalStore(identities identityRepo, sessions sessionRepo, tokens *auth.Manager, db pinger) *LocalStore {
	return &LocalStore{
		identities: identities,
		sessions:   sessions,
		tokens:     tokens,
		db:         db,
		now:        time.Now,
	}
}

func (s *LocalStore) SignIn(ctx context.Context, email, password string) (Session, error) {
	row, err := s.identities.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, postgres.ErrIdentityNotFound) {
			security.BurnCompare(password)
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if err := security.CheckPassword(row.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	raw, jti, expiresAt, err := s.tokens.Issue(row.ID, row.Email)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}

	err = s.sessions.Create(ctx, postgres.SessionRow{
		ID:         jti,
		IdentityID: row.ID,
		ExpiresAt:  expiresAt,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return Session{
		Token:     raw,
		ExpiresAt: expiresAt,
		Identity:  identityFromRow(row),
	}, nil
}

func (s *LocalStore) VerifyToken(ctx context.Context, token string) (Identity, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	if _, err := s.sessions.GetActive(ctx, claims.ID, s.now().UTC()); err != nil {
		if errors.Is(err, postgres.ErrSessionNotFound) {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	row, err := s.identities.GetByID(ctx, claims.IdentityID)
	if err != nil {
		if errors.Is(err, postgres.ErrIdentityNotFound) {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return identityFromRow(row), nil
}

func (s *LocalStore) SignOut(ctx context.Context, token string) error {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		// nothing to revoke
		return nil
	}
	if err := s.sessions.Revoke(ctx, claims.ID, s.now().UTC()); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *LocalStore) EmailExists(ctx context.Context, email string) (bool, error) {
	ok, err := s.identities.EmailExists(ctx, normalizeEmail(email))
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return ok, nil
}

func (s *LocalStore) CreateIdentity(ctx context.Context, in NewIdentity) (Identity, error) {
	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return Identity{}, fmt.Errorf("hash password: %w", err)
	}

	row := postgres.IdentityRow{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(in.Email),
		Phone:        in.Phone,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.identities.Create(ctx, row); err != nil {
		if errors.Is(err, postgres.ErrIdentityEmailTaken) {
			return Identity{}, ErrIdentityExists
		}
		return Identity{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return identityFromRow(row), nil
}

func (s *LocalStore) DeleteIdentity(ctx context.Context, id string) error {
	if err := s.identities.Delete(ctx, id); err != nil {
		if errors.Is(err, postgres.ErrIdentityNotFound) {
			return ErrIdentityNotFound
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *LocalStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Ping(ctx)
}

func identityFromRow(row postgres.IdentityRow) Identity {
	return Identity{ID: row.ID, Email: row.Email, Phone: row.Phone}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
