// Package credentials talks to the credential store: the system that owns
// passwords, issues bearer tokens and verifies them.
package credentials

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrIdentityExists     = errors.New("identity already exists")
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrUnavailable        = errors.New("credential store unavailable")
)

// Identity is the credential store's view of a person.
type Identity struct {
	ID    string
	Email string
	Phone string
}

// Session is what a successful sign-in returns.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Identity  Identity
}

type NewIdentity struct {
	Email    string
	Password string
	FullName string
	Phone    string
}

type Store interface {
	SignIn(ctx context.Context, email, password string) (Session, error)
	VerifyToken(ctx context.Context, token string) (Identity, error)
	SignOut(ctx context.Context, token string) error

	EmailExists(ctx context.Context, email string) (bool, error)
	CreateIdentity(ctx context.Context, in NewIdentity) (Identity, error)
	DeleteIdentity(ctx context.Context, id string) error

	Ping(ctx context.Context) error
}
