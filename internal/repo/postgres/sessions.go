package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/bizhub/internal/observability"
	"github.com/jackc/pgx/v5"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRow is one issued bearer token of the self-hosted credential store,
// keyed by the token's jti.
type SessionRow struct {
	ID         string
	IdentityID string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	CreatedAt  time.Time
}

type SessionsRepo struct {
	db   DB
	prom *observability.Prom
}

func NewSessionsRepo(db DB, prom *observability.Prom) *SessionsRepo {
	return &SessionsRepo{db: db, prom: prom}
}

func (r *SessionsRepo) Create(ctx context.Context, row SessionRow) error {
	err := r.prom.ObserveDB("sessions.create", func() error {
		_, err := r.db.Exec(ctx,
			`INSERT INTO credential_sessions (id, identity_id, expires_at, revoked_at, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			row.ID, row.IdentityID, row.ExpiresAt, row.RevokedAt, row.CreatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("sessions.create: %w", err)
	}
	return nil
}

// GetActive returns the session only while it is neither revoked nor expired.
func (r *SessionsRepo) GetActive(ctx context.Context, id string, now time.Time) (SessionRow, error) {
	var row SessionRow

	err := r.prom.ObserveDB("sessions.get_active", func() error {
		return r.db.QueryRow(ctx, `
			SELECT id, identity_id, expires_at, revoked_at, created_at
			FROM credential_sessions
			WHERE id = $1 AND revoked_at IS NULL AND expires_at > $2
		`, id, now).Scan(
			&row.ID,
			&row.IdentityID,
			&row.ExpiresAt,
			&row.RevokedAt,
			&row.CreatedAt,
		)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SessionRow{}, ErrSessionNotFound
		}
		return SessionRow{}, fmt.Errorf("sessions.get_active: %w", err)
	}
	return row, nil
}

func (r *SessionsRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	err := r.prom.ObserveDB("sessions.revoke", func() error {
		_, err := r.db.Exec(ctx, `
			UPDATE credential_sessions
			SET revoked_at = $2
			WHERE id = $1 AND revoked_at IS NULL
		`, id, at)
		return err
	})
	if err != nil {
		return fmt.Errorf("sessions.revoke: %w", err)
	}
	return nil
}

// DeleteExpired prunes sessions that can no longer authenticate.
func (r *SessionsRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var n int64

	err := r.prom.ObserveDB("sessions.delete_expired", func() error {
		tag, err := r.db.Exec(ctx, `
			DELETE FROM credential_sessions
			WHERE expires_at < $1 OR revoked_at < $1
		`, before)
		n = tag.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sessions.delete_expired: %w", err)
	}
	return n, nil
}
