package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/bizhub/internal/observability"
	"github.com/jackc/pgx/v5"
)

var (
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrIdentityEmailTaken = errors.New("identity email already exists")
)

// IdentityRow backs the self-hosted credential store.
type IdentityRow struct {
	ID           string
	Email        string
	Phone        string
	PasswordHash string
	CreatedAt    time.Time
}

type IdentitiesRepo struct {
	db   DB
	prom *observability.Prom
}

func NewIdentitiesRepo(db DB, prom *observability.Prom) *IdentitiesRepo {
	return &IdentitiesRepo{db: db, prom: prom}
}

func (r *IdentitiesRepo) Create(ctx context.Context, row IdentityRow) error {
	err := r.prom.ObserveDB("identities.create", func() error {
		_, err := r.db.Exec(ctx,
			`INSERT INTO identities (id, email, phone, password_hash, created_at)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5)`,
			row.ID, row.Email, row.Phone, row.PasswordHash, row.CreatedAt,
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ErrIdentityEmailTaken
		}
		return fmt.Errorf("identities.create: %w", err)
	}
	return nil
}

func (r *IdentitiesRepo) GetByEmail(ctx context.Context, email string) (IdentityRow, error) {
	return r.get(ctx, "identities.get_by_email",
		`SELECT id, email, COALESCE(phone, ''), password_hash, created_at
		FROM identities
		WHERE lower(email) = lower($1)`, email)
}

func (r *IdentitiesRepo) GetByID(ctx context.Context, id string) (IdentityRow, error) {
	return r.get(ctx, "identities.get_by_id",
		`SELECT id, email, COALESCE(phone, ''), password_hash, created_at
		FROM identities
		WHERE id = $1`, id)
}

func (r *IdentitiesRepo) get(ctx context.Context, op, query string, arg string) (IdentityRow, error) {
	var row IdentityRow

	err := r.prom.ObserveDB(op, func() error {
		return r.db.QueryRow(ctx, query, arg).Scan(
			&row.ID,
			&row.Email,
			&row.Phone,
			&row.PasswordHash,
			&row.CreatedAt,
		)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IdentityRow{}, ErrIdentityNotFound
		}
		return IdentityRow{}, fmt.Errorf("%s: %w", op, err)
	}
	return row, nil
}

func (r *IdentitiesRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool

	err := r.prom.ObserveDB("identities.email_exists", func() error {
		return r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM identities WHERE lower(email) = lower($1))`,
			email,
		).Scan(&exists)
	})
	if err != nil {
		return false, fmt.Errorf("identities.email_exists: %w", err)
	}
	return exists, nil
}

// Delete removes the identity; its sessions go with it (ON DELETE CASCADE).
func (r *IdentitiesRepo) Delete(ctx context.Context, id string) error {
	var affected int64

	err := r.prom.ObserveDB("identities.delete", func() error {
		tag, err := r.db.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("identities.delete: %w", err)
	}
	if affected == 0 {
		return ErrIdentityNotFound
	}
	return nil
}
