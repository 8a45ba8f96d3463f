package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/bizhub/internal/domain/profile"
	"github.com/geocoder89/bizhub/internal/observability"
	"github.com/jackc/pgx/v5"
)

var ErrProfileEmailTaken = errors.New("profile email already exists")

const profileColumns = `id, email, COALESCE(phone, ''), full_name, role, is_active, approval_status,
	approved_by, approved_at, last_login_at, created_at, updated_at`

// authColumns is the narrow projection the authenticator needs per request.
const authColumns = `id, email, COALESCE(phone, ''), role, full_name, is_active, approval_status`

type ProfilesRepo struct {
	db   DB
	prom *observability.Prom
}

func NewProfilesRepo(db DB, prom *observability.Prom) *ProfilesRepo {
	return &ProfilesRepo{db: db, prom: prom}
}

func scanProfile(row pgx.Row) (profile.Profile, error) {
	var (
		p      profile.Profile
		role   string
		status *string
	)

	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.Phone,
		&p.FullName,
		&role,
		&p.IsActive,
		&status,
		&p.ApprovedBy,
		&p.ApprovedAt,
		&p.LastLoginAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return profile.Profile{}, err
	}

	p.Role = profile.Role(role)
	if status != nil {
		s := profile.ApprovalStatus(*status)
		p.ApprovalStatus = &s
	}
	return p, nil
}

func (r *ProfilesRepo) one(ctx context.Context, op, query string, args ...any) (profile.Profile, error) {
	var p profile.Profile

	err := r.prom.ObserveDB(op, func() error {
		var err error
		p, err = scanProfile(r.db.QueryRow(ctx, query, args...))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return profile.Profile{}, profile.ErrNotFound
		}
		return profile.Profile{}, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

func (r *ProfilesRepo) many(ctx context.Context, op, query string, args ...any) ([]profile.Profile, error) {
	out := make([]profile.Profile, 0)

	err := r.prom.ObserveDB(op, func() error {
		rows, err := r.db.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanProfile(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// GetAuthProfile is the per-request lookup behind bearer authentication.
// Only the columns the authenticator inspects are read.
func (r *ProfilesRepo) GetAuthProfile(ctx context.Context, id string) (profile.Profile, error) {
	var (
		p      profile.Profile
		role   string
		status *string
	)

	err := r.prom.ObserveDB("profiles.get_auth_profile", func() error {
		return r.db.QueryRow(ctx,
			`SELECT `+authColumns+`
			FROM profiles
			WHERE id = $1`, id,
		).Scan(&p.ID, &p.Email, &p.Phone, &role, &p.FullName, &p.IsActive, &status)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return profile.Profile{}, profile.ErrNotFound
		}
		return profile.Profile{}, fmt.Errorf("profiles.get_auth_profile: %w", err)
	}

	p.Role = profile.Role(role)
	if status != nil {
		p.ApprovalStatus = profile.ApprovalStatus(*status).Ptr()
	}
	return p, nil
}

func (r *ProfilesRepo) GetByID(ctx context.Context, id string) (profile.Profile, error) {
	return r.one(ctx, "profiles.get_by_id",
		`SELECT `+profileColumns+`
		FROM profiles
		WHERE id = $1`, id)
}

func (r *ProfilesRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool

	err := r.prom.ObserveDB("profiles.email_exists", func() error {
		return r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM profiles WHERE lower(email) = lower($1))`,
			email,
		).Scan(&exists)
	})
	if err != nil {
		return false, fmt.Errorf("profiles.email_exists: %w", err)
	}
	return exists, nil
}

func (r *ProfilesRepo) Insert(ctx context.Context, p profile.Profile) error {
	var status *string
	if p.ApprovalStatus != nil {
		s := string(*p.ApprovalStatus)
		status = &s
	}

	err := r.prom.ObserveDB("profiles.insert", func() error {
		_, err := r.db.Exec(ctx,
			`INSERT INTO profiles (id, email, phone, full_name, role, is_active, approval_status,
				approved_by, approved_at, created_at, updated_at)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11)`,
			p.ID, p.Email, p.Phone, p.FullName, string(p.Role), p.IsActive, status,
			p.ApprovedBy, p.ApprovedAt, p.CreatedAt, p.UpdatedAt,
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ErrProfileEmailTaken
		}
		return fmt.Errorf("profiles.insert: %w", err)
	}
	return nil
}

// ListPending returns profiles awaiting a decision, oldest first. Inactive
// rows created before approvals existed count as pending.
func (r *ProfilesRepo) ListPending(ctx context.Context) ([]profile.Profile, error) {
	return r.many(ctx, "profiles.list_pending",
		`SELECT `+profileColumns+`
		FROM profiles
		WHERE approval_status = 'pending'
			OR (approval_status IS NULL AND NOT is_active)
		ORDER BY created_at ASC, id ASC`)
}

func (r *ProfilesRepo) ListAll(ctx context.Context) ([]profile.Profile, error) {
	return r.many(ctx, "profiles.list_all",
		`SELECT `+profileColumns+`
		FROM profiles
		ORDER BY created_at DESC, id DESC`)
}

// ApplyApproval writes a transition in one statement, guarded on the stored
// state the transition was computed from. approvedBy is only recorded when the
// target is approved. A row that moved on in the meantime yields
// profile.ErrStateChanged; a missing row reads the same way, callers re-read.
func (r *ProfilesRepo) ApplyApproval(ctx context.Context, id string, t profile.Transition, approvedBy string, at time.Time) (profile.Profile, error) {
	var (
		by     *string
		when   *time.Time
		source *string
	)
	if t.To == profile.StatusApproved {
		by = &approvedBy
		when = &at
	}
	if t.SourceStatus != nil {
		s := string(*t.SourceStatus)
		source = &s
	}

	p, err := r.one(ctx, "profiles.apply_approval",
		`UPDATE profiles
		SET approval_status = $2,
			is_active = $3,
			approved_by = COALESCE($4, approved_by),
			approved_at = COALESCE($5, approved_at),
			updated_at = $6
		WHERE id = $1
			AND approval_status IS NOT DISTINCT FROM $7
			AND is_active = $8
		RETURNING `+profileColumns,
		id, string(t.To), t.Active, by, when, at, source, t.SourceActive)
	if errors.Is(err, profile.ErrNotFound) {
		return profile.Profile{}, profile.ErrStateChanged
	}
	return p, err
}

func (r *ProfilesRepo) UpdateRole(ctx context.Context, id string, role profile.Role, at time.Time) (profile.Profile, error) {
	return r.one(ctx, "profiles.update_role",
		`UPDATE profiles
		SET role = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+profileColumns,
		id, string(role), at)
}

func (r *ProfilesRepo) UpdateDetails(ctx context.Context, id string, ch profile.Changes, at time.Time) (profile.Profile, error) {
	return r.one(ctx, "profiles.update_details",
		`UPDATE profiles
		SET full_name = COALESCE($2, full_name),
			phone = COALESCE($3, phone),
			updated_at = $4
		WHERE id = $1
		RETURNING `+profileColumns,
		id, ch.FullName, ch.Phone, at)
}

func (r *ProfilesRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	err := r.prom.ObserveDB("profiles.touch_last_login", func() error {
		tag, err := r.db.Exec(ctx,
			`UPDATE profiles SET last_login_at = $2 WHERE id = $1`,
			id, at,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return profile.ErrNotFound
		}
		return fmt.Errorf("profiles.touch_last_login: %w", err)
	}
	return nil
}
