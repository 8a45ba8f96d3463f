package profile

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("profile not found")

// Profile is the business-side record for an identity issued by the credential store.
type Profile struct {
	ID             string          `json:"id"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone,omitempty"`
	FullName       string          `json:"full_name"`
	Role           Role            `json:"role"`
	IsActive       bool            `json:"is_active"`
	ApprovalStatus *ApprovalStatus `json:"approval_status"`
	ApprovedBy     *string         `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time      `json:"approved_at,omitempty"`
	LastLoginAt    *time.Time      `json:"last_login_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IsUsable reports whether the profile may be used for authenticated requests.
// Rows created before approvals existed carry a NULL status and count as approved.
func (p Profile) IsUsable() bool {
	if !p.IsActive {
		return false
	}
	if p.ApprovalStatus == nil {
		return true
	}
	return *p.ApprovalStatus == StatusApproved
}

// EffectiveStatus folds the legacy NULL status into approved for active rows.
func (p Profile) EffectiveStatus() ApprovalStatus {
	if p.ApprovalStatus == nil {
		if p.IsActive {
			return StatusApproved
		}
		return StatusPending
	}
	return *p.ApprovalStatus
}

// NewPending builds the row written at signup.
func NewPending(id, email, fullName string, now time.Time) Profile {
	status := StatusPending
	return Profile{
		ID:             id,
		Email:          email,
		FullName:       fullName,
		Role:           DefaultRole,
		IsActive:       false,
		ApprovalStatus: &status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Projection is the cached, client-facing view of a profile.
type Projection struct {
	ID             string         `json:"id"`
	Email          string         `json:"email"`
	Phone          string         `json:"phone,omitempty"`
	FullName       string         `json:"full_name"`
	Role           Role           `json:"role"`
	IsActive       bool           `json:"is_active"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	LastLoginAt    *time.Time     `json:"last_login_at,omitempty"`
}

func (p Profile) Project() Projection {
	return Projection{
		ID:             p.ID,
		Email:          p.Email,
		Phone:          p.Phone,
		FullName:       p.FullName,
		Role:           p.Role,
		IsActive:       p.IsActive,
		ApprovalStatus: p.EffectiveStatus(),
		LastLoginAt:    p.LastLoginAt,
	}
}

func ProjectAll(ps []Profile) []Projection {
	out := make([]Projection, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Project())
	}
	return out
}

// Changes carries a self-service edit; nil fields are left untouched.
type Changes struct {
	FullName *string `json:"full_name" binding:"omitempty,min=1,max=120"`
	Phone    *string `json:"phone" binding:"omitempty,max=32"`
}

func (c Changes) IsEmpty() bool {
	return c.FullName == nil && c.Phone == nil
}
