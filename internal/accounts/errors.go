package accounts

import (
	"errors"
	"fmt"

	"github.com/geocoder89/bizhub/internal/domain/profile"
)

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrForbidden          = errors.New("forbidden")
	ErrValidation         = errors.New("invalid request")
	ErrEmailTaken         = errors.New("email already registered")
	ErrProfileNotFound    = errors.New("profile not found")

	ErrSelfRejection = fmt.Errorf("%w: admins cannot reject their own profile", ErrForbidden)
)

// PendingApprovalError is returned when the credentials were correct but the
// profile may not be used yet.
type PendingApprovalError struct {
	Status   profile.ApprovalStatus
	IsActive bool
	// Disclose controls whether callers may echo Status and IsActive back to the client.
	Disclose bool
}

func (e *PendingApprovalError) Error() string {
	if e.Status == profile.StatusRejected {
		return "account access has been rejected"
	}
	return "account is pending approval"
}
