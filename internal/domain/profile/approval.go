package profile

import (
	"errors"
	"fmt"
)

type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

func (s ApprovalStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

func (s ApprovalStatus) Ptr() *ApprovalStatus {
	return &s
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

var (
	ErrInvalidTransition = errors.New("invalid approval transition")
	// ErrStateChanged means the stored row no longer matches the state a
	// transition was computed from.
	ErrStateChanged = errors.New("profile approval state changed")
)

// Transition is the outcome of applying a decision to a profile.
type Transition struct {
	From   ApprovalStatus
	To     ApprovalStatus
	NoOp   bool
	Active bool

	// stored state the transition was computed from; writers must only
	// apply it while the row still holds exactly this state
	SourceStatus *ApprovalStatus
	SourceActive bool
}

// AppliesTo reports whether p still holds the state t was computed from.
func (t Transition) AppliesTo(p Profile) bool {
	if p.IsActive != t.SourceActive {
		return false
	}
	if p.ApprovalStatus == nil || t.SourceStatus == nil {
		return p.ApprovalStatus == nil && t.SourceStatus == nil
	}
	return *p.ApprovalStatus == *t.SourceStatus
}

// NextApproval applies an admin decision to the current profile state.
//
//	pending  --approve--> approved   pending  --reject--> rejected
//	approved --approve--> approved   rejected --reject--> rejected
//	rejected --approve--> approved
//
// Rejecting an approved (or legacy) profile is refused.
func NextApproval(p Profile, d Decision) (Transition, error) {
	from := p.EffectiveStatus()

	var source *ApprovalStatus
	if p.ApprovalStatus != nil {
		source = p.ApprovalStatus.Ptr()
	}

	switch d {
	case DecisionApprove:
		return Transition{
			From:         from,
			To:           StatusApproved,
			NoOp:         from == StatusApproved && p.IsActive && p.ApprovalStatus != nil,
			Active:       true,
			SourceStatus: source,
			SourceActive: p.IsActive,
		}, nil

	case DecisionReject:
		if from == StatusApproved {
			return Transition{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, StatusRejected)
		}
		return Transition{
			From:         from,
			To:           StatusRejected,
			NoOp:         from == StatusRejected && !p.IsActive,
			Active:       false,
			SourceStatus: source,
			SourceActive: p.IsActive,
		}, nil

	default:
		return Transition{}, fmt.Errorf("%w: unknown decision %q", ErrInvalidTransition, d)
	}
}
