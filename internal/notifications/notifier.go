package notifications

import (
	"context"
	"time"
)

// SignupReceivedInput tells admins a new profile is waiting for a decision.
type SignupReceivedInput struct {
	ProfileID string
	Email     string
	FullName  string
	At        time.Time
}

// DecisionMadeInput tells the applicant what happened to their signup.
type DecisionMadeInput struct {
	ProfileID string
	Email     string
	FullName  string
	Status    string
	DecidedBy string
	At        time.Time
}

type Notifier interface {
	SignupReceived(ctx context.Context, in SignupReceivedInput) error
	DecisionMade(ctx context.Context, in DecisionMadeInput) error
}
