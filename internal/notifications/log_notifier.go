package notifications

import (
	"context"
	"log/slog"
)

// LogNotifier writes notifications to the structured log. It stands in for a
// mail provider until one is configured.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log.With("component", "notifier")}
}

func (n *LogNotifier) SignupReceived(ctx context.Context, in SignupReceivedInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.log.InfoContext(ctx, "notification.signup_received",
		"profile_id", in.ProfileID,
		"email", in.Email,
		"full_name", in.FullName,
	)
	return nil
}

func (n *LogNotifier) DecisionMade(ctx context.Context, in DecisionMadeInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.log.InfoContext(ctx, "notification.approval_decision",
		"profile_id", in.ProfileID,
		"email", in.Email,
		"status", in.Status,
		"decided_by", in.DecidedBy,
	)
	return nil
}
