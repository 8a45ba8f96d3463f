package notifications

import (
	"context"
	"errors"
	"testing"
	"time"
)

type flakyNotifier struct {
	fail  bool
	calls int
}

func (f *flakyNotifier) SignupReceived(ctx context.Context, _ SignupReceivedInput) error {
	f.calls++
	if f.fail {
		return errors.New("provider down")
	}
	return nil
}

func (f *flakyNotifier) DecisionMade(ctx context.Context, _ DecisionMadeInput) error {
	f.calls++
	if f.fail {
		return errors.New("provider down")
	}
	return nil
}

func TestProtectedNotifier_OpensAfterThresholdAndRecovers(t *testing.T) {
	inner := &flakyNotifier{fail: true}
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	n := NewProtectedNotifier(inner, ProtectedNotifierConfig{
		FailureThreshold: 2,
		Cooldown:         10 * time.Second,
	})
	n.now = func() time.Time { return clock }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_ = n.DecisionMade(ctx, DecisionMadeInput{ProfileID: "p-1"})
	}
	if n.State() != "open" {
		t.Fatalf("state = %s, want open", n.State())
	}

	if err := n.SignupReceived(ctx, SignupReceivedInput{}); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("got %v, want ErrCircuitOpen", err)
	}
	if inner.calls != 2 {
		t.Fatalf("inner called %d times while open", inner.calls)
	}

	clock = clock.Add(11 * time.Second)
	inner.fail = false

	if err := n.SignupReceived(ctx, SignupReceivedInput{}); err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if n.State() != "closed" {
		t.Fatalf("state = %s, want closed", n.State())
	}
}

func TestProtectedNotifier_FailedTrialReopens(t *testing.T) {
	inner := &flakyNotifier{fail: true}
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	n := NewProtectedNotifier(inner, ProtectedNotifierConfig{FailureThreshold: 1, Cooldown: time.Second})
	n.now = func() time.Time { return clock }

	_ = n.DecisionMade(context.Background(), DecisionMadeInput{})
	clock = clock.Add(2 * time.Second)
	_ = n.DecisionMade(context.Background(), DecisionMadeInput{})

	if n.State() != "open" {
		t.Fatalf("state = %s, want open", n.State())
	}
}

func TestLogNotifier_RespectsCanceledContext(t *testing.T) {
	n := NewLogNotifier(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := n.SignupReceived(ctx, SignupReceivedInput{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if err := n.DecisionMade(context.Background(), DecisionMadeInput{Status: "approved"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
