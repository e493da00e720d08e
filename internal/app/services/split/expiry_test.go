package split

import (
	"context"
	"testing"
	"time"

	domain "github.com/R3E-Network/splitpay/internal/app/domain/split"
	"github.com/R3E-Network/splitpay/internal/app/storage/memory"
)

func TestExpirySweeperEmitsOnce(t *testing.T) {
	store := memory.New()
	notifier := NewRecordingNotifier()
	clock := newFakeClock()

	svc := New(store, NewMemoryLedger(), &FixedIDGenerator{}, nil)
	svc.WithClock(clock.Now)

	sweeper := NewExpirySweeper(store, notifier, time.Minute, nil)
	sweeper.WithClock(clock.Now)

	ctx := context.Background()
	rec, err := svc.Create(ctx, "alice", "gift", domain.NativeAsset, 90, 3, 1)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	sweeper.Sweep(ctx)
	if got := len(notifier.Events()); got != 0 {
		t.Fatalf("events before deadline = %d, want 0", got)
	}

	clock.Advance(25 * time.Hour)

	sweeper.Sweep(ctx)
	sweeper.Sweep(ctx)

	events := notifier.Events()
	if len(events) != 1 {
		t.Fatalf("expired events = %d, want exactly 1", len(events))
	}
	if events[0].Type != domain.EventExpired {
		t.Fatalf("event type = %q, want %q", events[0].Type, domain.EventExpired)
	}
	if events[0].SplitID != rec.ID {
		t.Fatalf("event split id = %q, want %q", events[0].SplitID, rec.ID)
	}
}

func TestExpirySweeperSkipsTerminalSplits(t *testing.T) {
	store := memory.New()
	ledger := NewMemoryLedger()
	notifier := NewRecordingNotifier()
	clock := newFakeClock()

	svc := New(store, ledger, &FixedIDGenerator{}, nil)
	svc.WithClock(clock.Now)

	sweeper := NewExpirySweeper(store, notifier, time.Minute, nil)
	sweeper.WithClock(clock.Now)

	ctx := context.Background()
	ledger.Credit(domain.NativeAsset, "bob", 50)
	ledger.Credit(domain.NativeAsset, "carol", 50)

	closed, err := svc.Create(ctx, "alice", "dinner", domain.NativeAsset, 100, 2, 1)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Contribute(ctx, closed.ID, "bob", 50, 50); err != nil {
		t.Fatalf("Contribute() error = %v", err)
	}
	if _, err := svc.Contribute(ctx, closed.ID, "carol", 50, 50); err != nil {
		t.Fatalf("Contribute() error = %v", err)
	}

	cancelled, err := svc.Create(ctx, "alice", "trip", domain.NativeAsset, 100, 2, 1)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Cancel(ctx, cancelled.ID, "alice"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	clock.Advance(25 * time.Hour)
	sweeper.Sweep(ctx)

	if got := len(notifier.Events()); got != 0 {
		t.Fatalf("events for terminal splits = %d, want 0", got)
	}
}

func TestExpirySweeperStartStop(t *testing.T) {
	store := memory.New()
	sweeper := NewExpirySweeper(store, nil, 10*time.Millisecond, nil)

	ctx := context.Background()
	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := sweeper.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := sweeper.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}
