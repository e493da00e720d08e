package split

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	domain "github.com/R3E-Network/splitpay/internal/app/domain/split"
	"github.com/R3E-Network/splitpay/internal/app/storage"
	"github.com/R3E-Network/splitpay/internal/app/system"
	"github.com/R3E-Network/splitpay/pkg/logger"
)

// ExpirySweeper watches active splits and emits one expired event per split
// whose deadline passes without full funding. It never mutates split state:
// expiry is a property of the deadline field, and withdrawal eligibility is
// derived from it directly.
type ExpirySweeper struct {
	store    storage.SplitStore
	notifier Notifier
	interval time.Duration
	now      func() time.Time
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	seen    map[string]bool
}

var _ system.Service = (*ExpirySweeper)(nil)

// NewExpirySweeper creates a sweeper ticking at the given interval
// (15 seconds when non-positive).
func NewExpirySweeper(store storage.SplitStore, notifier Notifier, interval time.Duration, log *logger.Logger) *ExpirySweeper {
	if log == nil {
		log = logger.NewDefault("split-expiry")
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &ExpirySweeper{
		store:    store,
		notifier: notifier,
		interval: interval,
		now:      time.Now,
		log:      log,
		seen:     make(map[string]bool),
	}
}

// WithClock overrides the time source. Intended for tests.
func (p *ExpirySweeper) WithClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

func (p *ExpirySweeper) Name() string { return "split-expiry" }

func (p *ExpirySweeper) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.Sweep(runCtx)
			}
		}
	}()

	p.log.Info("split expiry sweeper started")
	return nil
}

func (p *ExpirySweeper) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

// Sweep runs one pass. Exported so tests can drive it without the ticker.
func (p *ExpirySweeper) Sweep(ctx context.Context) {
	splits, err := p.store.ListActiveSplits(ctx)
	if err != nil {
		p.log.WithError(err).Warn("list active splits failed")
		return
	}

	now := p.now()
	for _, rec := range splits {
		if !rec.Expired(now) || p.alreadySeen(rec.ID) {
			continue
		}
		p.markSeen(rec.ID)
		p.log.WithField("split_id", rec.ID).
			WithField("total_contributed", rec.TotalContributed).
			Info("split expired without full funding")
		p.notifier.Notify(ctx, domain.Event{
			ID:      uuid.NewString(),
			Type:    domain.EventExpired,
			SplitID: rec.ID,
			Actor:   rec.Initiator,
			Payload: map[string]any{
				"total_amount":      rec.TotalAmount,
				"total_contributed": rec.TotalContributed,
				"deadline":          rec.Deadline,
			},
			OccurredAt: now.UTC(),
		})
	}
}

func (p *ExpirySweeper) alreadySeen(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seen[id]
}

func (p *ExpirySweeper) markSeen(id string) {
	p.mu.Lock()
	p.seen[id] = true
	p.mu.Unlock()
}
