package split

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/R3E-Network/splitpay/internal/app/domain/split"
)

// MemoryLedger is an in-process Ledger for tests and local development. It
// tracks external account balances and the escrow pool per asset, and can be
// told to fail the next transfers to exercise rollback paths.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]uint64 // asset|account -> balance
	escrow   map[string]uint64 // asset -> pooled balance

	FailNextTransferIn  bool
	FailNextTransferOut bool
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]uint64),
		escrow:   make(map[string]uint64),
	}
}

func ledgerKey(asset, account string) string {
	return asset + "|" + account
}

// Credit funds an external account so it can contribute.
func (l *MemoryLedger) Credit(asset, account string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[ledgerKey(asset, account)] += amount
}

// Balance returns the external account balance for the asset.
func (l *MemoryLedger) Balance(asset, account string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[ledgerKey(asset, account)]
}

// Escrow returns the pooled escrow balance for the asset.
func (l *MemoryLedger) Escrow(asset string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.escrow[asset]
}

func (l *MemoryLedger) TransferIn(ctx context.Context, asset, from string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailNextTransferIn {
		l.FailNextTransferIn = false
		return fmt.Errorf("injected transfer-in failure")
	}
	key := ledgerKey(asset, from)
	if l.balances[key] < amount {
		return fmt.Errorf("insufficient balance for %s", from)
	}
	l.balances[key] -= amount
	l.escrow[asset] += amount
	return nil
}

func (l *MemoryLedger) TransferOut(ctx context.Context, asset, to string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailNextTransferOut {
		l.FailNextTransferOut = false
		return fmt.Errorf("injected transfer-out failure")
	}
	if l.escrow[asset] < amount {
		return fmt.Errorf("escrow underflow for asset %q", asset)
	}
	l.escrow[asset] -= amount
	l.balances[ledgerKey(asset, to)] += amount
	return nil
}

// RecordingNotifier captures events in order for assertions.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

var _ Notifier = (*RecordingNotifier)(nil)

// NewRecordingNotifier creates an empty recorder.
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) Notify(_ context.Context, ev domain.Event) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (n *RecordingNotifier) Events() []domain.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.Event, len(n.events))
	copy(out, n.events)
	return out
}

// Types returns the recorded event types in order.
func (n *RecordingNotifier) Types() []domain.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.EventType, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

// FixedIDGenerator returns predictable ids ("id-1", "id-2", ...) for tests.
type FixedIDGenerator struct {
	mu   sync.Mutex
	next int
}

var _ IDGenerator = (*FixedIDGenerator)(nil)

func (g *FixedIDGenerator) Next(string, time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("id-%d", g.next)
}
