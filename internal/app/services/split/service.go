// Package split implements the escrow split lifecycle.
//
// The service owns the active/closed/cancelled state machine. Every operation
// on a given split runs under that split's mutex and commits its bookkeeping
// through the store's atomic mutate before any external transfer settles, so
// a ledger callback can never observe half-applied state. Transfer failures
// roll the whole operation back with compensating writes.
package split

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	domain "github.com/R3E-Network/splitpay/internal/app/domain/split"
	"github.com/R3E-Network/splitpay/internal/app/metrics"
	"github.com/R3E-Network/splitpay/internal/app/storage"
	"github.com/R3E-Network/splitpay/pkg/logger"
)

// Errors
var (
	ErrSplitNotFound       = errors.New("split not found")
	ErrInvalidAmount       = errors.New("total amount must be positive")
	ErrInvalidParticipants = errors.New("participant count must be greater than one")
	ErrInvalidDuration     = errors.New("duration must be positive")
	ErrInvalidAsset        = errors.New("malformed asset reference")
	ErrSplitNotActive      = errors.New("split is not active")
	ErrSplitCancelled      = errors.New("split is cancelled")
	ErrSplitClosed         = errors.New("split is closed")
	ErrAlreadyContributed  = errors.New("participant already contributed")
	ErrDeadlinePassed      = errors.New("contribution deadline has passed")
	ErrWrongAmount         = errors.New("contribution must equal the per-participant share")
	ErrValueMismatch       = errors.New("attached value does not match the contribution")
	ErrNotInitiator        = errors.New("only the initiator may cancel")
	ErrNoFunds             = errors.New("no withdrawable funds for participant")
	ErrTransferFailed      = errors.New("asset transfer failed")
)

// Service implements the split lifecycle over a SplitStore and a Ledger.
type Service struct {
	store    storage.SplitStore
	ledger   Ledger
	idgen    IDGenerator
	notifier Notifier
	log      *logger.Logger
	now      func() time.Time

	// locks serializes operations per split id. Entries are never removed;
	// a mutex per split the process has touched is cheap and keeps the
	// check-mutate-transfer-notify sequence indivisible per split.
	locks sync.Map // split id -> *sync.Mutex
}

// New constructs the lifecycle service. A nil notifier drops events.
func New(store storage.SplitStore, ledger Ledger, idgen IDGenerator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("split")
	}
	if idgen == nil {
		idgen = NewSeqIDGenerator()
	}
	return &Service{
		store:    store,
		ledger:   ledger,
		idgen:    idgen,
		notifier: NopNotifier{},
		log:      log,
		now:      time.Now,
	}
}

// WithNotifier sets the audit event sink.
func (s *Service) WithNotifier(n Notifier) {
	if n != nil {
		s.notifier = n
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) lockSplit(id string) func() {
	muAny, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Create allocates a new split. No funds move here.
func (s *Service) Create(ctx context.Context, initiator, purpose, asset string, totalAmount, numParticipants, durationDays uint64) (domain.Split, error) {
	if totalAmount == 0 {
		return domain.Split{}, ErrInvalidAmount
	}
	if numParticipants <= 1 {
		return domain.Split{}, ErrInvalidParticipants
	}
	if durationDays == 0 {
		return domain.Split{}, ErrInvalidDuration
	}
	if !domain.ValidAssetRef(asset) {
		return domain.Split{}, ErrInvalidAsset
	}

	now := s.now().UTC()
	// Floor division: any remainder of totalAmount is never collected.
	share := totalAmount / numParticipants

	rec := domain.Split{
		ID:                   s.idgen.Next(initiator, now),
		Initiator:            initiator,
		Purpose:              purpose,
		Asset:                asset,
		TotalAmount:          totalAmount,
		NumParticipants:      numParticipants,
		AmountPerParticipant: share,
		Deadline:             now.Add(time.Duration(durationDays) * 24 * time.Hour),
		TotalContributed:     0,
		Contributions:        make(map[string]uint64),
		HasContributed:       make(map[string]bool),
		Status:               domain.StatusActive,
	}

	created, err := s.store.CreateSplit(ctx, rec)
	if err != nil {
		return domain.Split{}, fmt.Errorf("create split: %w", err)
	}

	s.log.WithField("split_id", created.ID).
		WithField("initiator", initiator).
		WithField("total_amount", totalAmount).
		Info("split created")
	metrics.RecordSplitCreated()
	s.emit(ctx, domain.EventCreated, created.ID, initiator, map[string]any{
		"purpose":                purpose,
		"asset":                  asset,
		"total_amount":           totalAmount,
		"num_participants":       numParticipants,
		"amount_per_participant": share,
		"deadline":               created.Deadline,
	})

	return created, nil
}

// Contribute records a participant's exact share and, if that funds the split
// fully, performs the close transition in the same critical section.
// attachedValue is the native-currency value offered with the call; it must
// equal amount for native splits and be zero for token splits.
func (s *Service) Contribute(ctx context.Context, splitID, caller string, amount, attachedValue uint64) (domain.Split, error) {
	unlock := s.lockSplit(splitID)
	defer unlock()

	rec, err := s.store.GetSplit(ctx, splitID)
	if err != nil {
		return domain.Split{}, s.mapStoreErr(err)
	}

	if err := s.checkContribution(rec, caller, amount, attachedValue); err != nil {
		return domain.Split{}, err
	}

	// Take custody before committing bookkeeping. A failed pull leaves no
	// trace in the ledger state.
	if err := s.ledger.TransferIn(ctx, rec.Asset, caller, amount); err != nil {
		metrics.RecordTransferFailure()
		return domain.Split{}, fmt.Errorf("%w: pull contribution: %v", ErrTransferFailed, err)
	}

	closing := false
	updated, err := s.store.MutateSplit(ctx, splitID, func(rec *domain.Split) error {
		if err := s.checkContribution(*rec, caller, amount, attachedValue); err != nil {
			return err
		}
		rec.Contributions[caller] = amount
		rec.HasContributed[caller] = true
		rec.TotalContributed += amount
		if rec.TotalContributed >= rec.TotalAmount {
			rec.Status = domain.StatusClosed
			closing = true
		}
		return nil
	})
	if err != nil {
		// Bookkeeping refused after a successful pull: hand the funds back.
		s.compensate(ctx, rec.Asset, caller, amount)
		return domain.Split{}, s.mapStoreErr(err)
	}

	if closing {
		// Close transition: the status flip is already durable, so a
		// reentrant call during the payout sees a closed split and is
		// refused. If the payout itself fails the whole contribution is
		// unwound, so events for it are withheld until the payout lands.
		if err := s.closePayout(ctx, splitID, caller, amount, updated); err != nil {
			return domain.Split{}, err
		}
	}

	s.log.WithField("split_id", splitID).
		WithField("participant", caller).
		WithField("amount", amount).
		Info("contribution recorded")
	metrics.RecordContribution()
	s.emit(ctx, domain.EventContributed, splitID, caller, map[string]any{
		"amount":            amount,
		"total_contributed": updated.TotalContributed,
	})

	if closing {
		s.log.WithField("split_id", splitID).
			WithField("initiator", updated.Initiator).
			WithField("total_amount", updated.TotalAmount).
			Info("split fully funded and closed")
		metrics.RecordSplitClosed()
		s.emit(ctx, domain.EventClosed, splitID, updated.Initiator, map[string]any{
			"total_amount":      updated.TotalAmount,
			"total_contributed": updated.TotalContributed,
		})
	}

	return updated, nil
}

// closePayout releases the pooled funds to the initiator and unwinds the
// triggering contribution when the release fails.
func (s *Service) closePayout(ctx context.Context, splitID, caller string, amount uint64, updated domain.Split) error {
	if err := s.ledger.TransferOut(ctx, updated.Asset, updated.Initiator, updated.TotalAmount); err != nil {
		metrics.RecordTransferFailure()
		if _, undoErr := s.store.MutateSplit(ctx, splitID, func(rec *domain.Split) error {
			rec.Status = domain.StatusActive
			rec.TotalContributed -= amount
			delete(rec.Contributions, caller)
			delete(rec.HasContributed, caller)
			return nil
		}); undoErr != nil {
			s.log.WithError(undoErr).WithField("split_id", splitID).
				Error("rollback after failed payout did not apply")
		}
		s.compensate(ctx, updated.Asset, caller, amount)
		return fmt.Errorf("%w: release to initiator: %v", ErrTransferFailed, err)
	}
	return nil
}

// checkContribution applies the ordered preconditions; the first failure wins.
func (s *Service) checkContribution(rec domain.Split, caller string, amount, attachedValue uint64) error {
	switch rec.Status {
	case domain.StatusCancelled:
		return ErrSplitCancelled
	case domain.StatusClosed:
		return ErrSplitNotActive
	}
	if rec.HasContributed[caller] {
		return ErrAlreadyContributed
	}
	if rec.Expired(s.now()) {
		return ErrDeadlinePassed
	}
	if amount != rec.AmountPerParticipant {
		return ErrWrongAmount
	}
	if domain.IsToken(rec.Asset) {
		if attachedValue != 0 {
			return ErrValueMismatch
		}
	} else if attachedValue != amount {
		return ErrValueMismatch
	}
	return nil
}

// Cancel aborts an active split. Funds stay in escrow until contributors
// withdraw them.
func (s *Service) Cancel(ctx context.Context, splitID, caller string) (domain.Split, error) {
	unlock := s.lockSplit(splitID)
	defer unlock()

	updated, err := s.store.MutateSplit(ctx, splitID, func(rec *domain.Split) error {
		if rec.Initiator != caller {
			return ErrNotInitiator
		}
		switch rec.Status {
		case domain.StatusCancelled:
			return ErrSplitCancelled
		case domain.StatusClosed:
			return ErrSplitClosed
		}
		rec.Status = domain.StatusCancelled
		return nil
	})
	if err != nil {
		return domain.Split{}, s.mapStoreErr(err)
	}

	s.log.WithField("split_id", splitID).Info("split cancelled")
	metrics.RecordSplitCancelled()
	s.emit(ctx, domain.EventCancelled, splitID, caller, map[string]any{
		"total_contributed": updated.TotalContributed,
	})

	return updated, nil
}

// Withdraw returns a contributor's recorded amount once the split is
// cancelled, or expired without reaching full funding. A second attempt
// finds a zero balance and fails cleanly.
func (s *Service) Withdraw(ctx context.Context, splitID, caller string) (uint64, error) {
	unlock := s.lockSplit(splitID)
	defer unlock()

	var refund uint64
	var asset string
	_, err := s.store.MutateSplit(ctx, splitID, func(rec *domain.Split) error {
		switch rec.Status {
		case domain.StatusClosed:
			// Closed splits already paid the pool to the initiator.
			return ErrSplitClosed
		case domain.StatusActive:
			if !rec.Expired(s.now()) {
				return ErrSplitNotActive
			}
		}
		if !rec.HasContributed[caller] {
			return ErrNoFunds
		}
		amount := rec.Contributions[caller]
		if amount == 0 {
			return ErrNoFunds
		}
		rec.Contributions[caller] = 0
		rec.TotalContributed -= amount
		refund = amount
		asset = rec.Asset
		return nil
	})
	if err != nil {
		return 0, s.mapStoreErr(err)
	}

	if err := s.ledger.TransferOut(ctx, asset, caller, refund); err != nil {
		metrics.RecordTransferFailure()
		// Restore the balance so the participant can retry later.
		if _, undoErr := s.store.MutateSplit(ctx, splitID, func(rec *domain.Split) error {
			rec.Contributions[caller] = refund
			rec.TotalContributed += refund
			return nil
		}); undoErr != nil {
			s.log.WithError(undoErr).WithField("split_id", splitID).
				Error("rollback after failed refund did not apply")
		}
		return 0, fmt.Errorf("%w: refund contributor: %v", ErrTransferFailed, err)
	}

	s.log.WithField("split_id", splitID).
		WithField("participant", caller).
		WithField("amount", refund).
		Info("contribution refunded")
	metrics.RecordRefund()
	s.emit(ctx, domain.EventRefunded, splitID, caller, map[string]any{
		"amount": refund,
	})

	return refund, nil
}

// Get returns the split's query projection.
func (s *Service) Get(ctx context.Context, splitID string) (domain.Details, error) {
	rec, err := s.store.GetSplit(ctx, splitID)
	if err != nil {
		return domain.Details{}, s.mapStoreErr(err)
	}
	return domain.DetailsOf(rec), nil
}

// HasContributed reports whether the participant has an accepted contribution
// on record for the split.
func (s *Service) HasContributed(ctx context.Context, splitID, participant string) (bool, error) {
	rec, err := s.store.GetSplit(ctx, splitID)
	if err != nil {
		return false, s.mapStoreErr(err)
	}
	return rec.HasContributed[participant], nil
}

// AmountPerParticipant returns the exact share each participant must pay.
func (s *Service) AmountPerParticipant(ctx context.Context, splitID string) (uint64, error) {
	rec, err := s.store.GetSplit(ctx, splitID)
	if err != nil {
		return 0, s.mapStoreErr(err)
	}
	return rec.AmountPerParticipant, nil
}

// List returns up to limit splits created by the initiator.
func (s *Service) List(ctx context.Context, initiator string, limit int) ([]domain.Split, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListSplits(ctx, initiator, limit)
}

// compensate returns pulled funds to a contributor after a later step failed.
// A failed compensation is logged loudly; the escrow still holds the funds
// and an operator can replay the transfer.
func (s *Service) compensate(ctx context.Context, asset, to string, amount uint64) {
	if err := s.ledger.TransferOut(ctx, asset, to, amount); err != nil {
		s.log.WithError(err).
			WithField("participant", to).
			WithField("amount", amount).
			Error("compensating refund failed; funds remain in escrow")
	}
}

func (s *Service) mapStoreErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrSplitNotFound
	}
	return err
}

func (s *Service) emit(ctx context.Context, typ domain.EventType, splitID, actor string, payload map[string]any) {
	s.notifier.Notify(ctx, domain.Event{
		ID:         uuid.NewString(),
		Type:       typ,
		SplitID:    splitID,
		Actor:      actor,
		Payload:    payload,
		OccurredAt: s.now().UTC(),
	})
}
