package app

import (
	"context"
	"fmt"
	"time"

	"github.com/R3E-Network/splitpay/internal/app/events"
	splitsvc "github.com/R3E-Network/splitpay/internal/app/services/split"
	"github.com/R3E-Network/splitpay/internal/app/storage"
	"github.com/R3E-Network/splitpay/internal/app/storage/memory"
	"github.com/R3E-Network/splitpay/internal/app/system"
	"github.com/R3E-Network/splitpay/pkg/logger"
)

// Stores encapsulates persistence dependencies. A nil store defaults to the
// in-memory implementation.
type Stores struct {
	Splits storage.SplitStore
}

// Options configures the application's collaborators.
type Options struct {
	Stores Stores

	// Ledger settles asset transfers. Nil defaults to the in-process
	// memory ledger, suitable only for local development.
	Ledger splitsvc.Ledger

	// Notifier receives audit events. Nil defaults to the log notifier.
	Notifier splitsvc.Notifier

	// SweepInterval controls how often the expiry sweeper scans active
	// splits. Zero uses the sweeper default.
	SweepInterval time.Duration
}

// Application ties the split service together and manages its lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Splits *splitsvc.Service
}

// New builds a fully initialised application.
func New(opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	store := opts.Stores.Splits
	if store == nil {
		store = memory.New()
	}

	ledger := opts.Ledger
	if ledger == nil {
		log.Warn("no ledger configured; using in-process memory ledger")
		ledger = splitsvc.NewMemoryLedger()
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = events.NewLogNotifier(log)
	}

	service := splitsvc.New(store, ledger, splitsvc.NewSeqIDGenerator(), log)
	service.WithNotifier(notifier)

	manager := system.NewManager()
	if err := manager.Register(system.NoopService{ServiceName: "splits"}); err != nil {
		return nil, fmt.Errorf("register splits service: %w", err)
	}

	sweeper := splitsvc.NewExpirySweeper(store, notifier, opts.SweepInterval, log)
	if err := manager.Register(sweeper); err != nil {
		return nil, fmt.Errorf("register %s: %w", sweeper.Name(), err)
	}

	return &Application{
		manager: manager,
		log:     log,
		Splits:  service,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
