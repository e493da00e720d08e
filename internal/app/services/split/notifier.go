package split

import (
	"context"

	domain "github.com/R3E-Network/splitpay/internal/app/domain/split"
)

// Notifier consumes audit events. Events describe state that is already
// committed; a notifier failure must never fail the operation that produced
// the event, so implementations report problems through their own logging.
type Notifier interface {
	Notify(ctx context.Context, ev domain.Event)
}

// NopNotifier drops all events.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, domain.Event) {}
