// Package events provides Notifier implementations that deliver split audit
// events to operators and external consumers.
package events

import (
	"context"

	domain "github.com/R3E-Network/splitpay/internal/app/domain/split"
	splitsvc "github.com/R3E-Network/splitpay/internal/app/services/split"
	"github.com/R3E-Network/splitpay/pkg/logger"
)

// LogNotifier writes every event to the structured log. It is the default
// sink when no message broker is configured.
type LogNotifier struct {
	log *logger.Logger
}

var _ splitsvc.Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a notifier writing to the given logger.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.NewDefault("events")
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, ev domain.Event) {
	n.log.WithFields(map[string]interface{}{
		"event_id":    ev.ID,
		"event_type":  string(ev.Type),
		"split_id":    ev.SplitID,
		"actor":       ev.Actor,
		"occurred_at": ev.OccurredAt,
	}).Info("split event")
}
