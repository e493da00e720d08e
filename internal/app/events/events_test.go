package events

import (
	"context"
	"testing"
	"time"

	domain "github.com/R3E-Network/splitpay/internal/app/domain/split"
)

type orderedNotifier struct {
	name  string
	order *[]string
}

func (n *orderedNotifier) Notify(context.Context, domain.Event) {
	*n.order = append(*n.order, n.name)
}

func TestFanoutDeliversInOrder(t *testing.T) {
	var order []string
	fanout := Fanout{
		&orderedNotifier{name: "first", order: &order},
		&orderedNotifier{name: "second", order: &order},
		&orderedNotifier{name: "third", order: &order},
	}

	fanout.Notify(context.Background(), domain.Event{ID: "e1"})

	if len(order) != 3 {
		t.Fatalf("delivered to %d notifiers, want 3", len(order))
	}
	for i, want := range []string{"first", "second", "third"} {
		if order[i] != want {
			t.Fatalf("delivery order = %v", order)
		}
	}
}

func TestLogNotifier(t *testing.T) {
	// Only checks delivery does not panic; the sink is the structured log.
	notifier := NewLogNotifier(nil)
	notifier.Notify(context.Background(), domain.Event{
		ID:         "e1",
		Type:       domain.EventCreated,
		SplitID:    "s1",
		Actor:      "alice",
		OccurredAt: time.Now().UTC(),
	})
}
