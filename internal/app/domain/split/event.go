package split

import "time"

// EventType identifies an audit notification emitted by the lifecycle.
type EventType string

const (
	EventCreated     EventType = "split.created"
	EventContributed EventType = "split.contributed"
	EventClosed      EventType = "split.closed"
	EventCancelled   EventType = "split.cancelled"
	EventRefunded    EventType = "split.refunded"
	EventExpired     EventType = "split.expired"
)

// Event is an append-only audit record mirroring a committed state change.
// Events are emitted after the state they describe is durable; consumers must
// treat them as observations, never as commands.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	SplitID    string         `json:"split_id"`
	Actor      string         `json:"actor"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
