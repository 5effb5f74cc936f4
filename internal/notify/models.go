package notify

import (
	"time"

	"github.com/google/uuid"
)

// EventType names the lifecycle moments other systems care about. Delivery
// fan-out (push, mail, broadcast) happens downstream of the broker; this
// service only publishes.
type EventType string

const (
	EventRequestCreated EventType = "request_created"
	EventStageAdvanced  EventType = "stage_advanced"
	EventRequestReady   EventType = "request_ready"
	EventRejected       EventType = "request_rejected"
	EventCancelled      EventType = "request_cancelled"
	EventExpired        EventType = "request_expired"
	EventGateExit       EventType = "gate_exit"
	EventGateEntry      EventType = "gate_entry"
	EventTrustAdjusted  EventType = "trust_adjusted"
	EventCooldownReset  EventType = "cooldown_reset"
)

// Event is the transport-agnostic payload handed to the broker. RecipientID
// is the actor the downstream fan-out should reach (the student, or the next
// approver in the chain).
type Event struct {
	ID          uuid.UUID `json:"id"`
	Type        EventType `json:"type"`
	RequestID   string    `json:"request_id,omitempty"`
	StudentID   string    `json:"student_id,omitempty"`
	RecipientID string    `json:"recipient_id,omitempty"`
	Message     string    `json:"message,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// OutboxEntry wraps an event while it waits in the outbox for the worker.
type OutboxEntry struct {
	ID        uuid.UUID
	Event     Event
	Attempts  int
	CreatedAt time.Time
}
