package notify

import (
	"time"

	"github.com/google/uuid"

	gen "github.com/yungbote/docforge-backend/internal/domain/generation"
)

type EventType string

const (
	EventClaimed       EventType = "claimed"
	EventItemCompleted EventType = "item_completed"
	EventItemFailed    EventType = "item_failed"
	EventCompleted     EventType = "completed"
	EventFailed        EventType = "failed"
	EventCancelled     EventType = "cancelled"
)

// Event is one lifecycle transition of a generation request.
type Event struct {
	Type       EventType         `json:"type"`
	TenantID   string            `json:"tenant_id"`
	RequestID  uuid.UUID         `json:"request_id"`
	BatchID    *uuid.UUID        `json:"batch_id,omitempty"`
	Status     gen.RequestStatus `json:"status,omitempty"`
	ItemID     *uuid.UUID        `json:"item_id,omitempty"`
	DocumentID *uuid.UUID        `json:"document_id,omitempty"`
	Message    string            `json:"message,omitempty"`
	At         time.Time         `json:"at"`
}

// NewEvent stamps an event for req.
func NewEvent(t EventType, req *gen.Request) Event {
	return Event{
		Type:      t,
		TenantID:  req.TenantID,
		RequestID: req.ID,
		BatchID:   req.BatchID,
		Status:    req.Status,
		At:        time.Now().UTC(),
	}
}

// JobNotifier publishes lifecycle events. Delivery is best effort; a failed
// publish is logged by the implementation and never surfaces to the caller.
type JobNotifier interface {
	Notify(ev Event)
	Close() error
}

type nopNotifier struct{}

func Nop() JobNotifier { return nopNotifier{} }

func (nopNotifier) Notify(Event) {}

func (nopNotifier) Close() error { return nil }
