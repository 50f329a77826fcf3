package notify

import "time"

// EventType identifies an outbound notification.
type EventType string

const (
	EventOffer             EventType = "offer"
	EventOfferExpired      EventType = "offer_expired"
	EventOfferCancelled    EventType = "offer_cancelled"
	EventOfferWithdrawn    EventType = "offer_withdrawn"
	EventOfferRejectedAuto EventType = "offer_rejected_auto"
	EventStatusUpdated     EventType = "status_updated"
	EventAccepted          EventType = "accepted"
	EventNoVets            EventType = "no_vets"
	EventCancelled         EventType = "cancelled"
	EventManualExhausted   EventType = "manual_attempts_exhausted"
	EventOnWay             EventType = "on_way"
	EventArrived           EventType = "arrived"
	EventInService         EventType = "in_service"
	EventCompleted         EventType = "completed"
)

// Event is a typed notification published on a topic channel.
type Event struct {
	Type      EventType      `json:"type"`
	Topic     string         `json:"topic"`
	RequestID string         `json:"request_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Dispatcher publishes events to their topic channels. Implementations must
// not block the caller.
type Dispatcher interface {
	Publish(Event)
}

// Multi fans an event out to several dispatchers.
type Multi []Dispatcher

func (m Multi) Publish(e Event) {
	for _, d := range m {
		d.Publish(e)
	}
}

// Nop discards all events.
type Nop struct{}

func (Nop) Publish(Event) {}
