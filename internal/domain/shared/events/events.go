package events

import "time"

// HeaderConversation carries the conversation an event belongs to.
const HeaderConversation = "conversation_id"

// DomainEvent is a fact recorded by an aggregate and relayed through the outbox.
type DomainEvent interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
}

// Threaded is implemented by events that happen inside a conversation. Relays key records by it so
// one conversation's events stay ordered.
type Threaded interface {
	ThreadID() string
}

// Thread returns the conversation of ev, or "" when it has none.
func Thread(ev DomainEvent) string {
	if t, ok := ev.(Threaded); ok {
		return t.ThreadID()
	}
	return ""
}

// EventRecorder is embedded by aggregates to collect events until the handler persists them.
type EventRecorder struct {
	pending []DomainEvent
}

func (r *EventRecorder) Record(evs ...DomainEvent) {
	for _, ev := range evs {
		if ev != nil {
			r.pending = append(r.pending, ev)
		}
	}
}

func (r *EventRecorder) PendingEvents() []DomainEvent {
	return append([]DomainEvent(nil), r.pending...)
}

func (r *EventRecorder) ClearEvents() {
	r.pending = nil
}

// PullEvents returns the pending events and clears the recorder.
func (r *EventRecorder) PullEvents() []DomainEvent {
	out := r.pending
	r.pending = nil
	return out
}
