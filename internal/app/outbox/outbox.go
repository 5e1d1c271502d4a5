package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"bazaar/internal/domain/shared/events"
)

// EventRecord is an encoded domain event waiting for relay.
type EventRecord struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Payload    []byte            `json:"payload"`
	OccurredAt time.Time         `json:"occurred_at"`
	Aggregate  string            `json:"aggregate"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// Outbox stores records with the unit of work found in ctx, when there is one. Flush hands the
// committed records to whatever relays them; it is a no-op for stores drained by a worker.
type Outbox interface {
	Add(ctx context.Context, record EventRecord) error
	Flush(ctx context.Context) error
}

// Sink consumes relayed records.
type Sink interface {
	Deliver(ctx context.Context, record EventRecord) error
}

type SinkFunc func(ctx context.Context, record EventRecord) error

func (f SinkFunc) Deliver(ctx context.Context, record EventRecord) error { return f(ctx, record) }

type EventEncoder interface {
	Encode(ev events.DomainEvent) (EventRecord, error)
}

type JSONEventEncoder struct {
	IDGenerator func() string
}

func (e JSONEventEncoder) Encode(ev events.DomainEvent) (EventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, err
	}
	idGen := e.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}
	headers := map[string]string{}
	if thread := events.Thread(ev); thread != "" {
		headers[events.HeaderConversation] = thread
	}
	return EventRecord{
		ID:         idGen(),
		Name:       ev.EventName(),
		Payload:    payload,
		OccurredAt: ev.OccurredAt().UTC(),
		Aggregate:  ev.AggregateID(),
		Headers:    headers,
	}, nil
}

func RecordDomainEvents(ctx context.Context, box Outbox, encoder EventEncoder, evs []events.DomainEvent) error {
	if box == nil || len(evs) == 0 {
		return nil
	}
	if encoder == nil {
		encoder = JSONEventEncoder{}
	}
	for _, ev := range evs {
		rec, err := encoder.Encode(ev)
		if err != nil {
			return err
		}
		if err := box.Add(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// PartitionKey is the conversation of the record when it has one, its aggregate otherwise.
func (r EventRecord) PartitionKey() string {
	if thread := r.Headers[events.HeaderConversation]; thread != "" {
		return thread
	}
	return r.Aggregate
}

// Decode unmarshals the payload of a record into out.
func Decode(record EventRecord, out any) error {
	return json.Unmarshal(record.Payload, out)
}
