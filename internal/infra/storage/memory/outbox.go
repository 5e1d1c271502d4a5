package memory

import (
	"context"
	"errors"
	"sync"

	appoutbox "bazaar/internal/app/outbox"
	"bazaar/internal/app/uow"
)

// Outbox keeps records in memory and hands them to a sink on Flush. Records added inside a unit
// of this store are held back until the unit commits and dropped when it rolls back.
type Outbox struct {
	mu      sync.Mutex
	flushMu sync.Mutex
	pending []appoutbox.EventRecord
	sink    appoutbox.Sink
}

// SetSink installs the consumer of flushed records. Without a sink records accumulate.
func (o *Outbox) SetSink(sink appoutbox.Sink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sink = sink
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	if unit, ok := uow.FromContext(ctx); ok {
		if mu, ok := unit.(*Unit); ok && mu.store.outbox == o && mu.stage(record) {
			return nil
		}
	}
	o.enqueue([]appoutbox.EventRecord{record})
	return nil
}

func (o *Outbox) enqueue(records []appoutbox.EventRecord) {
	if len(records) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(o.pending, records...)
}

// Flush delivers pending records in order. Records the sink rejects stay pending for the next
// flush.
func (o *Outbox) Flush(ctx context.Context) error {
	o.flushMu.Lock()
	defer o.flushMu.Unlock()

	o.mu.Lock()
	batch := o.pending
	o.pending = nil
	sink := o.sink
	o.mu.Unlock()
	if sink == nil {
		o.requeue(batch)
		return nil
	}

	var failed []appoutbox.EventRecord
	var errs []error
	for _, rec := range batch {
		if err := sink.Deliver(ctx, rec); err != nil {
			failed = append(failed, rec)
			errs = append(errs, err)
		}
	}
	o.requeue(failed)
	return errors.Join(errs...)
}

func (o *Outbox) requeue(records []appoutbox.EventRecord) {
	if len(records) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(records, o.pending...)
}

// Pending returns a copy of the records waiting for delivery.
func (o *Outbox) Pending() []appoutbox.EventRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]appoutbox.EventRecord(nil), o.pending...)
}

var _ appoutbox.Outbox = (*Outbox)(nil)
