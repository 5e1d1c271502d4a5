package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	appoutbox "bazaar/internal/app/outbox"
)

type Producer interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Claimer is the part of Store the relay needs.
type Claimer interface {
	Claim(ctx context.Context, workerID string) (*EventDocument, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error
	MarkDead(ctx context.Context, id string, errMsg string) error
}

// Purger is optional; stores implementing it get sent records older than Retention removed.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// Worker relays committed records as CloudEvents, one record per tick until the backlog is empty.
type Worker struct {
	Store       Claimer
	Producer    Producer
	Logger      *slog.Logger
	Interval    time.Duration
	TopicPrefix string
	Source      string
	ID          string
	Backoff     []time.Duration
	// MaxAttempts parks a record after that many failures; zero retries forever.
	MaxAttempts int
	Retention   time.Duration

	lastPurge time.Time
}

func (w *Worker) Run(ctx context.Context) error {
	if w.Store == nil || w.Producer == nil {
		return ErrWorkerNotConfigured
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for {
				sent, err := w.processOnce(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					if w.Logger != nil {
						w.Logger.Warn("outbox claim failed", "error", err)
					}
					break
				}
				if !sent {
					break
				}
			}
			w.purge(ctx)
		}
	}
}

// processOnce relays at most one record and reports whether one was claimed.
func (w *Worker) processOnce(ctx context.Context) (bool, error) {
	doc, err := w.Store.Claim(ctx, w.ID)
	if err != nil || doc == nil {
		return false, err
	}
	rec := doc.Record()
	payload, headers, err := EncodeCloudEvent(rec, w.source())
	if err != nil {
		w.fail(ctx, doc, err)
		return true, nil
	}
	if err := w.Producer.Publish(ctx, w.topicFor(doc.Name), rec.PartitionKey(), payload, headers); err != nil {
		w.fail(ctx, doc, err)
		return true, nil
	}
	return true, w.Store.MarkSent(ctx, doc.ID)
}

func (w *Worker) fail(ctx context.Context, doc *EventDocument, cause error) {
	attempts := doc.Attempts + 1
	var err error
	if w.MaxAttempts > 0 && attempts >= w.MaxAttempts {
		if w.Logger != nil {
			w.Logger.Error("outbox record parked", "event_id", doc.ID, "name", doc.Name, "attempts", attempts, "error", cause)
		}
		err = w.Store.MarkDead(ctx, doc.ID, cause.Error())
	} else {
		if w.Logger != nil {
			w.Logger.Warn("outbox relay failed", "event_id", doc.ID, "name", doc.Name, "attempts", attempts, "error", cause)
		}
		err = w.Store.MarkFailed(ctx, doc.ID, w.nextRetry(doc.Attempts), cause.Error())
	}
	if err != nil && w.Logger != nil {
		w.Logger.Error("outbox state update failed", "event_id", doc.ID, "error", err)
	}
}

// purge runs at most once per tenth of Retention.
func (w *Worker) purge(ctx context.Context) {
	p, ok := w.Store.(Purger)
	if !ok || w.Retention <= 0 {
		return
	}
	now := time.Now()
	if now.Sub(w.lastPurge) < w.Retention/10 {
		return
	}
	w.lastPurge = now
	n, err := p.Purge(ctx, now.Add(-w.Retention))
	if w.Logger == nil {
		return
	}
	if err != nil {
		w.Logger.Warn("outbox purge failed", "error", err)
		return
	}
	if n > 0 {
		w.Logger.Info("outbox purged", "records", n)
	}
}

func (w *Worker) topicFor(name string) string {
	return TopicFor(w.TopicPrefix, name)
}

// TopicFor maps "offer.accepted" to "<prefix>offer.events.v1".
func TopicFor(prefix, name string) string {
	base := name
	if idx := strings.IndexRune(name, '.'); idx > 0 {
		base = name[:idx]
	}
	return prefix + base + ".events.v1"
}

func (w *Worker) interval() time.Duration {
	if w.Interval <= 0 {
		return 500 * time.Millisecond
	}
	return w.Interval
}

func (w *Worker) nextRetry(attempts int) time.Time {
	if attempts < len(w.Backoff) {
		return time.Now().Add(w.Backoff[attempts])
	}
	if len(w.Backoff) > 0 {
		return time.Now().Add(w.Backoff[len(w.Backoff)-1])
	}
	return time.Now().Add(5 * time.Second)
}

func (w *Worker) source() string {
	if w.Source != "" {
		return w.Source
	}
	return DefaultSource
}

const DefaultSource = "app://bazaar"

var ErrWorkerNotConfigured = errors.New("outbox: worker missing dependencies")

type cloudEvent struct {
	SpecVersion     string            `json:"specversion"`
	ID              string            `json:"id"`
	Type            string            `json:"type"`
	Source          string            `json:"source"`
	Subject         string            `json:"subject,omitempty"`
	Time            time.Time         `json:"time"`
	DataContentType string            `json:"datacontenttype"`
	Data            json.RawMessage   `json:"data"`
	TraceParent     string            `json:"traceparent,omitempty"`
	Extensions      map[string]string `json:"bazaarheaders,omitempty"`
}

// EncodeCloudEvent wraps a record in a structured-mode CloudEvent. The record id becomes the event
// id so consumers can deduplicate redeliveries.
func EncodeCloudEvent(rec appoutbox.EventRecord, source string) ([]byte, map[string]string, error) {
	if !json.Valid(rec.Payload) {
		return nil, nil, ErrInvalidPayload
	}
	evt := cloudEvent{
		SpecVersion:     "1.0",
		ID:              rec.ID,
		Type:            rec.Name + ".v1",
		Source:          source,
		Subject:         rec.Aggregate,
		Time:            rec.OccurredAt,
		DataContentType: "application/json",
		Data:            rec.Payload,
		TraceParent:     rec.Headers["traceparent"],
		Extensions:      rec.Headers,
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, nil, err
	}
	headers := map[string]string{"content-type": "application/cloudevents+json"}
	for k, v := range rec.Headers {
		headers[k] = v
	}
	return payload, headers, nil
}

// DecodeCloudEvent reverses EncodeCloudEvent.
func DecodeCloudEvent(payload []byte) (appoutbox.EventRecord, error) {
	var evt cloudEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return appoutbox.EventRecord{}, err
	}
	if evt.ID == "" || evt.Type == "" {
		return appoutbox.EventRecord{}, ErrInvalidPayload
	}
	return appoutbox.EventRecord{
		ID:         evt.ID,
		Name:       strings.TrimSuffix(evt.Type, ".v1"),
		Payload:    []byte(evt.Data),
		OccurredAt: evt.Time,
		Aggregate:  evt.Subject,
		Headers:    evt.Extensions,
	}, nil
}

var ErrInvalidPayload = errors.New("outbox: payload is not a JSON event")

// SinkProducer delivers relayed events in-process, for deployments without a broker.
type SinkProducer struct {
	Sink appoutbox.Sink
}

func (p SinkProducer) Publish(ctx context.Context, _ string, _ string, payload []byte, _ map[string]string) error {
	rec, err := DecodeCloudEvent(payload)
	if err != nil {
		return err
	}
	return p.Sink.Deliver(ctx, rec)
}
