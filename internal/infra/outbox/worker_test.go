package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appoutbox "bazaar/internal/app/outbox"
)

type fakeClaimer struct {
	mu      sync.Mutex
	queue   []*EventDocument
	sent    []string
	failed  map[string]string
	dead    []string
	cutoffs []time.Time
}

func (c *fakeClaimer) Claim(context.Context, string) (*EventDocument, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, nil
	}
	doc := c.queue[0]
	c.queue = c.queue[1:]
	return doc, nil
}

func (c *fakeClaimer) MarkSent(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, id)
	return nil
}

func (c *fakeClaimer) MarkFailed(_ context.Context, id string, _ time.Time, msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed == nil {
		c.failed = map[string]string{}
	}
	c.failed[id] = msg
	return nil
}

func (c *fakeClaimer) MarkDead(_ context.Context, id string, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dead = append(c.dead, id)
	return nil
}

func (c *fakeClaimer) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cutoffs = append(c.cutoffs, cutoff)
	return 0, nil
}

type capture struct {
	topics  []string
	keys    []string
	records []appoutbox.EventRecord
	err     error
}

func (c *capture) Publish(_ context.Context, topic, key string, payload []byte, _ map[string]string) error {
	if c.err != nil {
		return c.err
	}
	rec, err := DecodeCloudEvent(payload)
	if err != nil {
		return err
	}
	c.topics = append(c.topics, topic)
	c.keys = append(c.keys, key)
	c.records = append(c.records, rec)
	return nil
}

func TestCloudEventRoundTripKeepsRecordIdentity(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := appoutbox.EventRecord{
		ID:         "evt-1",
		Name:       "offer.accepted",
		Payload:    []byte(`{"offer_id":"o1"}`),
		OccurredAt: at,
		Aggregate:  "o1",
		Headers:    map[string]string{"traceparent": "00-abc-def-01"},
	}
	payload, headers, err := EncodeCloudEvent(rec, DefaultSource)
	require.NoError(t, err)
	assert.Equal(t, "application/cloudevents+json", headers["content-type"])
	assert.Equal(t, "00-abc-def-01", headers["traceparent"])

	got, err := DecodeCloudEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Name, got.Name)
	assert.Equal(t, rec.Aggregate, got.Aggregate)
	assert.True(t, rec.OccurredAt.Equal(got.OccurredAt))
	assert.JSONEq(t, string(rec.Payload), string(got.Payload))
}

func TestEncodeRejectsNonJSONPayload(t *testing.T) {
	_, _, err := EncodeCloudEvent(appoutbox.EventRecord{ID: "x", Name: "a.b", Payload: []byte("nope")}, "")
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, "offer.events.v1", TopicFor("", "offer.accepted"))
	assert.Equal(t, "dev.user.events.v1", TopicFor("dev.", "user.blocked"))
	assert.Equal(t, "plain.events.v1", TopicFor("", "plain"))
}

func TestWorkerDrainsBacklogAndMarksFailures(t *testing.T) {
	claimer := &fakeClaimer{queue: []*EventDocument{
		{ID: "e1", Name: "message.sent", Payload: []byte(`{}`), Aggregate: "m1"},
		{ID: "e2", Name: "offer.created", Payload: []byte(`broken`), Aggregate: "o1"},
		{ID: "e3", Name: "offer.accepted", Payload: []byte(`{"a":1}`), Aggregate: "o1", Headers: map[string]string{"conversation_id": "c1"}},
	}}
	producer := &capture{}
	w := &Worker{Store: claimer, Producer: producer, ID: "relay-1"}

	for {
		claimed, err := w.processOnce(context.Background())
		require.NoError(t, err)
		if !claimed {
			break
		}
	}
	assert.Equal(t, []string{"e1", "e3"}, claimer.sent)
	assert.Contains(t, claimer.failed, "e2")
	assert.Equal(t, []string{"message.events.v1", "offer.events.v1"}, producer.topics)
	assert.Equal(t, []string{"m1", "c1"}, producer.keys)
}

func TestWorkerRetriesPublishFailures(t *testing.T) {
	claimer := &fakeClaimer{queue: []*EventDocument{{ID: "e1", Name: "offer.created", Payload: []byte(`{}`)}}}
	w := &Worker{Store: claimer, Producer: &capture{err: errors.New("no leader")}, Backoff: []time.Duration{time.Minute}}

	claimed, err := w.processOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Empty(t, claimer.sent)
	assert.Equal(t, "no leader", claimer.failed["e1"])
}

func TestSinkProducerDeliversDecodedRecords(t *testing.T) {
	var got []appoutbox.EventRecord
	sink := appoutbox.SinkFunc(func(_ context.Context, rec appoutbox.EventRecord) error {
		got = append(got, rec)
		return nil
	})
	payload, _, err := EncodeCloudEvent(appoutbox.EventRecord{ID: "e9", Name: "user.blocked", Payload: []byte(`{}`)}, "")
	require.NoError(t, err)

	require.NoError(t, SinkProducer{Sink: sink}.Publish(context.Background(), "user.events.v1", "", payload, nil))
	require.Len(t, got, 1)
	assert.Equal(t, "e9", got[0].ID)
	assert.Equal(t, "user.blocked", got[0].Name)
}

func TestRunRequiresDependencies(t *testing.T) {
	require.ErrorIs(t, (&Worker{}).Run(context.Background()), ErrWorkerNotConfigured)
}

func TestWorkerParksRecordsAfterMaxAttempts(t *testing.T) {
	claimer := &fakeClaimer{queue: []*EventDocument{{ID: "e1", Name: "offer.created", Payload: []byte(`{}`), Attempts: 2}}}
	w := &Worker{Store: claimer, Producer: &capture{err: errors.New("no leader")}, MaxAttempts: 3}

	_, err := w.processOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, claimer.dead)
	assert.NotContains(t, claimer.failed, "e1")
}

func TestWorkerPurgesAtMostOncePerWindow(t *testing.T) {
	claimer := &fakeClaimer{}
	w := &Worker{Store: claimer, Producer: &capture{}, Retention: time.Hour}

	w.purge(context.Background())
	w.purge(context.Background())
	require.Len(t, claimer.cutoffs, 1)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), claimer.cutoffs[0], time.Minute)
}
