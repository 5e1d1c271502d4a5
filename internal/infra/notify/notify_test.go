package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/app/policies"
	"bazaar/internal/domain/shared/money"
)

type published struct {
	topic   string
	key     string
	payload []byte
	headers map[string]string
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, topic, key string, payload []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{topic: topic, key: key, payload: payload, headers: headers})
	return nil
}

func TestDispatcherPublishesKeyedByRecipient(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDispatcher(pub, "", 0, nil)

	err := d.Dispatch(context.Background(), policies.Notification{
		Type:           policies.NotifyNewMessage,
		ConversationID: "c1",
		ActorID:        "alice",
		RecipientID:    "bob",
		Key:            "NEW_MESSAGE:m1",
	})
	require.NoError(t, err)
	require.Len(t, pub.sent, 1)
	got := pub.sent[0]
	assert.Equal(t, DefaultNotificationTopic, got.topic)
	assert.Equal(t, "bob", got.key)
	assert.Equal(t, "NEW_MESSAGE:m1", got.headers["dedupe-key"])

	var decoded policies.Notification
	require.NoError(t, json.Unmarshal(got.payload, &decoded))
	assert.Equal(t, policies.NotifyNewMessage, decoded.Type)
	assert.Equal(t, "c1", decoded.ConversationID)
}

func TestDispatcherPropagatesPublishFailure(t *testing.T) {
	boom := errors.New("broker down")
	d := NewDispatcher(&fakePublisher{err: boom}, "notes", 100, nil)
	err := d.Dispatch(context.Background(), policies.Notification{RecipientID: "bob", Key: "k"})
	require.ErrorIs(t, err, boom)
}

type staticLookup map[string]policies.ListingInfo

func (s staticLookup) Listing(_ context.Context, id string) (policies.ListingInfo, error) {
	return s[id], nil
}

func TestListingStatusPublishesReservations(t *testing.T) {
	pub := &fakePublisher{}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ls := &ListingStatus{
		Lookup:    staticLookup{"L1": {ID: "L1", SellerID: "bob", Price: money.Money{Amount: 100, Currency: "EUR"}}},
		Publisher: pub,
		Now:       func() time.Time { return at },
	}

	info, err := ls.Listing(context.Background(), "L1")
	require.NoError(t, err)
	assert.Equal(t, "bob", info.SellerID)

	require.NoError(t, ls.NotifyReserved(context.Background(), "L1", "alice"))
	require.NoError(t, ls.NotifyAvailable(context.Background(), "L1"))
	require.Len(t, pub.sent, 2)

	var first, second listingStatusChange
	require.NoError(t, json.Unmarshal(pub.sent[0].payload, &first))
	require.NoError(t, json.Unmarshal(pub.sent[1].payload, &second))
	assert.Equal(t, policies.ListingReserved, first.Status)
	assert.Equal(t, "alice", first.BuyerID)
	assert.Equal(t, at, first.At)
	assert.Equal(t, policies.ListingAvailable, second.Status)
	assert.Equal(t, DefaultListingStatusTopic, pub.sent[1].topic)
	assert.Equal(t, "L1", pub.sent[1].key)
}
