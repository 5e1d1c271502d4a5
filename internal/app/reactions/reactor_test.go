package reactions_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/app/outbox"
	"bazaar/internal/app/policies"
	"bazaar/internal/app/reactions"
	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/message"
	"bazaar/internal/domain/offer"
	"bazaar/internal/domain/shared/events"
	"bazaar/internal/domain/shared/money"
	"bazaar/internal/infra/storage/memory"
)

var at = time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)

type flakyDispatcher struct {
	fail  int
	sent  []policies.Notification
	calls int
}

func (d *flakyDispatcher) Dispatch(_ context.Context, n policies.Notification) error {
	d.calls++
	if d.fail > 0 {
		d.fail--
		return errors.New("broker down")
	}
	d.sent = append(d.sent, n)
	return nil
}

func encode(t *testing.T, id string, ev events.DomainEvent) outbox.EventRecord {
	t.Helper()
	rec, err := outbox.JSONEventEncoder{IDGenerator: func() string { return id }}.Encode(ev)
	require.NoError(t, err)
	return rec
}

func TestMessageSentNotifiesReceiverOnce(t *testing.T) {
	d := &flakyDispatcher{}
	r := &reactions.Reactor{Dispatcher: d, Inbox: memory.NewInbox()}
	rec := encode(t, "e1", message.Sent{MessageID: "m1", ConversationID: "c1", SenderID: "a", ReceiverID: "b", Kind: message.KindText, Preview: "hi", At: at})

	require.NoError(t, r.Deliver(context.Background(), rec))
	require.NoError(t, r.Deliver(context.Background(), rec))
	require.Len(t, d.sent, 1)
	assert.Equal(t, policies.NotifyNewMessage, d.sent[0].Type)
	assert.Equal(t, "b", d.sent[0].RecipientID)
	assert.Equal(t, "NEW_MESSAGE:m1", d.sent[0].Key)
}

func TestOfferMessagesAreNotNotifiedTwice(t *testing.T) {
	d := &flakyDispatcher{}
	r := &reactions.Reactor{Dispatcher: d}
	rec := encode(t, "e1", message.Sent{MessageID: "m1", ConversationID: "c1", SenderID: "a", ReceiverID: "b", Kind: message.KindOffer, At: at})
	require.NoError(t, r.Deliver(context.Background(), rec))
	assert.Zero(t, d.calls)
}

func TestFailedReactionIsRetried(t *testing.T) {
	d := &flakyDispatcher{fail: 1}
	r := &reactions.Reactor{Dispatcher: d, Inbox: memory.NewInbox()}
	rec := encode(t, "e1", message.Sent{MessageID: "m1", ConversationID: "c1", SenderID: "a", ReceiverID: "b", Kind: message.KindText, At: at})

	assert.Error(t, r.Deliver(context.Background(), rec))
	require.NoError(t, r.Deliver(context.Background(), rec))
	assert.Len(t, d.sent, 1)
}

func TestAcceptedOfferReservesListing(t *testing.T) {
	d := &flakyDispatcher{}
	catalog := memory.NewCatalog(policies.ListingInfo{ID: "L1", SellerID: "s", Price: money.Must(100, "EUR")})
	r := &reactions.Reactor{Dispatcher: d, Listings: catalog}
	snap := offer.Snapshot{OfferID: "o1", ConversationID: "c1", ListingID: "L1", BuyerID: "b", SellerID: "s", ActorID: "s", CounterpartID: "b", Status: offer.StatusAccepted, Price: money.Must(90, "EUR"), At: at}

	require.NoError(t, r.Deliver(context.Background(), encode(t, "e1", offer.Accepted{Snapshot: snap})))
	require.Len(t, d.sent, 1)
	assert.Equal(t, "OFFER_CHANGED:o1:ACCEPTED", d.sent[0].Key)
	assert.Equal(t, "b", d.sent[0].RecipientID)

	l, err := catalog.Listing(context.Background(), "L1")
	require.NoError(t, err)
	assert.Equal(t, policies.ListingReserved, l.Status)

	deactivated := conversation.Deactivated{ConversationID: "c1", Reason: "report:r1", ReleasedListings: []string{"L1"}, At: at}
	require.NoError(t, r.Deliver(context.Background(), encode(t, "e2", deactivated)))
	l, _ = catalog.Listing(context.Background(), "L1")
	assert.Equal(t, policies.ListingAvailable, l.Status)
}

func TestUnknownEventsAreIgnored(t *testing.T) {
	d := &flakyDispatcher{}
	r := &reactions.Reactor{Dispatcher: d}
	require.NoError(t, r.Deliver(context.Background(), outbox.EventRecord{ID: "x", Name: "report.filed", Payload: []byte(`{}`)}))
	assert.Zero(t, d.calls)
}
