package conversation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/shared/errs"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newConv(t *testing.T) *conversation.Conversation {
	t.Helper()
	c, err := conversation.New(conversation.CreateParams{ID: "c1", BuyerID: "buyer", SellerID: "seller", ListingID: "l1", CreatedAt: t0})
	require.NoError(t, err)
	return c
}

func TestNewValidatesParticipants(t *testing.T) {
	_, err := conversation.New(conversation.CreateParams{BuyerID: "a", SellerID: "a", ListingID: "l1"})
	require.ErrorIs(t, err, conversation.ErrParticipantsInvalid)

	_, err = conversation.New(conversation.CreateParams{BuyerID: "a", SellerID: "b"})
	require.ErrorIs(t, err, conversation.ErrListingRequired)
}

func TestNewRecordsStarted(t *testing.T) {
	c := newConv(t)
	evs := c.PullEvents()
	require.Len(t, evs, 1)
	assert.Equal(t, "conversation.started", evs[0].EventName())
	assert.True(t, c.Active)
	assert.Empty(t, c.PendingEvents())
}

func TestPairKeyIsUnordered(t *testing.T) {
	assert.Equal(t, conversation.PairKey("a", "b"), conversation.PairKey("b", "a"))
	assert.Equal(t, conversation.PairKey("seller", "buyer"), newConv(t).PairKey())
}

func TestAttachListingIsIdempotent(t *testing.T) {
	c := newConv(t)
	added, err := c.AttachListing("l1", t0)
	require.NoError(t, err)
	assert.False(t, added)

	added, err = c.AttachListing("l2", t0)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, []string{"l1", "l2"}, c.ListingIDs)
}

func TestDisplayTitle(t *testing.T) {
	c := newConv(t)
	titles := map[string]string{"l1": "Bike", "l2": "Lamp"}
	lookup := func(id string) string { return titles[id] }
	assert.Equal(t, "Bike", c.DisplayTitle(lookup))

	_, err := c.AttachListing("l2", t0)
	require.NoError(t, err)
	assert.Equal(t, conversation.MultiListingTitle, c.DisplayTitle(lookup))
}

func TestMarkReadMovesForwardOnly(t *testing.T) {
	c := newConv(t)
	moved, err := c.MarkRead("buyer", t0.Add(time.Minute), t0)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = c.MarkRead("buyer", t0, t0)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Equal(t, t0.Add(time.Minute), c.ReadMarker("buyer"))

	_, err = c.MarkRead("stranger", t0, t0)
	assert.Equal(t, errs.Forbidden, errs.KindOf(err))
}

func TestRefreshReportsChanges(t *testing.T) {
	c := newConv(t)
	s := conversation.Summary{
		Last:   &conversation.LastMessage{MessageID: "m1", SenderID: "buyer", At: t0.Add(time.Second)},
		Total:  1,
		Unread: map[string]int{"seller": 1},
	}
	assert.True(t, c.Refresh(s, t0))
	assert.False(t, c.Refresh(s, t0))
	assert.Equal(t, 1, c.UnreadFor("seller"))
	assert.Equal(t, 0, c.UnreadFor("buyer"))
	assert.Equal(t, t0.Add(time.Second), c.LastActivity())
}

func TestCounterpart(t *testing.T) {
	c := newConv(t)
	other, err := c.Counterpart("buyer")
	require.NoError(t, err)
	assert.Equal(t, "seller", other)
	_, err = c.Counterpart("x")
	require.ErrorIs(t, err, conversation.ErrNotParticipant)
}

func TestDeactivateOnce(t *testing.T) {
	c := newConv(t)
	c.PullEvents()
	assert.True(t, c.Deactivate("moderation", []string{"l1"}, t0))
	assert.False(t, c.Deactivate("moderation", nil, t0))
	evs := c.PullEvents()
	require.Len(t, evs, 1)
	ev, ok := evs[0].(conversation.Deactivated)
	require.True(t, ok)
	assert.Equal(t, []string{"l1"}, ev.ReleasedListings)
}

func TestSortByActivity(t *testing.T) {
	a := newConv(t)
	b, err := conversation.New(conversation.CreateParams{ID: "c2", BuyerID: "x", SellerID: "seller", ListingID: "l9", CreatedAt: t0.Add(time.Hour)})
	require.NoError(t, err)
	a.Refresh(conversation.Summary{Last: &conversation.LastMessage{MessageID: "m", At: t0.Add(2 * time.Hour)}, Total: 1}, t0)

	items := []*conversation.Conversation{b, a}
	conversation.SortByActivity(items)
	assert.Equal(t, conversation.ID("c1"), items[0].ID)
}
