package engine_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/app/commands"
	"bazaar/internal/app/dto"
	"bazaar/internal/app/engine"
	"bazaar/internal/app/feed"
	"bazaar/internal/app/handlers/blocks"
	"bazaar/internal/app/handlers/conversations"
	"bazaar/internal/app/handlers/offers"
	"bazaar/internal/app/handlers/reports"
	"bazaar/internal/app/identity"
	"bazaar/internal/app/policies"
	"bazaar/internal/app/queries"
	"bazaar/internal/app/reactions"
	"bazaar/internal/app/uow"
	"bazaar/internal/domain/block"
	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/offer"
	"bazaar/internal/domain/shared/errs"
	"bazaar/internal/domain/shared/money"
	"bazaar/internal/infra/storage/memory"
)

var (
	t0     = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	buyer  = identity.Principal{UserID: "alice"}
	seller = identity.Principal{UserID: "bob"}
	admin  = identity.Principal{UserID: "mod", Roles: []string{identity.RoleModerator}}
)

type harness struct {
	store   *memory.Store
	catalog *memory.Catalog
	notes   *memory.Notifications
	engine  *engine.Engine
}

func newHarness(t *testing.T, opts ...func(*engine.Deps)) *harness {
	t.Helper()
	store := memory.NewStore()
	catalog := memory.NewCatalog(
		policies.ListingInfo{ID: "L1", Title: "Road bike", Price: money.Must(10000, "EUR"), SellerID: seller.UserID},
		policies.ListingInfo{ID: "L2", Title: "Desk lamp", Price: money.Must(2500, "EUR"), SellerID: seller.UserID},
	)
	notes := memory.NewNotifications(nil)
	store.Outbox().SetSink(&reactions.Reactor{Dispatcher: notes, Listings: catalog, Inbox: memory.NewInbox()})

	var tick atomic.Int64
	deps := engine.Deps{
		UoWFactory:  memory.Factory{Store: store},
		Outbox:      store.Outbox(),
		Idempotency: memory.NewIdempotencyStore(time.Hour),
		Watcher:     store,
		Clock:       memory.NewClock(),
		Listings:    catalog,
		Now:         func() time.Time { return t0.Add(time.Duration(tick.Add(1)) * time.Second) },
	}
	for _, opt := range opts {
		opt(&deps)
	}
	eng, err := engine.New(deps)
	require.NoError(t, err)
	return &harness{store: store, catalog: catalog, notes: notes, engine: eng}
}

func dispatch[C commands.Command, R any](t *testing.T, h *harness, cmd C) R {
	t.Helper()
	res, err := commands.Dispatch[C, R](context.Background(), h.engine.Commands, cmd)
	require.NoError(t, err)
	return res
}

func attempt[C commands.Command](h *harness, cmd C) error {
	_, err := h.engine.Commands.Dispatch(context.Background(), cmd)
	return err
}

func ask[Q queries.Query, R any](t *testing.T, h *harness, q Q) R {
	t.Helper()
	res, err := queries.Ask[Q, R](context.Background(), h.engine.Queries, q)
	require.NoError(t, err)
	return res
}

func (h *harness) open(t *testing.T, listingID, first string) *dto.Conversation {
	t.Helper()
	return dispatch[conversations.CreateConversationCommand, *dto.Conversation](t, h, conversations.CreateConversationCommand{
		Actor: buyer, ListingID: listingID, FirstMessage: first,
	})
}

func (h *harness) send(t *testing.T, actor identity.Principal, convID, text string) dto.Message {
	t.Helper()
	return dispatch[conversations.SendMessageCommand, dto.Message](t, h, conversations.SendMessageCommand{
		Actor: actor, ConversationID: convID, Text: text,
	})
}

func (h *harness) view(t *testing.T, actor identity.Principal, convID string) dto.Conversation {
	t.Helper()
	return ask[conversations.GetConversationQuery, dto.Conversation](t, h, conversations.GetConversationQuery{Actor: actor, ConversationID: convID})
}

func (h *harness) offer(t *testing.T, actor identity.Principal, convID, listingID string, amount int64) *dto.Offer {
	t.Helper()
	return dispatch[offers.CreateOfferCommand, *dto.Offer](t, h, offers.CreateOfferCommand{
		Actor: actor, ConversationID: convID, ListingID: listingID, Amount: amount,
	})
}

func TestUnreadCountsFollowConversation(t *testing.T) {
	h := newHarness(t)
	conv := h.open(t, "L1", "is this available?")
	assert.Equal(t, 1, h.view(t, seller, conv.ID).UnreadCount)
	assert.Equal(t, 0, h.view(t, buyer, conv.ID).UnreadCount)

	h.send(t, seller, conv.ID, "yes, still here")
	assert.Equal(t, 1, h.view(t, buyer, conv.ID).UnreadCount)

	read := dispatch[conversations.MarkConversationReadCommand, dto.Conversation](t, h, conversations.MarkConversationReadCommand{Actor: seller, ConversationID: conv.ID})
	assert.Equal(t, 0, read.UnreadCount)
	assert.Equal(t, 0, h.view(t, seller, conv.ID).UnreadCount)
	assert.Equal(t, 1, h.view(t, buyer, conv.ID).UnreadCount)

	view := h.view(t, buyer, conv.ID)
	assert.Equal(t, 2, view.MessageCount)
	require.NotNil(t, view.LastMessage)
	assert.Equal(t, "yes, still here", view.LastMessage.Preview)
	assert.Equal(t, "Road bike", view.Title)

	notes := h.notes.For(seller.UserID)
	require.Len(t, notes, 1)
	assert.Equal(t, policies.NotifyNewMessage, notes[0].Type)
}

func TestCounterThenAcceptReservesListing(t *testing.T) {
	h := newHarness(t)
	conv := h.open(t, "L1", "hi")
	original := h.offer(t, buyer, conv.ID, "L1", 8000)
	assert.Equal(t, string(offer.StatusPending), original.Status)
	assert.Equal(t, seller.UserID, original.RecipientID)

	countered := dispatch[offers.CounterOfferCommand, dto.CounterResult](t, h, offers.CounterOfferCommand{
		Actor: seller, OfferID: original.ID, Amount: 9000,
	})
	assert.Equal(t, string(offer.StatusCountered), countered.Original.Status)
	assert.Equal(t, string(offer.StatusPending), countered.Counter.Status)
	assert.Equal(t, original.ID, countered.Counter.CounterOfferID)
	assert.Equal(t, money.Must(9000, "EUR"), countered.Counter.Price)

	accepted := dispatch[offers.AcceptOfferCommand, dto.Offer](t, h, offers.AcceptOfferCommand{Actor: buyer, OfferID: countered.Counter.ID})
	assert.Equal(t, string(offer.StatusAccepted), accepted.Status)

	listing, err := h.catalog.Listing(context.Background(), "L1")
	require.NoError(t, err)
	assert.Equal(t, policies.ListingReserved, listing.Status)

	list := ask[offers.ListOffersQuery, dto.OfferList](t, h, offers.ListOffersQuery{Actor: buyer, ConversationID: conv.ID})
	require.Len(t, list.Items, 2)
	assert.Equal(t, original.ID, list.Items[0].ID)

	msgs := ask[conversations.ListMessagesQuery, dto.MessageList](t, h, conversations.ListMessagesQuery{Actor: buyer, ConversationID: conv.ID})
	var statuses []string
	for _, m := range msgs.Items {
		if m.Offer != nil {
			statuses = append(statuses, m.Offer.Status)
		}
	}
	assert.Equal(t, []string{"ACCEPTED", "PENDING", "PENDING"}, statuses)

	var keys []string
	for _, n := range h.notes.For(seller.UserID) {
		keys = append(keys, n.Key)
	}
	assert.Contains(t, keys, fmt.Sprintf("OFFER_CHANGED:%s:ACCEPTED", countered.Counter.ID))
}

func TestBlockedUserCannotWrite(t *testing.T) {
	h := newHarness(t)
	conv := h.open(t, "L1", "hello")
	before := h.view(t, seller, conv.ID).UnreadCount

	dispatch[blocks.BlockUserCommand, dto.BlockEntry](t, h, blocks.BlockUserCommand{Actor: seller, TargetID: buyer.UserID})

	err := attempt(h, conversations.SendMessageCommand{Actor: buyer, ConversationID: conv.ID, Text: "are you there?"})
	assert.ErrorIs(t, err, block.ErrBlocked)
	assert.Equal(t, errs.Blocked, errs.KindOf(err))
	assert.Equal(t, before, h.view(t, seller, conv.ID).UnreadCount)

	err = attempt(h, offers.CreateOfferCommand{Actor: buyer, ConversationID: conv.ID, ListingID: "L1", Amount: 5000})
	assert.ErrorIs(t, err, block.ErrBlocked)

	err = attempt(h, conversations.SendMessageCommand{Actor: seller, ConversationID: conv.ID, Text: "bye"})
	assert.ErrorIs(t, err, block.ErrBlocked, "blocking stops writes in both directions")

	view := h.view(t, buyer, conv.ID)
	assert.True(t, view.BlockedByOther)
	assert.False(t, view.BlockedByMe)

	dispatch[blocks.UnblockUserCommand, dto.BlockEntry](t, h, blocks.UnblockUserCommand{Actor: seller, TargetID: buyer.UserID})
	h.send(t, buyer, conv.ID, "are you there?")
	h.offer(t, buyer, conv.ID, "L1", 5000)
}

func TestSecondListingJoinsExistingConversation(t *testing.T) {
	h := newHarness(t)
	first := h.open(t, "L1", "")
	second := h.open(t, "L2", "and the lamp?")
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, []string{"L1", "L2"}, second.ListingIDs)
	assert.Equal(t, conversation.MultiListingTitle, second.Title)

	list := ask[conversations.ListConversationsQuery, dto.ConversationList](t, h, conversations.ListConversationsQuery{Actor: seller})
	require.Len(t, list.Items, 1)
}

func TestOwnListingIsRejected(t *testing.T) {
	h := newHarness(t)
	err := attempt(h, conversations.CreateConversationCommand{Actor: seller, ListingID: "L1"})
	assert.ErrorIs(t, err, conversations.ErrOwnListing)
}

func TestSinglePendingOfferPerListing(t *testing.T) {
	h := newHarness(t)
	conv := h.open(t, "L1", "")
	h.offer(t, buyer, conv.ID, "L1", 8000)

	err := attempt(h, offers.CreateOfferCommand{Actor: seller, ConversationID: conv.ID, ListingID: "L1", Amount: 9500})
	assert.ErrorIs(t, err, offer.ErrInvalidOffer)

	h.open(t, "L2", "")
	h.offer(t, buyer, conv.ID, "L2", 2000)

	list := ask[offers.ListOffersQuery, dto.OfferList](t, h, offers.ListOffersQuery{Actor: seller, ConversationID: conv.ID})
	pending := map[string]int{}
	for _, o := range list.Items {
		if o.Status == string(offer.StatusPending) {
			pending[o.ListingID]++
		}
	}
	assert.Equal(t, map[string]int{"L1": 1, "L2": 1}, pending)
}

func TestTerminalOffersDoNotMove(t *testing.T) {
	h := newHarness(t)
	conv := h.open(t, "L1", "")
	o := h.offer(t, buyer, conv.ID, "L1", 8000)

	err := attempt(h, offers.AcceptOfferCommand{Actor: buyer, OfferID: o.ID})
	assert.ErrorIs(t, err, offer.ErrIllegalTransition, "the proposer cannot accept")

	dispatch[offers.RejectOfferCommand, dto.Offer](t, h, offers.RejectOfferCommand{Actor: seller, OfferID: o.ID})

	err = attempt(h, offers.AcceptOfferCommand{Actor: seller, OfferID: o.ID})
	assert.ErrorIs(t, err, offer.ErrIllegalTransition)
	err = attempt(h, offers.RejectOfferCommand{Actor: seller, OfferID: o.ID})
	assert.ErrorIs(t, err, offer.ErrIllegalTransition)
	err = attempt(h, offers.CounterOfferCommand{Actor: seller, OfferID: o.ID, Amount: 9000})
	assert.ErrorIs(t, err, offer.ErrIllegalTransition)

	got := ask[offers.GetOfferQuery, dto.Offer](t, h, offers.GetOfferQuery{Actor: buyer, OfferID: o.ID})
	assert.Equal(t, string(offer.StatusRejected), got.Status)

	// A fresh offer is possible once the previous one is terminal.
	h.offer(t, buyer, conv.ID, "L1", 8500)
}

func TestAcceptAndCounterRace(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newHarness(t)
		conv := h.open(t, "L1", "")
		o := h.offer(t, buyer, conv.ID, "L1", 8000)

		var wg sync.WaitGroup
		results := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			results[0] = attempt(h, offers.AcceptOfferCommand{Actor: seller, OfferID: o.ID})
		}()
		go func() {
			defer wg.Done()
			results[1] = attempt(h, offers.CounterOfferCommand{Actor: seller, OfferID: o.ID, Amount: 9000})
		}()
		wg.Wait()

		succeeded := 0
		for _, err := range results {
			if err == nil {
				succeeded++
				continue
			}
			assert.True(t, errs.Is(err, errs.StaleState) || errors.Is(err, offer.ErrIllegalTransition), "unexpected error: %v", err)
		}
		assert.Equal(t, 1, succeeded)

		list := ask[offers.ListOffersQuery, dto.OfferList](t, h, offers.ListOffersQuery{Actor: buyer, ConversationID: conv.ID})
		final := list.Items[0].Status
		if results[0] == nil {
			assert.Equal(t, string(offer.StatusAccepted), final)
			assert.Len(t, list.Items, 1)
		} else {
			assert.Equal(t, string(offer.StatusCountered), final)
			assert.Len(t, list.Items, 2)
		}
	}
}

func TestMarkReadIsMonotonic(t *testing.T) {
	h := newHarness(t)
	conv := h.open(t, "L1", "one")
	second := h.send(t, buyer, conv.ID, "two")

	dispatch[conversations.MarkConversationReadCommand, dto.Conversation](t, h, conversations.MarkConversationReadCommand{Actor: seller, ConversationID: conv.ID, Upto: second.CreatedAt})
	view := dispatch[conversations.MarkConversationReadCommand, dto.Conversation](t, h, conversations.MarkConversationReadCommand{Actor: seller, ConversationID: conv.ID, Upto: second.CreatedAt.Add(-time.Hour)})
	require.NotNil(t, view.LastReadAt)
	assert.True(t, view.LastReadAt.Equal(second.CreatedAt))
	assert.Equal(t, 0, view.UnreadCount)
}

func TestUnreadMatchesStreamAfterInterleaving(t *testing.T) {
	h := newHarness(t)
	conv := h.open(t, "L1", "start")
	users := []identity.Principal{buyer, seller}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 60; i++ {
		u := users[rng.Intn(2)]
		if rng.Intn(3) == 0 {
			dispatch[conversations.MarkConversationReadCommand, dto.Conversation](t, h, conversations.MarkConversationReadCommand{Actor: u, ConversationID: conv.ID})
			continue
		}
		h.send(t, u, conv.ID, fmt.Sprintf("msg %d", i))
	}

	msgs := ask[conversations.ListMessagesQuery, dto.MessageList](t, h, conversations.ListMessagesQuery{Actor: buyer, ConversationID: conv.ID, Limit: 200})
	for _, u := range users {
		view := h.view(t, u, conv.ID)
		expected := 0
		for _, m := range msgs.Items {
			if m.SenderID == u.UserID {
				continue
			}
			if view.LastReadAt == nil || m.CreatedAt.After(*view.LastReadAt) {
				expected++
			}
		}
		assert.Equal(t, expected, view.UnreadCount, "unread for %s", u.UserID)
		assert.Equal(t, len(msgs.Items), view.MessageCount)
	}
}

func TestSendWithClientIDIsIdempotent(t *testing.T) {
	h := newHarness(t)
	conv := h.open(t, "L1", "")
	cmd := conversations.SendMessageCommand{Actor: buyer, ConversationID: conv.ID, Text: "once", ClientMessageID: "client-1"}
	first := dispatch[conversations.SendMessageCommand, dto.Message](t, h, cmd)
	second := dispatch[conversations.SendMessageCommand, dto.Message](t, h, cmd)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, 1, h.view(t, seller, conv.ID).UnreadCount)
	assert.Len(t, h.notes.For(seller.UserID), 1)
}

func TestCreateConversationReplaysIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	cmd := conversations.CreateConversationCommand{Actor: buyer, ListingID: "L1", FirstMessage: "hi", IdempotencyKeyV: "k1"}
	first := dispatch[conversations.CreateConversationCommand, *dto.Conversation](t, h, cmd)
	second := dispatch[conversations.CreateConversationCommand, *dto.Conversation](t, h, cmd)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, h.view(t, seller, first.ID).MessageCount)
}

func TestBlockAndUnblockAreIdempotent(t *testing.T) {
	h := newHarness(t)
	conv := h.open(t, "L1", "")
	cmd := blocks.BlockUserCommand{Actor: seller, TargetID: buyer.UserID}
	dispatch[blocks.BlockUserCommand, dto.BlockEntry](t, h, cmd)
	once := h.view(t, seller, conv.ID)
	dispatch[blocks.BlockUserCommand, dto.BlockEntry](t, h, cmd)
	twice := h.view(t, seller, conv.ID)
	assert.Equal(t, once, twice)

	listed := ask[blocks.ListBlockedQuery, dto.BlockList](t, h, blocks.ListBlockedQuery{Actor: seller})
	require.Len(t, listed.Items, 1)
	assert.Equal(t, buyer.UserID, listed.Items[0].TargetID)

	un := blocks.UnblockUserCommand{Actor: seller, TargetID: buyer.UserID}
	dispatch[blocks.UnblockUserCommand, dto.BlockEntry](t, h, un)
	dispatch[blocks.UnblockUserCommand, dto.BlockEntry](t, h, un)
	listed = ask[blocks.ListBlockedQuery, dto.BlockList](t, h, blocks.ListBlockedQuery{Actor: seller})
	assert.Empty(t, listed.Items)

	err := attempt(h, blocks.BlockUserCommand{Actor: seller, TargetID: seller.UserID})
	assert.ErrorIs(t, err, block.ErrSelfBlock)
}

func TestReportLifecycle(t *testing.T) {
	h := newHarness(t)
	conv := h.open(t, "L1", "")
	filed := dispatch[reports.FileReportCommand, *dto.Report](t, h, reports.FileReportCommand{
		Actor: seller, ConversationID: conv.ID, Category: "spam",
	})
	assert.Equal(t, buyer.UserID, filed.ReportedUserID)
	assert.Equal(t, "PENDING", filed.Status)
	assert.Equal(t, 1, h.view(t, seller, conv.ID).ReportCount)

	err := attempt(h, reports.DismissReportCommand{Actor: buyer, ReportID: filed.ID})
	assert.ErrorIs(t, err, identity.ErrForbidden)

	err = attempt(h, reports.FileReportCommand{Actor: admin, ConversationID: conv.ID, Category: "SPAM"})
	assert.ErrorIs(t, err, conversation.ErrNotParticipant)

	dismissed := dispatch[reports.DismissReportCommand, dto.Report](t, h, reports.DismissReportCommand{Actor: admin, ReportID: filed.ID, Notes: "fine"})
	assert.Equal(t, "DISMISSED", dismissed.Status)
	again := dispatch[reports.ResolveReportCommand, dto.Report](t, h, reports.ResolveReportCommand{Actor: admin, ReportID: filed.ID, Action: "WARNING"})
	assert.Equal(t, dismissed, again)

	pending := ask[reports.ListReportsQuery, dto.ReportList](t, h, reports.ListReportsQuery{Actor: admin, Status: "PENDING"})
	assert.Empty(t, pending.Items)
	_, err = queries.Ask[reports.ListReportsQuery, dto.ReportList](context.Background(), h.engine.Queries, reports.ListReportsQuery{Actor: buyer})
	assert.ErrorIs(t, err, identity.ErrForbidden)
}

func TestDeletionDeactivatesConversationAndReleasesListing(t *testing.T) {
	h := newHarness(t)
	conv := h.open(t, "L1", "")
	o := h.offer(t, buyer, conv.ID, "L1", 9000)
	dispatch[offers.AcceptOfferCommand, dto.Offer](t, h, offers.AcceptOfferCommand{Actor: seller, OfferID: o.ID})
	listing, _ := h.catalog.Listing(context.Background(), "L1")
	require.Equal(t, policies.ListingReserved, listing.Status)

	filed := dispatch[reports.FileReportCommand, *dto.Report](t, h, reports.FileReportCommand{Actor: buyer, ConversationID: conv.ID, Category: "SCAM"})
	resolved := dispatch[reports.ResolveReportCommand, dto.Report](t, h, reports.ResolveReportCommand{Actor: admin, ReportID: filed.ID, Action: "DELETION"})
	assert.Equal(t, "RESOLVED", resolved.Status)
	assert.Equal(t, admin.UserID, resolved.ResolvedBy)

	assert.False(t, h.view(t, buyer, conv.ID).Active)
	listing, _ = h.catalog.Listing(context.Background(), "L1")
	assert.Equal(t, policies.ListingAvailable, listing.Status)

	err := attempt(h, conversations.SendMessageCommand{Actor: buyer, ConversationID: conv.ID, Text: "hello?"})
	assert.ErrorIs(t, err, conversation.ErrInactive)
}

func TestStrangersCannotRead(t *testing.T) {
	h := newHarness(t)
	conv := h.open(t, "L1", "private")
	stranger := identity.Principal{UserID: "eve"}
	_, err := queries.Ask[conversations.ListMessagesQuery, dto.MessageList](context.Background(), h.engine.Queries, conversations.ListMessagesQuery{Actor: stranger, ConversationID: conv.ID})
	assert.ErrorIs(t, err, conversation.ErrNotParticipant)

	err = attempt(h, conversations.SendMessageCommand{Actor: stranger, ConversationID: conv.ID, Text: "hi"})
	assert.ErrorIs(t, err, conversation.ErrNotParticipant)

	err = attempt(h, conversations.SendMessageCommand{Actor: identity.Principal{}, ConversationID: conv.ID, Text: "hi"})
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)
}

func TestWatchConversationsEmitsOnChange(t *testing.T) {
	h := newHarness(t)
	conv := h.open(t, "L1", "first")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f := ask[conversations.WatchConversationsQuery, feed.Feed[dto.ConversationList]](t, h, conversations.WatchConversationsQuery{Actor: seller})

	snapshots := 0
	for list, err := range f.Snapshots(ctx) {
		require.NoError(t, err)
		require.Len(t, list.Items, 1)
		snapshots++
		if snapshots == 1 {
			assert.Equal(t, 1, list.Items[0].UnreadCount)
			go func() {
				_ = attempt(h, conversations.SendMessageCommand{Actor: buyer, ConversationID: conv.ID, Text: "second"})
			}()
			continue
		}
		if list.Items[0].UnreadCount == 2 {
			break
		}
	}
	assert.GreaterOrEqual(t, snapshots, 2)
}

func TestMarkReadCoversMessagesAheadOfClock(t *testing.T) {
	h := newHarness(t, func(d *engine.Deps) {
		d.Now = func() time.Time { return t0 }
	})
	conv := h.open(t, "L1", "hi")
	h.send(t, buyer, conv.ID, "still there?")
	require.Equal(t, 2, h.view(t, seller, conv.ID).UnreadCount)

	read := dispatch[conversations.MarkConversationReadCommand, dto.Conversation](t, h, conversations.MarkConversationReadCommand{Actor: seller, ConversationID: conv.ID})
	assert.Equal(t, 0, read.UnreadCount)
	assert.Equal(t, 0, h.view(t, seller, conv.ID).UnreadCount)

	far := dispatch[conversations.MarkConversationReadCommand, dto.Conversation](t, h, conversations.MarkConversationReadCommand{
		Actor: buyer, ConversationID: conv.ID, Upto: t0.Add(time.Hour),
	})
	assert.Equal(t, 0, far.UnreadCount)
	h.send(t, seller, conv.ID, "yes")
	assert.Equal(t, 1, h.view(t, buyer, conv.ID).UnreadCount, "a marker in the future must not swallow later messages")
}

func TestReopeningConversationDoesNotRepostFirstMessage(t *testing.T) {
	h := newHarness(t)
	conv := h.open(t, "L1", "is this available?")
	again := h.open(t, "L1", "is this available?")
	assert.Equal(t, conv.ID, again.ID)
	assert.Equal(t, 1, again.MessageCount)

	withLamp := h.open(t, "L2", "and the lamp?")
	assert.Equal(t, 2, withLamp.MessageCount)
}

func TestConcurrentOffersLeaveOnePending(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newHarness(t)
		conv := h.open(t, "L1", "")

		const racers = 4
		var wg sync.WaitGroup
		results := make([]error, racers)
		for n := 0; n < racers; n++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				actor := buyer
				if n%2 == 1 {
					actor = seller
				}
				results[n] = attempt(h, offers.CreateOfferCommand{Actor: actor, ConversationID: conv.ID, ListingID: "L1", Amount: int64(7000 + n*100)})
			}(n)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range results {
			if err == nil {
				succeeded++
				continue
			}
			assert.True(t, errs.Is(err, errs.StaleState) || errors.Is(err, offer.ErrInvalidOffer), "unexpected error: %v", err)
		}
		assert.Equal(t, 1, succeeded)

		list := ask[offers.ListOffersQuery, dto.OfferList](t, h, offers.ListOffersQuery{Actor: buyer, ConversationID: conv.ID})
		pending := 0
		for _, o := range list.Items {
			if o.Status == string(offer.StatusPending) {
				pending++
			}
		}
		assert.Equal(t, 1, pending)
	}
}

// blockOnWrite commits a block right before the first writable unit that follows a read-only
// one, which is the window between the permission check and the append.
type blockOnWrite struct {
	uow.UoWFactory
	armed   atomic.Bool
	sawRead atomic.Bool
	block   func()
}

func (f *blockOnWrite) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if opts.ReadOnly {
		f.sawRead.Store(true)
	} else if f.sawRead.Load() && f.armed.CompareAndSwap(true, false) {
		f.block()
	}
	return f.UoWFactory.Begin(ctx, opts)
}

func TestBlockCommittedDuringSendStopsAppend(t *testing.T) {
	var factory *blockOnWrite
	h := newHarness(t, func(d *engine.Deps) {
		factory = &blockOnWrite{UoWFactory: d.UoWFactory}
		d.UoWFactory = factory
	})
	conv := h.open(t, "L1", "hello")
	factory.block = func() {
		dispatch[blocks.BlockUserCommand, dto.BlockEntry](t, h, blocks.BlockUserCommand{Actor: seller, TargetID: buyer.UserID})
	}
	factory.sawRead.Store(false)
	factory.armed.Store(true)

	err := attempt(h, conversations.SendMessageCommand{Actor: buyer, ConversationID: conv.ID, Text: "one more"})
	assert.ErrorIs(t, err, block.ErrBlocked)
	assert.False(t, factory.armed.Load())
	assert.Equal(t, 1, h.view(t, seller, conv.ID).MessageCount)
}
