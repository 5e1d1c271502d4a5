package conversation

import (
	"context"
	"sort"
	"strings"
	"time"

	"bazaar/internal/domain/shared/errs"
	"bazaar/internal/domain/shared/events"
)

var (
	ErrNotFound            = errs.New(errs.NotFound, "conversation: not found")
	ErrParticipantsInvalid = errs.New(errs.Validation, "conversation: exactly two distinct participants required")
	ErrListingRequired     = errs.New(errs.Validation, "conversation: listing id required")
	ErrNotParticipant      = errs.New(errs.Forbidden, "conversation: user is not a participant")
	ErrInactive            = errs.New(errs.Blocked, "conversation: inactive")
)

// MultiListingTitle is shown instead of a listing title when a conversation covers several listings.
const MultiListingTitle = "Multiple listings"

type ID string

// LastMessage summarises the newest message of the stream.
type LastMessage struct {
	MessageID string
	SenderID  string
	Kind      string
	Preview   string
	At        time.Time
}

// Conversation is the per-pair aggregate shared by buyer and seller. Only its summary fields
// (last message, counters, read markers, blocked flags) are written by both participants.
type Conversation struct {
	ID           ID
	Participants [2]string
	ListingIDs   []string
	LastMessage  *LastMessage
	Unread       map[string]int
	LastReadAt   map[string]time.Time
	Blocked      map[string]bool
	ReportCount  int
	LastReportAt time.Time
	MessageCount int
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Version      int64
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*Conversation, error)
	ByParticipants(ctx context.Context, a, b string) (*Conversation, error)
	ListByParticipant(ctx context.Context, userID string) ([]*Conversation, error)
	Save(ctx context.Context, c *Conversation) error
}

type CreateParams struct {
	ID        ID
	BuyerID   string
	SellerID  string
	ListingID string
	CreatedAt time.Time
}

func New(params CreateParams) (*Conversation, error) {
	buyer := strings.TrimSpace(params.BuyerID)
	seller := strings.TrimSpace(params.SellerID)
	if buyer == "" || seller == "" || buyer == seller {
		return nil, ErrParticipantsInvalid
	}
	listingID := strings.TrimSpace(params.ListingID)
	if listingID == "" {
		return nil, ErrListingRequired
	}
	now := params.CreatedAt.UTC()
	c := &Conversation{
		ID:           params.ID,
		Participants: [2]string{buyer, seller},
		ListingIDs:   []string{listingID},
		Unread:       map[string]int{buyer: 0, seller: 0},
		LastReadAt:   map[string]time.Time{},
		Blocked:      map[string]bool{},
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	c.Record(Started{ConversationID: c.ID, BuyerID: buyer, SellerID: seller, ListingID: listingID, At: now})
	return c, nil
}

// PairKey identifies the unordered participant pair.
func PairKey(a, b string) string {
	ids := []string{strings.TrimSpace(a), strings.TrimSpace(b)}
	sort.Strings(ids)
	return ids[0] + "|" + ids[1]
}

func (c *Conversation) PairKey() string {
	return PairKey(c.Participants[0], c.Participants[1])
}

func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.Participants[0] == userID || c.Participants[1] == userID)
}

// Counterpart returns the other participant.
func (c *Conversation) Counterpart(userID string) (string, error) {
	switch userID {
	case "":
		return "", ErrNotParticipant
	case c.Participants[0]:
		return c.Participants[1], nil
	case c.Participants[1]:
		return c.Participants[0], nil
	default:
		return "", ErrNotParticipant
	}
}

func (c *Conversation) HasListing(listingID string) bool {
	for _, id := range c.ListingIDs {
		if id == listingID {
			return true
		}
	}
	return false
}

// AttachListing adds a listing to the conversation; it reports false when already present.
func (c *Conversation) AttachListing(listingID string, now time.Time) (bool, error) {
	listingID = strings.TrimSpace(listingID)
	if listingID == "" {
		return false, ErrListingRequired
	}
	if c.HasListing(listingID) {
		return false, nil
	}
	c.ListingIDs = append(c.ListingIDs, listingID)
	c.UpdatedAt = now.UTC()
	c.Record(ListingAttached{ConversationID: c.ID, ListingID: listingID, At: c.UpdatedAt})
	return true, nil
}

// MarkRead moves the user's read marker forward. Older or equal timestamps are ignored.
func (c *Conversation) MarkRead(userID string, upto time.Time, now time.Time) (bool, error) {
	if !c.HasParticipant(userID) {
		return false, ErrNotParticipant
	}
	upto = upto.UTC()
	if c.LastReadAt == nil {
		c.LastReadAt = map[string]time.Time{}
	}
	if !upto.After(c.LastReadAt[userID]) {
		return false, nil
	}
	c.LastReadAt[userID] = upto
	c.UpdatedAt = now.UTC()
	return true, nil
}

// ReadMarker returns the user's last-read timestamp (zero when nothing was read yet).
func (c *Conversation) ReadMarker(userID string) time.Time {
	return c.LastReadAt[userID]
}

// EarliestReadMarker is the oldest read marker among participants; messages after it are the
// only ones that can still count as unread for someone.
func (c *Conversation) EarliestReadMarker() time.Time {
	a, b := c.ReadMarker(c.Participants[0]), c.ReadMarker(c.Participants[1])
	if a.Before(b) {
		return a
	}
	return b
}

// Summary is the derived view of the message stream.
type Summary struct {
	Last   *LastMessage
	Total  int
	Unread map[string]int
}

// Refresh replaces the derived fields with a summary recomputed from the stream. It reports
// whether anything changed.
func (c *Conversation) Refresh(s Summary, now time.Time) bool {
	changed := c.MessageCount != s.Total || !sameLast(c.LastMessage, s.Last)
	unread := map[string]int{}
	for _, p := range c.Participants {
		unread[p] = s.Unread[p]
		if c.Unread[p] != unread[p] {
			changed = true
		}
	}
	if !changed {
		return false
	}
	c.MessageCount = s.Total
	c.Unread = unread
	if s.Last != nil {
		last := *s.Last
		last.At = last.At.UTC()
		c.LastMessage = &last
	} else {
		c.LastMessage = nil
	}
	c.UpdatedAt = now.UTC()
	return true
}

func sameLast(a, b *LastMessage) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.MessageID == b.MessageID
}

// UnreadFor returns the unread counter of a participant.
func (c *Conversation) UnreadFor(userID string) int {
	return c.Unread[userID]
}

// SetBlocked records that actor has (un)blocked the counterpart. It reports whether the flag changed.
func (c *Conversation) SetBlocked(actorID string, blocked bool, now time.Time) (bool, error) {
	if !c.HasParticipant(actorID) {
		return false, ErrNotParticipant
	}
	if c.Blocked == nil {
		c.Blocked = map[string]bool{}
	}
	if c.Blocked[actorID] == blocked {
		return false, nil
	}
	if blocked {
		c.Blocked[actorID] = true
	} else {
		delete(c.Blocked, actorID)
	}
	c.UpdatedAt = now.UTC()
	return true, nil
}

// BlockedBy reports whether the user has blocked the counterpart in this conversation.
func (c *Conversation) BlockedBy(userID string) bool {
	return c.Blocked[userID]
}

func (c *Conversation) RecordReport(at time.Time) {
	c.ReportCount++
	c.LastReportAt = at.UTC()
	c.UpdatedAt = c.LastReportAt
}

// Deactivate soft-deletes the conversation. released lists listings whose reservation made
// through this conversation is void.
func (c *Conversation) Deactivate(reason string, released []string, now time.Time) bool {
	if !c.Active {
		return false
	}
	c.Active = false
	c.UpdatedAt = now.UTC()
	c.Record(Deactivated{ConversationID: c.ID, Reason: reason, ReleasedListings: append([]string(nil), released...), At: c.UpdatedAt})
	return true
}

// LastActivity is the sort key of conversation lists.
func (c *Conversation) LastActivity() time.Time {
	if c.LastMessage != nil && !c.LastMessage.At.IsZero() {
		return c.LastMessage.At
	}
	return c.CreatedAt
}

// DisplayTitle returns MultiListingTitle for multi-listing conversations, else the listing title.
func (c *Conversation) DisplayTitle(title func(listingID string) string) string {
	if len(c.ListingIDs) > 1 {
		return MultiListingTitle
	}
	if len(c.ListingIDs) == 0 || title == nil {
		return ""
	}
	return title(c.ListingIDs[0])
}

// SortByActivity orders conversations by most recent activity, newest first.
func SortByActivity(items []*Conversation) {
	sort.SliceStable(items, func(i, j int) bool {
		ai, aj := items[i].LastActivity(), items[j].LastActivity()
		if ai.Equal(aj) {
			return items[i].ID > items[j].ID
		}
		return ai.After(aj)
	})
}
