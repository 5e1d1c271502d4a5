package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"bazaar/internal/app/feed"
	"bazaar/internal/domain/block"
	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/message"
	"bazaar/internal/domain/offer"
	"bazaar/internal/domain/report"
)

// Store keeps every aggregate and message stream in process. Units stage aggregate writes and
// apply them atomically on commit; message appends go straight to the stream.
type Store struct {
	mu            sync.RWMutex
	conversations map[conversation.ID]*conversation.Conversation
	pairs         map[string]conversation.ID
	messages      map[conversation.ID][]*message.Message
	messageIDs    map[message.ID]*message.Message
	offers        map[offer.ID]*offer.Offer
	blocks        map[string]*block.Entry
	reports       map[report.ID]*report.Report

	subMu sync.Mutex
	subs  map[*subscription]struct{}

	outbox *Outbox
}

func NewStore() *Store {
	s := &Store{
		conversations: make(map[conversation.ID]*conversation.Conversation),
		pairs:         make(map[string]conversation.ID),
		messages:      make(map[conversation.ID][]*message.Message),
		messageIDs:    make(map[message.ID]*message.Message),
		offers:        make(map[offer.ID]*offer.Offer),
		blocks:        make(map[string]*block.Entry),
		reports:       make(map[report.ID]*report.Report),
		subs:          make(map[*subscription]struct{}),
	}
	s.outbox = &Outbox{}
	return s
}

// Outbox returns the outbox whose records are staged by this store's units.
func (s *Store) Outbox() *Outbox {
	return s.outbox
}

type subscription struct {
	topic feed.Topic
	ch    chan struct{}
}

// Watch implements feed.Watcher. Signals are coalesced into a buffer of one.
func (s *Store) Watch(ctx context.Context, topic feed.Topic) (<-chan struct{}, error) {
	sub := &subscription{topic: topic, ch: make(chan struct{}, 1)}
	s.subMu.Lock()
	s.subs[sub] = struct{}{}
	s.subMu.Unlock()
	go func() {
		<-ctx.Done()
		s.subMu.Lock()
		delete(s.subs, sub)
		close(sub.ch)
		s.subMu.Unlock()
	}()
	return sub.ch, nil
}

func (s *Store) notify(topics map[feed.Topic]struct{}) {
	if len(topics) == 0 {
		return
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for sub := range s.subs {
		if _, ok := topics[sub.topic]; !ok {
			continue
		}
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
}

func conversationTopics(c *conversation.Conversation, into map[feed.Topic]struct{}) {
	into[feed.Topic{Kind: feed.TopicConversation, ID: string(c.ID)}] = struct{}{}
	for _, p := range c.Participants {
		into[feed.Topic{Kind: feed.TopicParticipant, ID: p}] = struct{}{}
	}
}

func cloneConversation(c *conversation.Conversation) *conversation.Conversation {
	out := &conversation.Conversation{
		ID:           c.ID,
		Participants: c.Participants,
		ListingIDs:   append([]string(nil), c.ListingIDs...),
		Unread:       make(map[string]int, len(c.Unread)),
		LastReadAt:   make(map[string]time.Time, len(c.LastReadAt)),
		Blocked:      make(map[string]bool, len(c.Blocked)),
		ReportCount:  c.ReportCount,
		LastReportAt: c.LastReportAt,
		MessageCount: c.MessageCount,
		Active:       c.Active,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Version:      c.Version,
	}
	if c.LastMessage != nil {
		last := *c.LastMessage
		out.LastMessage = &last
	}
	for k, v := range c.Unread {
		out.Unread[k] = v
	}
	for k, v := range c.LastReadAt {
		out.LastReadAt[k] = v
	}
	for k, v := range c.Blocked {
		out.Blocked[k] = v
	}
	return out
}

func cloneOffer(o *offer.Offer) *offer.Offer {
	out := *o
	out.ClearEvents()
	return &out
}

func cloneEntry(e *block.Entry) *block.Entry {
	out := *e
	out.ClearEvents()
	return &out
}

func cloneReport(r *report.Report) *report.Report {
	out := *r
	out.ClearEvents()
	return &out
}

func cloneMessage(m *message.Message) *message.Message {
	out := *m
	return &out
}

// insertMessage keeps a stream sorted by timestamp, then id.
func insertMessage(stream []*message.Message, m *message.Message) []*message.Message {
	i := sort.Search(len(stream), func(i int) bool {
		at := stream[i].CreatedAt
		if at.Equal(m.CreatedAt) {
			return stream[i].ID > m.ID
		}
		return at.After(m.CreatedAt)
	})
	stream = append(stream, nil)
	copy(stream[i+1:], stream[i:])
	stream[i] = m
	return stream
}
