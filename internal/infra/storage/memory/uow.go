package memory

import (
	"context"
	"errors"
	"sync"

	"bazaar/internal/app/feed"
	appoutbox "bazaar/internal/app/outbox"
	"bazaar/internal/app/uow"
	"bazaar/internal/domain/block"
	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/message"
	"bazaar/internal/domain/offer"
	"bazaar/internal/domain/report"
	"bazaar/internal/domain/shared/errs"
)

var (
	ErrReadOnlyUnit = errors.New("memory: write in read-only unit")
	ErrUnitClosed   = errors.New("memory: unit already committed or rolled back")
)

// Factory begins units over a Store.
type Factory struct {
	Store *Store
}

// ErrFactoryMisconfigured indicates a missing store.
var ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")

func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.Store == nil {
		return nil, ErrFactoryMisconfigured
	}
	return &Unit{
		store:         f.Store,
		readOnly:      opts.ReadOnly,
		conversations: make(map[conversation.ID]*conversation.Conversation),
		offers:        make(map[offer.ID]*offer.Offer),
		blocks:        make(map[string]*block.Entry),
		reports:       make(map[report.ID]*report.Report),
	}, nil
}

// Unit stages aggregate writes until Commit. Reads see the unit's own staged writes.
type Unit struct {
	store    *Store
	readOnly bool

	mu            sync.Mutex
	conversations map[conversation.ID]*conversation.Conversation
	offers        map[offer.ID]*offer.Offer
	blocks        map[string]*block.Entry
	reports       map[report.ID]*report.Report
	records       []appoutbox.EventRecord
	done          bool
}

func (u *Unit) Conversations() conversation.Repository { return conversationRepo{u: u} }
func (u *Unit) Messages() message.Repository           { return messageRepo{s: u.store} }
func (u *Unit) Offers() offer.Repository               { return offerRepo{u: u} }
func (u *Unit) Blocks() block.Repository               { return blockRepo{u: u} }
func (u *Unit) Reports() report.Repository             { return reportRepo{u: u} }

// stage keeps an outbox record until the unit commits.
func (u *Unit) stage(rec appoutbox.EventRecord) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return false
	}
	u.records = append(u.records, rec)
	return true
}

// writable must be called with u.mu held.
func (u *Unit) writable() error {
	if u.readOnly {
		return ErrReadOnlyUnit
	}
	if u.done {
		return ErrUnitClosed
	}
	return nil
}

// Commit re-checks every staged version against the store and applies all writes or none.
func (u *Unit) Commit(ctx context.Context) error {
	u.mu.Lock()
	if u.done {
		u.mu.Unlock()
		return ErrUnitClosed
	}
	u.done = true
	records := u.records
	u.mu.Unlock()

	s := u.store
	topics := make(map[feed.Topic]struct{})
	s.mu.Lock()
	if err := u.verifyLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	for id, c := range u.conversations {
		s.conversations[id] = c
		s.pairs[c.PairKey()] = id
		conversationTopics(c, topics)
	}
	for id, o := range u.offers {
		s.offers[id] = o
		topics[feed.Topic{Kind: feed.TopicConversation, ID: string(o.ConversationID)}] = struct{}{}
	}
	for key, e := range u.blocks {
		s.blocks[key] = e
		topics[feed.Topic{Kind: feed.TopicParticipant, ID: e.ActorID}] = struct{}{}
		topics[feed.Topic{Kind: feed.TopicParticipant, ID: e.TargetID}] = struct{}{}
	}
	for id, r := range u.reports {
		s.reports[id] = r
	}
	s.mu.Unlock()

	s.outbox.enqueue(records)
	s.notify(topics)
	return nil
}

func (u *Unit) verifyLocked() error {
	s := u.store
	for id, c := range u.conversations {
		if err := expectVersion(c.Version, versionOf(s.conversations[id])); err != nil {
			return errs.Wrap(errs.StaleState, "memory: conversation "+string(id), err)
		}
		if other, ok := s.pairs[c.PairKey()]; ok && other != id {
			return errs.New(errs.StaleState, "memory: conversation already exists for participants")
		}
	}
	for id, o := range u.offers {
		if err := expectVersion(o.Version, offerVersion(s.offers[id])); err != nil {
			return errs.Wrap(errs.StaleState, "memory: offer "+string(id), err)
		}
		if o.Status != offer.StatusPending {
			continue
		}
		for otherID, other := range s.offers {
			if otherID == id || other.Status != offer.StatusPending {
				continue
			}
			if staged, ok := u.offers[otherID]; ok && staged.Status != offer.StatusPending {
				continue
			}
			if other.ConversationID == o.ConversationID && other.ListingID == o.ListingID {
				return errs.New(errs.StaleState, "memory: listing already has a pending offer in conversation")
			}
		}
	}
	for key, e := range u.blocks {
		if err := expectVersion(e.Version, entryVersion(s.blocks[key])); err != nil {
			return errs.Wrap(errs.StaleState, "memory: block "+key, err)
		}
	}
	for id, r := range u.reports {
		if err := expectVersion(r.Version, reportVersion(s.reports[id])); err != nil {
			return errs.Wrap(errs.StaleState, "memory: report "+string(id), err)
		}
	}
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.done = true
	u.records = nil
	return nil
}

var errVersionMismatch = errors.New("version mismatch")

// expectVersion checks a staged version, already incremented by Save, against the stored one.
func expectVersion(staged, stored int64) error {
	if staged-1 != stored {
		return errVersionMismatch
	}
	return nil
}

func versionOf(c *conversation.Conversation) int64 {
	if c == nil {
		return 0
	}
	return c.Version
}

func offerVersion(o *offer.Offer) int64 {
	if o == nil {
		return 0
	}
	return o.Version
}

func entryVersion(e *block.Entry) int64 {
	if e == nil {
		return 0
	}
	return e.Version
}

func reportVersion(r *report.Report) int64 {
	if r == nil {
		return 0
	}
	return r.Version
}

var _ uow.UoWFactory = Factory{}
