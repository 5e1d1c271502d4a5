package memory

import (
	"context"
	"sort"

	"bazaar/internal/domain/block"
	"bazaar/internal/domain/conversation"
	"bazaar/internal/domain/offer"
	"bazaar/internal/domain/report"
	"bazaar/internal/domain/shared/errs"
)

func staleVersion(what string) error {
	return errs.New(errs.StaleState, "memory: "+what+" was modified concurrently")
}

type conversationRepo struct {
	u *Unit
}

func (r conversationRepo) ByID(ctx context.Context, id conversation.ID) (*conversation.Conversation, error) {
	r.u.mu.Lock()
	staged, ok := r.u.conversations[id]
	r.u.mu.Unlock()
	if ok {
		return cloneConversation(staged), nil
	}
	s := r.u.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, conversation.ErrNotFound
	}
	return cloneConversation(c), nil
}

func (r conversationRepo) ByParticipants(ctx context.Context, a, b string) (*conversation.Conversation, error) {
	key := conversation.PairKey(a, b)
	r.u.mu.Lock()
	for _, c := range r.u.conversations {
		if c.PairKey() == key {
			r.u.mu.Unlock()
			return cloneConversation(c), nil
		}
	}
	r.u.mu.Unlock()
	s := r.u.store
	s.mu.RLock()
	id, ok := s.pairs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, conversation.ErrNotFound
	}
	return r.ByID(ctx, id)
}

func (r conversationRepo) ListByParticipant(ctx context.Context, userID string) ([]*conversation.Conversation, error) {
	seen := make(map[conversation.ID]bool)
	var out []*conversation.Conversation
	r.u.mu.Lock()
	for id, c := range r.u.conversations {
		if c.HasParticipant(userID) {
			out = append(out, cloneConversation(c))
		}
		seen[id] = true
	}
	r.u.mu.Unlock()
	s := r.u.store
	s.mu.RLock()
	for id, c := range s.conversations {
		if !seen[id] && c.HasParticipant(userID) {
			out = append(out, cloneConversation(c))
		}
	}
	s.mu.RUnlock()
	conversation.SortByActivity(out)
	return out, nil
}

// Save stages c when its version matches the latest known one and bumps the version.
func (r conversationRepo) Save(ctx context.Context, c *conversation.Conversation) error {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	if err := r.u.writable(); err != nil {
		return err
	}
	current, staged := r.u.conversations[c.ID]
	if !staged {
		s := r.u.store
		s.mu.RLock()
		current = s.conversations[c.ID]
		if c.Version == 0 {
			if other, ok := s.pairs[c.PairKey()]; ok && other != c.ID {
				s.mu.RUnlock()
				return staleVersion("conversation pair")
			}
		}
		s.mu.RUnlock()
	}
	if c.Version != versionOf(current) {
		return staleVersion("conversation " + string(c.ID))
	}
	c.Version++
	r.u.conversations[c.ID] = cloneConversation(c)
	return nil
}

type offerRepo struct {
	u *Unit
}

func (r offerRepo) ByID(ctx context.Context, id offer.ID) (*offer.Offer, error) {
	r.u.mu.Lock()
	staged, ok := r.u.offers[id]
	r.u.mu.Unlock()
	if ok {
		return cloneOffer(staged), nil
	}
	s := r.u.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.offers[id]
	if !ok {
		return nil, offer.ErrNotFound
	}
	return cloneOffer(o), nil
}

func (r offerRepo) PendingFor(ctx context.Context, conversationID conversation.ID, listingID string) (*offer.Offer, error) {
	all, err := r.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	for _, o := range all {
		if o.ListingID == listingID && o.Status == offer.StatusPending {
			return o, nil
		}
	}
	return nil, nil
}

// ListByConversation returns offers oldest first.
func (r offerRepo) ListByConversation(ctx context.Context, conversationID conversation.ID) ([]*offer.Offer, error) {
	merged := make(map[offer.ID]*offer.Offer)
	s := r.u.store
	s.mu.RLock()
	for id, o := range s.offers {
		if o.ConversationID == conversationID {
			merged[id] = o
		}
	}
	s.mu.RUnlock()
	r.u.mu.Lock()
	for id, o := range r.u.offers {
		if o.ConversationID == conversationID {
			merged[id] = o
		}
	}
	r.u.mu.Unlock()
	out := make([]*offer.Offer, 0, len(merged))
	for _, o := range merged {
		out = append(out, cloneOffer(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r offerRepo) Save(ctx context.Context, o *offer.Offer) error {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	if err := r.u.writable(); err != nil {
		return err
	}
	current, staged := r.u.offers[o.ID]
	if !staged {
		s := r.u.store
		s.mu.RLock()
		current = s.offers[o.ID]
		s.mu.RUnlock()
	}
	if o.Version != offerVersion(current) {
		return staleVersion("offer " + string(o.ID))
	}
	o.Version++
	r.u.offers[o.ID] = cloneOffer(o)
	return nil
}

type blockRepo struct {
	u *Unit
}

func (r blockRepo) Get(ctx context.Context, actorID, targetID string) (*block.Entry, error) {
	key := block.Key(actorID, targetID)
	r.u.mu.Lock()
	staged, ok := r.u.blocks[key]
	r.u.mu.Unlock()
	if ok {
		return cloneEntry(staged), nil
	}
	s := r.u.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.blocks[key]
	if !ok {
		return nil, nil
	}
	return cloneEntry(e), nil
}

func (r blockRepo) ListByActor(ctx context.Context, actorID string) ([]*block.Entry, error) {
	merged := make(map[string]*block.Entry)
	s := r.u.store
	s.mu.RLock()
	for key, e := range s.blocks {
		if e.ActorID == actorID {
			merged[key] = e
		}
	}
	s.mu.RUnlock()
	r.u.mu.Lock()
	for key, e := range r.u.blocks {
		if e.ActorID == actorID {
			merged[key] = e
		}
	}
	r.u.mu.Unlock()
	out := make([]*block.Entry, 0, len(merged))
	for _, e := range merged {
		out = append(out, cloneEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out, nil
}

func (r blockRepo) Save(ctx context.Context, e *block.Entry) error {
	key := block.Key(e.ActorID, e.TargetID)
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	if err := r.u.writable(); err != nil {
		return err
	}
	current, staged := r.u.blocks[key]
	if !staged {
		s := r.u.store
		s.mu.RLock()
		current = s.blocks[key]
		s.mu.RUnlock()
	}
	if e.Version != entryVersion(current) {
		return staleVersion("block " + key)
	}
	e.Version++
	r.u.blocks[key] = cloneEntry(e)
	return nil
}

type reportRepo struct {
	u *Unit
}

func (r reportRepo) ByID(ctx context.Context, id report.ID) (*report.Report, error) {
	r.u.mu.Lock()
	staged, ok := r.u.reports[id]
	r.u.mu.Unlock()
	if ok {
		return cloneReport(staged), nil
	}
	s := r.u.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	rep, ok := s.reports[id]
	if !ok {
		return nil, report.ErrNotFound
	}
	return cloneReport(rep), nil
}

func (r reportRepo) List(ctx context.Context, status report.Status) ([]*report.Report, error) {
	merged := make(map[report.ID]*report.Report)
	s := r.u.store
	s.mu.RLock()
	for id, rep := range s.reports {
		merged[id] = rep
	}
	s.mu.RUnlock()
	r.u.mu.Lock()
	for id, rep := range r.u.reports {
		merged[id] = rep
	}
	r.u.mu.Unlock()
	out := make([]*report.Report, 0, len(merged))
	for _, rep := range merged {
		if status == "" || rep.Status == status {
			out = append(out, cloneReport(rep))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r reportRepo) Save(ctx context.Context, rep *report.Report) error {
	r.u.mu.Lock()
	defer r.u.mu.Unlock()
	if err := r.u.writable(); err != nil {
		return err
	}
	current, staged := r.u.reports[rep.ID]
	if !staged {
		s := r.u.store
		s.mu.RLock()
		current = s.reports[rep.ID]
		s.mu.RUnlock()
	}
	if rep.Version != reportVersion(current) {
		return staleVersion("report " + string(rep.ID))
	}
	rep.Version++
	r.u.reports[rep.ID] = cloneReport(rep)
	return nil
}
