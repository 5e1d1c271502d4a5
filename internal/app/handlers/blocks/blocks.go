package blocks

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"bazaar/internal/app/dto"
	"bazaar/internal/app/handlers/support"
	"bazaar/internal/app/identity"
	"bazaar/internal/app/outbox"
	"bazaar/internal/app/queries"
	"bazaar/internal/app/uow"
	"bazaar/internal/domain/block"
	"bazaar/internal/domain/conversation"
)

const (
	BlockUserKey   = "blocks.block"
	UnblockUserKey = "blocks.unblock"
	ListBlockedKey = "blocks.list"
)

type BlockUserCommand struct {
	Actor    identity.Principal
	TargetID string
}

func (c BlockUserCommand) Key() string                         { return BlockUserKey }
func (c BlockUserCommand) ActingPrincipal() identity.Principal { return c.Actor }

type UnblockUserCommand struct {
	Actor    identity.Principal
	TargetID string
}

func (c UnblockUserCommand) Key() string                         { return UnblockUserKey }
func (c UnblockUserCommand) ActingPrincipal() identity.Principal { return c.Actor }

// Handler maintains the actor's block list and mirrors it into the blocked flag of the shared
// conversation. Both operations are idempotent; history stays untouched.
type Handler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
	Now        func() time.Time
}

func (h *Handler) Block(ctx context.Context, cmd BlockUserCommand) (dto.BlockEntry, error) {
	return h.set(ctx, cmd.Actor.UserID, cmd.TargetID, true)
}

func (h *Handler) Unblock(ctx context.Context, cmd UnblockUserCommand) (dto.BlockEntry, error) {
	return h.set(ctx, cmd.Actor.UserID, cmd.TargetID, false)
}

func (h *Handler) set(ctx context.Context, actorID, targetID string, blocked bool) (dto.BlockEntry, error) {
	targetID = strings.TrimSpace(targetID)
	now := h.now()
	unit, err := support.OpenUnit(ctx, h.UoWFactory, uow.TxOptions{})
	if err != nil {
		return dto.BlockEntry{}, err
	}
	defer unit.Close()

	entry, err := unit.Blocks().Get(unit.Ctx, actorID, targetID)
	if err != nil {
		return dto.BlockEntry{}, err
	}
	if entry == nil {
		if entry, err = block.NewEntry(actorID, targetID, now); err != nil {
			return dto.BlockEntry{}, err
		}
	}
	if !entry.Set(blocked, now) {
		return dto.MapBlock(entry), nil
	}
	if err := unit.Blocks().Save(unit.Ctx, entry); err != nil {
		return dto.BlockEntry{}, err
	}
	if err := outbox.RecordDomainEvents(unit.Ctx, h.Outbox, h.Encoder, entry.PullEvents()); err != nil {
		return dto.BlockEntry{}, err
	}

	conv, err := unit.Conversations().ByParticipants(unit.Ctx, actorID, targetID)
	switch {
	case errors.Is(err, conversation.ErrNotFound):
	case err != nil:
		return dto.BlockEntry{}, err
	default:
		changed, err := conv.SetBlocked(actorID, blocked, now)
		if err != nil {
			return dto.BlockEntry{}, err
		}
		if changed {
			if err := unit.Conversations().Save(unit.Ctx, conv); err != nil {
				return dto.BlockEntry{}, err
			}
		}
	}
	if err := unit.Commit(); err != nil {
		return dto.BlockEntry{}, err
	}
	if h.Logger != nil {
		h.Logger.Info("block list changed", "actor_id", actorID, "target_id", targetID, "blocked", blocked)
	}
	return dto.MapBlock(entry), nil
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

type ListBlockedQuery struct {
	Actor identity.Principal
}

func (q ListBlockedQuery) Key() string                         { return ListBlockedKey }
func (q ListBlockedQuery) ActingPrincipal() identity.Principal { return q.Actor }

type ListBlockedHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ListBlockedHandler) Handle(ctx context.Context, q ListBlockedQuery) (dto.BlockList, error) {
	unit, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.BlockList{}, err
	}
	defer unit.Close()
	entries, err := unit.Blocks().ListByActor(unit.Ctx, q.Actor.UserID)
	if err != nil {
		return dto.BlockList{}, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UpdatedAt.After(entries[j].UpdatedAt) })
	out := dto.BlockList{Items: make([]dto.BlockEntry, 0, len(entries))}
	for _, e := range entries {
		if e.Blocked {
			out.Items = append(out.Items, dto.MapBlock(e))
		}
	}
	return out, nil
}

var _ queries.Handler[ListBlockedQuery, dto.BlockList] = (*ListBlockedHandler)(nil)
