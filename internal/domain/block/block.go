package block

import (
	"context"
	"strings"
	"time"

	"bazaar/internal/domain/shared/errs"
	"bazaar/internal/domain/shared/events"
)

var (
	ErrBlocked   = errs.New(errs.Blocked, "block: communication between users is blocked")
	ErrSelfBlock = errs.New(errs.Validation, "block: users cannot block themselves")
	ErrUserIDs   = errs.New(errs.Validation, "block: actor and target required")
)

// Entry is the actor's view of the target. Only the actor ever writes it.
type Entry struct {
	ActorID   string
	TargetID  string
	Blocked   bool
	UpdatedAt time.Time
	Version   int64
	events.EventRecorder
}

type Repository interface {
	// Get returns the entry or nil when the actor never (un)blocked the target.
	Get(ctx context.Context, actorID, targetID string) (*Entry, error)
	ListByActor(ctx context.Context, actorID string) ([]*Entry, error)
	Save(ctx context.Context, e *Entry) error
}

func NewEntry(actorID, targetID string, now time.Time) (*Entry, error) {
	actorID, targetID = strings.TrimSpace(actorID), strings.TrimSpace(targetID)
	if actorID == "" || targetID == "" {
		return nil, ErrUserIDs
	}
	if actorID == targetID {
		return nil, ErrSelfBlock
	}
	return &Entry{ActorID: actorID, TargetID: targetID, UpdatedAt: now.UTC()}, nil
}

// Key identifies the directed (actor, target) pair.
func Key(actorID, targetID string) string {
	return actorID + ">" + targetID
}

// Set changes the flag and reports whether it changed.
func (e *Entry) Set(blocked bool, now time.Time) bool {
	if e.Blocked == blocked {
		return false
	}
	e.Blocked = blocked
	e.UpdatedAt = now.UTC()
	if blocked {
		e.Record(Blocked{ActorID: e.ActorID, TargetID: e.TargetID, At: e.UpdatedAt})
	} else {
		e.Record(Unblocked{ActorID: e.ActorID, TargetID: e.TargetID, At: e.UpdatedAt})
	}
	return true
}

// IsBlocked reports whether actor has blocked target.
func IsBlocked(ctx context.Context, repo Repository, actorID, targetID string) (bool, error) {
	e, err := repo.Get(ctx, actorID, targetID)
	if err != nil {
		return false, err
	}
	return e != nil && e.Blocked, nil
}

// CheckPair returns ErrBlocked when either user has blocked the other.
func CheckPair(ctx context.Context, repo Repository, a, b string) error {
	for _, pair := range [2][2]string{{a, b}, {b, a}} {
		blocked, err := IsBlocked(ctx, repo, pair[0], pair[1])
		if err != nil {
			return err
		}
		if blocked {
			return ErrBlocked
		}
	}
	return nil
}
