package block

import "time"

type Blocked struct {
	ActorID  string    `json:"actor_id"`
	TargetID string    `json:"target_id"`
	At       time.Time `json:"at"`
}

func (e Blocked) EventName() string     { return "user.blocked" }
func (e Blocked) AggregateID() string   { return Key(e.ActorID, e.TargetID) }
func (e Blocked) OccurredAt() time.Time { return e.At }

type Unblocked struct {
	ActorID  string    `json:"actor_id"`
	TargetID string    `json:"target_id"`
	At       time.Time `json:"at"`
}

func (e Unblocked) EventName() string     { return "user.unblocked" }
func (e Unblocked) AggregateID() string   { return Key(e.ActorID, e.TargetID) }
func (e Unblocked) OccurredAt() time.Time { return e.At }
