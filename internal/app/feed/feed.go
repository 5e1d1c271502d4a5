// Package feed turns change notifications into snapshot streams: every subscriber re-derives its
// view from persisted state instead of applying deltas.
package feed

import (
	"context"
	"iter"
	"reflect"
)

type TopicKind string

const (
	// TopicConversation fires when one conversation (and therefore its stream summary) changes.
	TopicConversation TopicKind = "conversation"
	// TopicParticipant fires when any conversation of a user changes.
	TopicParticipant TopicKind = "participant"
)

type Topic struct {
	Kind TopicKind
	ID   string
}

// Watcher signals possible changes under a topic. The returned channel is closed when ctx ends
// or the underlying watch fails; signals may be coalesced.
type Watcher interface {
	Watch(ctx context.Context, topic Topic) (<-chan struct{}, error)
}

// Feed re-derives a snapshot with Load whenever the topic signals.
type Feed[T any] struct {
	Watcher Watcher
	Topic   Topic
	Load    func(ctx context.Context) (T, error)
}

// Snapshots yields the current snapshot and then one per observed change; identical consecutive
// snapshots are skipped. Each range over the sequence opens its own watch, and breaking out of the
// loop releases it. A load or watch error is yielded once and ends the sequence.
func (f Feed[T]) Snapshots(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		changes, err := f.Watcher.Watch(watchCtx, f.Topic)
		if err != nil {
			yield(zero, err)
			return
		}
		last, err := f.Load(watchCtx)
		if err != nil {
			yield(zero, err)
			return
		}
		if !yield(last, nil) {
			return
		}
		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					if ctx.Err() == nil {
						yield(zero, ErrWatchClosed)
					}
					return
				}
				next, err := f.Load(watchCtx)
				if err != nil {
					yield(zero, err)
					return
				}
				if reflect.DeepEqual(next, last) {
					continue
				}
				last = next
				if !yield(next, nil) {
					return
				}
			}
		}
	}
}
