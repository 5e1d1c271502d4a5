package policies

import (
	"context"
	"time"
)

// MessageClock issues strictly increasing millisecond timestamps per conversation.
type MessageClock interface {
	Next(ctx context.Context, conversationID string, now time.Time) (time.Time, error)
}
