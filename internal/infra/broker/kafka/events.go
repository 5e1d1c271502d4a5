package kafka

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"

	appoutbox "bazaar/internal/app/outbox"
	"bazaar/internal/infra/outbox"
)

// EventHandler feeds relayed domain events into a Sink. Records that do not decode are skipped
// rather than retried forever.
type EventHandler struct {
	Sink appoutbox.Sink
}

func (h EventHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	rec, err := outbox.DecodeCloudEvent(msg.Value)
	if err != nil {
		return nil
	}
	if err := h.Sink.Deliver(ctx, rec); err != nil {
		return errors.Wrapf(err, "deliver %s %s", rec.Name, rec.ID)
	}
	return nil
}

// EventTopics lists the topics the relay publishes domain events to.
func EventTopics(prefix string) []string {
	names := []string{"conversation", "message", "offer", "user", "report"}
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, outbox.TopicFor(prefix, n))
	}
	return out
}
