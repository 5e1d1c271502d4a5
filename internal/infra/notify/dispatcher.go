package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.uber.org/ratelimit"

	"bazaar/internal/app/policies"
	"bazaar/internal/domain/shared/errs"
)

const DefaultNotificationTopic = "notification.requests.v1"

// Publisher is satisfied by the Kafka producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Dispatcher hands notifications to the push gateway through a broker topic. Records are keyed
// by recipient so one user's notifications stay ordered; the dedupe-key header lets the gateway
// drop redeliveries.
type Dispatcher struct {
	Publisher Publisher
	Topic     string
	Limiter   ratelimit.Limiter
	Logger    *slog.Logger
}

// NewDispatcher throttles publishing to perSecond notifications; zero disables throttling.
func NewDispatcher(pub Publisher, topic string, perSecond int, logger *slog.Logger) *Dispatcher {
	if topic == "" {
		topic = DefaultNotificationTopic
	}
	limiter := ratelimit.NewUnlimited()
	if perSecond > 0 {
		limiter = ratelimit.New(perSecond)
	}
	return &Dispatcher{Publisher: pub, Topic: topic, Limiter: limiter, Logger: logger}
}

func (d *Dispatcher) Dispatch(ctx context.Context, n policies.Notification) error {
	if d.Publisher == nil {
		return errs.New(errs.Transport, "notify: dispatcher has no publisher")
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if d.Limiter != nil {
		d.Limiter.Take()
	}
	headers := map[string]string{"content-type": "application/json", "dedupe-key": n.Key, "type": string(n.Type)}
	if err := d.Publisher.Publish(ctx, d.Topic, n.RecipientID, payload, headers); err != nil {
		return err
	}
	if d.Logger != nil {
		d.Logger.Debug("notification dispatched", "type", n.Type, "recipient_id", n.RecipientID, "key", n.Key)
	}
	return nil
}

var _ policies.Dispatcher = (*Dispatcher)(nil)
