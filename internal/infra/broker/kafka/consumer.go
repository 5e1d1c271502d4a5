package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
)

type MessageHandler interface {
	Handle(ctx context.Context, msg *sarama.ConsumerMessage) error
}

type HandlerFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

func (f HandlerFunc) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	return f(ctx, msg)
}

// Consumer runs a consumer group. A message whose handler fails is retried after RetryDelay
// before the group moves on; offsets are only marked after success.
type Consumer struct {
	group      sarama.ConsumerGroup
	handler    MessageHandler
	Logger     *slog.Logger
	RetryDelay time.Duration
	MaxRetries int
}

func NewConsumer(brokers []string, groupID string, cfg *sarama.Config, handler MessageHandler) (*Consumer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	g, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "kafka: new consumer group")
	}
	return &Consumer{group: g, handler: handler, RetryDelay: time.Second, MaxRetries: 5}, nil
}

func (c *Consumer) Run(ctx context.Context, topics []string) error {
	for {
		if err := c.group.Consume(ctx, topics, consumerGroupHandler{c: c}); err != nil {
			return errors.Wrap(err, "kafka: consume")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type consumerGroupHandler struct {
	c *Consumer
}

func (h consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if !h.c.handle(sess.Context(), message) {
			return nil
		}
		sess.MarkMessage(message, "")
	}
	return nil
}

// handle retries msg and reports false when the session ended first. Exhausted retries are
// logged and skipped.
func (c *Consumer) handle(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	for attempt := 0; ; attempt++ {
		err := c.handler.Handle(ctx, msg)
		if err == nil {
			return true
		}
		if c.Logger != nil {
			c.Logger.Warn("kafka message handling failed", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "attempt", attempt+1, "error", err)
		}
		if attempt+1 >= c.MaxRetries {
			if c.Logger != nil {
				c.Logger.Error("kafka message dropped", "topic", msg.Topic, "offset", msg.Offset)
			}
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.RetryDelay):
		}
	}
}

// Header returns the value of a record header, or "".
func Header(msg *sarama.ConsumerMessage, key string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}
