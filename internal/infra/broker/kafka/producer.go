package kafka

import (
	"context"
	"maps"
	"slices"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"

	"bazaar/internal/domain/shared/errs"
)

// Producer publishes records with idempotent, fully acknowledged writes.
type Producer struct {
	client sarama.Client
	sync   sarama.SyncProducer
}

func NewProducer(brokers []string, cfg *sarama.Config) (*Producer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Return.Successes = true
	cfg.Net.MaxOpenRequests = 1
	if !cfg.Version.IsAtLeast(sarama.V0_11_0_0) {
		cfg.Version = sarama.V2_5_0_0
	}
	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "kafka: new client")
	}
	sync, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "kafka: new producer")
	}
	return &Producer{client: client, sync: sync}, nil
}

// Publish sends one record and waits for all in-sync replicas. Headers are written in key order.
func (p *Producer) Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	hs := make([]sarama.RecordHeader, 0, len(headers))
	for _, k := range slices.Sorted(maps.Keys(headers)) {
		hs = append(hs, sarama.RecordHeader{Key: []byte(k), Value: []byte(headers[k])})
	}
	msg := &sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.StringEncoder(key),
		Value:   sarama.ByteEncoder(payload),
		Headers: hs,
	}
	if _, _, err := p.sync.SendMessage(msg); err != nil {
		return errs.Wrap(errs.Transport, "kafka: publish to "+topic, err)
	}
	return nil
}

// Ping refreshes cluster metadata; readiness fails while no broker answers.
func (p *Producer) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.client.RefreshMetadata(); err != nil {
		return errs.Wrap(errs.Transport, "kafka: refresh metadata", err)
	}
	return nil
}

// Close stops the producer and then the client it was built from.
func (p *Producer) Close() error {
	if p.sync == nil {
		return nil
	}
	if err := p.sync.Close(); err != nil {
		_ = p.client.Close()
		return err
	}
	if p.client.Closed() {
		return nil
	}
	return p.client.Close()
}
