package main

import (
	"errors"

	"github.com/spf13/cobra"

	"bazaar/internal/infra/config"
	"bazaar/internal/infra/obs"
	"bazaar/internal/infra/outbox"
)

var errRelayNeedsMongoAndKafka = errors.New("relay requires STORE=mongo and KAFKA_BROKERS")

func newRelayCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Publish committed outbox records to Kafka",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := obs.NewLogger(cfg.Env)
			if cfg.Store != config.StoreMongo || len(cfg.KafkaBrokers) == 0 {
				logger.Error("relay not configured", "store", cfg.Store, "brokers", cfg.KafkaBrokers)
				return errRelayNeedsMongoAndKafka
			}
			rt, err := openRuntime(ctx, cfg, logger)
			if err != nil {
				logger.Error("runtime init failed", "error", err)
				return err
			}
			defer rt.close()

			events, err := outbox.NewStore(ctx, rt.mongo.DB)
			if err != nil {
				return err
			}
			worker := &outbox.Worker{
				Store:       events,
				Producer:    rt.kafka,
				Logger:      logger,
				Interval:    cfg.OutboxPollInterval,
				TopicPrefix: cfg.KafkaTopicPrefix,
				Backoff:     cfg.RetryBackoff,
				MaxAttempts: cfg.OutboxMaxAttempts,
				Retention:   cfg.OutboxRetention,
			}
			logger.Info("outbox relay starting", "brokers", cfg.KafkaBrokers, "prefix", cfg.KafkaTopicPrefix)
			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("outbox relay failed", "error", err)
				return err
			}
			logger.Info("outbox relay stopped")
			return nil
		},
	}
}
