package main

import (
	"errors"

	"github.com/IBM/sarama"
	"github.com/spf13/cobra"

	"bazaar/internal/infra/broker/kafka"
	"bazaar/internal/infra/obs"
)

var errDispatchNeedsKafka = errors.New("dispatch requires KAFKA_BROKERS")

func newDispatchCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Consume domain events and run notifications and listing reactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := obs.NewLogger(cfg.Env)
			if len(cfg.KafkaBrokers) == 0 {
				return errDispatchNeedsKafka
			}
			rt, err := openRuntime(ctx, cfg, logger)
			if err != nil {
				logger.Error("runtime init failed", "error", err)
				return err
			}
			defer rt.close()

			reactor, err := rt.reactor(ctx, cfg.KafkaGroupID)
			if err != nil {
				return err
			}
			consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, sarama.NewConfig(), kafka.EventHandler{Sink: reactor})
			if err != nil {
				return err
			}
			defer consumer.Close()
			consumer.Logger = logger

			topics := kafka.EventTopics(cfg.KafkaTopicPrefix)
			logger.Info("event dispatcher starting", "group", cfg.KafkaGroupID, "topics", topics)
			if err := consumer.Run(ctx, topics); err != nil && ctx.Err() == nil {
				logger.Error("event dispatcher failed", "error", err)
				return err
			}
			logger.Info("event dispatcher stopped")
			return nil
		},
	}
}
