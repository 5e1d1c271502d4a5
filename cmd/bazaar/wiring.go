package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	"bazaar/internal/app/engine"
	"bazaar/internal/app/policies"
	"bazaar/internal/app/reactions"
	"bazaar/internal/infra/broker/kafka"
	"bazaar/internal/infra/config"
	mongostore "bazaar/internal/infra/db/mongo"
	"bazaar/internal/infra/inbox"
	"bazaar/internal/infra/notify"
	"bazaar/internal/infra/outbox"
	"bazaar/internal/infra/storage/memory"
	"bazaar/internal/infra/storage/s3"
	"bazaar/internal/infra/storage/scylla"
	valkeyclock "bazaar/internal/infra/valkey"
)

// runtime owns the connections a command opened. close releases them in reverse order.
type runtime struct {
	cfg     config.Config
	logger  *slog.Logger
	catalog *memory.Catalog
	mongo   *mongostore.Client
	valkey  valkey.Client
	scylla  *gocql.Session
	kafka   *kafka.Producer
	checks  map[string]func(context.Context) error
	closers []func()
}

func openRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger, checks: map[string]func(context.Context) error{}}

	rt.catalog = memory.NewCatalog()
	if cfg.ListingFixtures != "" {
		if err := rt.catalog.LoadFixtures(cfg.ListingFixtures, logger); err != nil {
			logger.Warn("listing fixtures load failed", "error", err, "path", cfg.ListingFixtures)
		}
	}

	if cfg.Store == config.StoreMongo {
		client, err := mongostore.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		rt.mongo = client
		rt.closers = append(rt.closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Close(shutdownCtx)
		})
		if err := client.EnsureIndexes(ctx); err != nil {
			rt.close()
			return nil, err
		}
		rt.checks["mongo"] = client.Ping
	}

	if len(cfg.ValkeyAddrs) > 0 {
		client, err := valkeyclock.NewClient(cfg.ValkeyAddrs)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.valkey = client
		rt.closers = append(rt.closers, client.Close)
	}

	if cfg.Store == config.StoreMongo && cfg.MessageStore == config.MessagesScylla {
		session, err := scylla.NewSession(ctx, cfg, logger)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.scylla = session
		rt.closers = append(rt.closers, session.Close)
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, sarama.NewConfig())
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.kafka = producer
		rt.closers = append(rt.closers, func() { _ = producer.Close() })
		rt.checks["kafka"] = producer.Ping
	}
	return rt, nil
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// listings publishes reservation changes to Kafka when a broker is configured; otherwise the
// in-process catalogue is updated directly.
func (rt *runtime) listings() policies.ListingPort {
	if rt.kafka == nil {
		return rt.catalog
	}
	return &notify.ListingStatus{Lookup: rt.catalog, Publisher: rt.kafka, Topic: rt.cfg.ListingStatusTopic, Logger: rt.logger}
}

func (rt *runtime) dispatcher() policies.Dispatcher {
	if rt.kafka == nil {
		return memory.NewNotifications(rt.logger)
	}
	return notify.NewDispatcher(rt.kafka, rt.cfg.NotificationTopic, rt.cfg.NotifyRate, rt.logger)
}

func (rt *runtime) clock() policies.MessageClock {
	if rt.valkey == nil {
		return memory.NewClock()
	}
	c := valkeyclock.NewClock(rt.valkey, 24*time.Hour)
	rt.checks["valkey"] = c.Ping
	return c
}

func (rt *runtime) images() (policies.ImageResolver, error) {
	cfg := rt.cfg
	if cfg.S3Bucket == "" {
		return nil, nil
	}
	endpoint := cfg.S3PublicEndpoint
	if endpoint == "" {
		endpoint = cfg.S3Endpoint
	}
	return s3.NewPresigner(endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PresignTTL, rt.logger)
}

// buildEngine assembles the engine over the configured stores. In memory mode committed events
// are delivered in-process to reactor.
func (rt *runtime) buildEngine(ctx context.Context, reactor *reactions.Reactor) (*engine.Engine, error) {
	images, err := rt.images()
	if err != nil {
		return nil, err
	}
	deps := engine.Deps{
		Clock:    rt.clock(),
		Listings: rt.listings(),
		Images:   images,
		Logger:   rt.logger,
		NewID:    uuid.NewString,
	}

	switch rt.cfg.Store {
	case config.StoreMongo:
		db := rt.mongo.DB
		factory := mongostore.Factory{DB: db}
		if rt.scylla != nil {
			factory.Messages = scylla.NewMessageStore(rt.scylla, rt.logger)
		}
		events, err := outbox.NewStore(ctx, db)
		if err != nil {
			return nil, err
		}
		idem, err := mongostore.NewIdempotencyStore(ctx, db, rt.cfg.IdempotencyTTL)
		if err != nil {
			return nil, err
		}
		deps.UoWFactory = factory
		deps.Outbox = events
		deps.Idempotency = idem
		deps.Watcher = mongostore.NewWatcher(db, rt.logger)
	default:
		store := memory.NewStore()
		if reactor != nil {
			store.Outbox().SetSink(reactor)
		}
		deps.UoWFactory = memory.Factory{Store: store}
		deps.Outbox = store.Outbox()
		deps.Idempotency = memory.NewIdempotencyStore(rt.cfg.IdempotencyTTL)
		deps.Watcher = store
	}
	eng, err := engine.New(deps)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	return eng, nil
}

// reactor builds the reaction pipeline. Mongo mode dedupes deliveries through the inbox collection.
func (rt *runtime) reactor(ctx context.Context, consumer string) (*reactions.Reactor, error) {
	r := &reactions.Reactor{Dispatcher: rt.dispatcher(), Listings: rt.listings(), Logger: rt.logger}
	if rt.mongo == nil {
		r.Inbox = memory.NewInbox()
		return r, nil
	}
	store, err := inbox.NewStore(ctx, rt.mongo.DB, consumer)
	if err != nil {
		return nil, err
	}
	r.Inbox = store
	return r, nil
}
