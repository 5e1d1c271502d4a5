package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"bazaar/internal/app/reactions"
	"bazaar/internal/infra/config"
	ginserver "bazaar/internal/infra/http/gin"
	"bazaar/internal/infra/obs"
	"bazaar/internal/infra/outbox"
	"bazaar/internal/infra/rpc"
	"bazaar/internal/infra/security"
)

func newServeCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC APIs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := obs.NewLogger(cfg.Env)
	rt, err := openRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("runtime init failed", "error", err)
		return err
	}
	defer rt.close()

	// Without Kafka the reactions run inside this process.
	var reactor *reactions.Reactor
	if rt.kafka == nil {
		if reactor, err = rt.reactor(ctx, "serve"); err != nil {
			return err
		}
	}
	eng, err := rt.buildEngine(ctx, reactor)
	if err != nil {
		logger.Error("engine init failed", "error", err)
		return err
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret = devSecret
		logger.Warn("JWT_SECRET not set, using the development secret")
	}
	verifier, err := security.NewTokenVerifier(secret, cfg.JWTIssuer)
	if err != nil {
		return err
	}

	httpServer := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Checks: rt.checks}, ginserver.Handlers{
		Conversations: ginserver.ConversationHandler{Commands: eng.Commands, Queries: eng.Queries, Logger: logger},
		Offers:        ginserver.OfferHandler{Commands: eng.Commands, Queries: eng.Queries, Logger: logger},
		Moderation:    ginserver.ModerationHandler{Commands: eng.Commands, Queries: eng.Queries, Logger: logger},
		Live: ginserver.LiveHandler{
			Queries:  eng.Queries,
			Logger:   logger,
			Upgrader: websocket.Upgrader{CheckOrigin: ginserver.CheckOrigin(cfg.CORSOrigins)},
		},
		AuthMiddleware: ginserver.AuthMiddleware{Resolver: verifier, Logger: logger}.Handle,
	})
	grpcServer, health := rpc.NewGRPCServer(&rpc.Server{Commands: eng.Commands, Queries: eng.Queries, Resolver: verifier, Logger: logger}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "store", cfg.Store)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		logger.Info("HTTP server stopped")
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		logger.Info("grpc server starting", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	if cfg.Store == config.StoreMongo && reactor != nil {
		events, err := outbox.NewStore(ctx, rt.mongo.DB)
		if err != nil {
			return err
		}
		worker := &outbox.Worker{
			Store:       events,
			Producer:    outbox.SinkProducer{Sink: reactor},
			Logger:      logger,
			Interval:    cfg.OutboxPollInterval,
			Backoff:     cfg.RetryBackoff,
			MaxAttempts: cfg.OutboxMaxAttempts,
			Retention:   cfg.OutboxRetention,
		}
		g.Go(func() error { return worker.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		health.SetServingStatus(rpc.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server failed", "error", err)
		return err
	}
	return nil
}
