package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coutlabs/cout-backend/internal/audit"
	"github.com/coutlabs/cout-backend/internal/credits"
	"github.com/coutlabs/cout-backend/internal/inference"
	"github.com/coutlabs/cout-backend/internal/jobs"
	"github.com/coutlabs/cout-backend/internal/jobs/processor"
	"github.com/coutlabs/cout-backend/pkg/config"
	"github.com/coutlabs/cout-backend/pkg/db"
	"github.com/coutlabs/cout-backend/pkg/instance"
	"github.com/coutlabs/cout-backend/pkg/logger"
	"github.com/coutlabs/cout-backend/pkg/metrics"
	"github.com/coutlabs/cout-backend/pkg/migrate"
	"github.com/coutlabs/cout-backend/pkg/outbox/idempotency"
	"github.com/coutlabs/cout-backend/pkg/outbox/registry"
	"github.com/coutlabs/cout-backend/pkg/pubsub"
	"github.com/coutlabs/cout-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	jobsRepo := jobs.NewRepository(dbClient.DB())
	creditsService, err := credits.NewService(credits.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create credits service", err)
		os.Exit(1)
	}
	auditRepo := audit.NewRepository(dbClient.DB())

	inferenceClient, err := inference.NewClient(cfg.Inference)
	if err != nil {
		logg.Error(context.Background(), "failed to create inference client", err)
		os.Exit(1)
	}

	idempotencyManager, err := idempotency.NewManager(redisClient, cfg.Outbox.EventIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	workerMetrics := metrics.NewWorkerMetrics(prometheus.DefaultRegisterer)

	jobsConsumer, err := processor.NewConsumer(processor.ConsumerParams{
		Jobs:         jobsRepo,
		DB:           dbClient,
		Credits:      creditsService,
		Audit:        auditRepo,
		Inference:    inferenceClient,
		Decoders:     registry.JobDecoders(),
		Idempotency:  idempotencyManager,
		Metrics:      workerMetrics,
		Subscription: pubsubClient.JobsSubscription(),
		Logger:       logg,
		Config:       cfg.Jobs,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create jobs consumer", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:       cfg,
		Logger:       logg,
		DB:           dbClient,
		Redis:        redisClient,
		PubSub:       pubsubClient,
		JobsConsumer: jobsConsumer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "worker",
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}
