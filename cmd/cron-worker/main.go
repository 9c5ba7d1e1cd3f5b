package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/dmcastano/evdex-backend/internal/catalog"
	"github.com/dmcastano/evdex-backend/internal/contributions"
	"github.com/dmcastano/evdex-backend/internal/cron"
	"github.com/dmcastano/evdex-backend/internal/images"
	"github.com/dmcastano/evdex-backend/internal/ledger"
	"github.com/dmcastano/evdex-backend/pkg/config"
	"github.com/dmcastano/evdex-backend/pkg/db"
	"github.com/dmcastano/evdex-backend/pkg/logger"
	"github.com/dmcastano/evdex-backend/pkg/metrics"
	"github.com/dmcastano/evdex-backend/pkg/migrate"
	"github.com/dmcastano/evdex-backend/pkg/outbox"
	"github.com/dmcastano/evdex-backend/pkg/redis"
)

const lockKeyFormat = "evdex:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gormDB := dbClient.DB()
	outboxRepo := outbox.NewRepository(gormDB)
	contributionSvc, err := buildContributionService(gormDB, dbClient, cfg, logg, outboxRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create contribution service", err)
		os.Exit(1)
	}

	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)

	reconcileJob, err := cron.NewOrphanReconcileJob(cron.OrphanReconcileJobParams{
		Logger:     logg,
		Reconciler: contributionSvc,
		Metrics:    jobMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orphan reconcile job", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
		Metrics:    jobMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(reconcileJob, retentionJob),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildContributionService(gormDB *gorm.DB, dbClient *db.Client, cfg *config.Config, logg *logger.Logger, outboxRepo *outbox.Repository) (contributions.Service, error) {
	catalogRepo := catalog.NewRepository(gormDB)
	contributionRepo := contributions.NewRepository(gormDB)

	outboxSvc, err := outbox.NewService(outboxRepo)
	if err != nil {
		return nil, err
	}
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(gormDB))
	if err != nil {
		return nil, err
	}
	imageSvc, err := images.NewService(images.ServiceParams{
		Repo:                   images.NewRepository(gormDB),
		Catalog:                catalogRepo,
		Proposals:              contributionRepo,
		Stager:                 images.NewPrefixStager(cfg.Images.StagedPrefix, cfg.Images.DurablePrefix),
		Outbox:                 outboxSvc,
		Tx:                     dbClient,
		Logger:                 logg,
		RejectionCommentMinLen: cfg.Moderation.RejectionCommentMinLen,
	})
	if err != nil {
		return nil, err
	}

	return contributions.NewService(contributions.ServiceParams{
		Repo:      contributionRepo,
		Reviews:   contributions.NewReviewRepository(gormDB),
		Catalog:   catalogRepo,
		Duplicate: contributions.NewDuplicateChecker(catalogRepo, cfg.Moderation.DuplicateYearWindow, logg),
		Ledger:    ledgerSvc,
		Outbox:    outboxSvc,
		Tx:        dbClient,
		Logger:    logg,
		Settings: contributions.Settings{
			RejectionCommentMinLen: cfg.Moderation.RejectionCommentMinLen,
			ApprovalCredit:         cfg.Rewards.ApprovalCredit,
			ClusterYearWindow:      cfg.Moderation.ClusterYearWindow,
		},
		ImageOrphans: imageSvc,
	})
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
