package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/dmcastano/evdex-backend/api/routes"
	"github.com/dmcastano/evdex-backend/internal/catalog"
	"github.com/dmcastano/evdex-backend/internal/contributions"
	"github.com/dmcastano/evdex-backend/internal/images"
	"github.com/dmcastano/evdex-backend/internal/ledger"
	"github.com/dmcastano/evdex-backend/pkg/config"
	"github.com/dmcastano/evdex-backend/pkg/db"
	"github.com/dmcastano/evdex-backend/pkg/logger"
	"github.com/dmcastano/evdex-backend/pkg/migrate"
	"github.com/dmcastano/evdex-backend/pkg/outbox"
	"github.com/dmcastano/evdex-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	catalogRepo := catalog.NewRepository(gormDB)
	contributionRepo := contributions.NewRepository(gormDB)

	outboxSvc, err := outbox.NewService(outbox.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox service", err)
		os.Exit(1)
	}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
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
		logg.Error(context.Background(), "failed to create image contribution service", err)
		os.Exit(1)
	}

	contributionSvc, err := contributions.NewService(contributions.ServiceParams{
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
	if err != nil {
		logg.Error(context.Background(), "failed to create contribution service", err)
		os.Exit(1)
	}

	catalogSvc, err := catalog.NewService(catalogRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:        cfg,
			Logger:        logg,
			DBPinger:      dbClient,
			RedisPinger:   redisClient,
			Sessions:      redisClient,
			Contributions: contributionSvc,
			Images:        imageSvc,
			Catalog:       catalogSvc,
			Ledger:        ledgerSvc,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
