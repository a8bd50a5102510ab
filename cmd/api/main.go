package main

import (
	"context"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/settlecore-backend/api/routes"
	"github.com/angelmondragon/settlecore-backend/internal/audit"
	"github.com/angelmondragon/settlecore-backend/internal/disputes"
	"github.com/angelmondragon/settlecore-backend/internal/ledger"
	"github.com/angelmondragon/settlecore-backend/internal/listings"
	"github.com/angelmondragon/settlecore-backend/internal/orders"
	"github.com/angelmondragon/settlecore-backend/internal/platformconfig"
	"github.com/angelmondragon/settlecore-backend/internal/wallets"
	"github.com/angelmondragon/settlecore-backend/pkg/config"
	"github.com/angelmondragon/settlecore-backend/pkg/db"
	"github.com/angelmondragon/settlecore-backend/pkg/logger"
	"github.com/angelmondragon/settlecore-backend/pkg/migrate"
	"github.com/angelmondragon/settlecore-backend/pkg/outbox"
	"github.com/angelmondragon/settlecore-backend/pkg/redis"
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

	platformAccountID, err := uuid.Parse(cfg.Settlement.PlatformAccountID)
	if err != nil {
		logg.Error(context.Background(), "invalid platform account id", err)
		os.Exit(1)
	}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	auditSvc, err := audit.NewService(audit.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create audit service", err)
		os.Exit(1)
	}

	configSvc, err := platformconfig.NewService(platformconfig.NewRepository(dbClient.DB()), dbClient, auditSvc, cfg.Settlement)
	if err != nil {
		logg.Error(context.Background(), "failed to create platform config service", err)
		os.Exit(1)
	}

	guard, err := disputes.NewGuard(disputes.NewRepository(dbClient.DB()), configSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create step-up guard", err)
		os.Exit(1)
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	ordersSvc, err := orders.NewService(
		orders.NewRepository(dbClient.DB()),
		dbClient,
		ledgerSvc,
		listings.NewProvider(dbClient.DB()),
		configSvc,
		outboxSvc,
		auditSvc,
		platformAccountID,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	walletsSvc, err := wallets.NewService(
		wallets.NewRepository(dbClient.DB()),
		dbClient,
		ledgerSvc,
		guard,
		auditSvc,
		outboxSvc,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallets service", err)
		os.Exit(1)
	}

	disputesSvc, err := disputes.NewService(ordersSvc, guard)
	if err != nil {
		logg.Error(context.Background(), "failed to create disputes service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			ledgerSvc,
			walletsSvc,
			ordersSvc,
			disputesSvc,
			auditSvc,
			configSvc,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
