package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"futsal_notifier/internal/api"
	"futsal_notifier/internal/archive"
	"futsal_notifier/internal/config"
	platformElasticsearch "futsal_notifier/internal/platform/elasticsearch"
	"futsal_notifier/internal/platform/logger"
	"futsal_notifier/internal/storage"

	"go.uber.org/zap"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "archive-sync" {
		archiveSync(os.Args[2:])
		return
	}

	startServer()
}

func startServer() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	server, cleanup, err := initializeServer(cfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize server: %v", err)
	}
	defer cleanup()

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("FATAL: Server failed to start or crashed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("INFO: Received signal '%s'. Shutting down...", sig)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ServerTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: Server forced to shutdown due to error: %v", err)
	} else {
		log.Println("INFO: Server shutdown complete.")
	}
}

// staticToken serves a token given on the command line.
type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

func archiveSync(args []string) {
	cmd := flag.NewFlagSet("archive-sync", flag.ExitOnError)
	userID := cmd.String("user-id", "", "User the archived notifications belong to (required)")
	token := cmd.String("token", "", "Bearer token; defaults to the stored token")
	limit := cmd.Int("limit", 0, "How many notifications to fetch; defaults to NOTIFICATION_FETCH_LIMIT")
	batchSize := cmd.Int("batch-size", 100, "Batch size for bulk indexing")
	esRefresh := cmd.String("es-refresh", "false", "Elasticsearch refresh policy (true, false, wait_for)")
	_ = cmd.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration for sync: %v", err)
	}
	appLogger, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger for sync: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	if *userID == "" {
		appLogger.Fatal("FATAL: --user-id is required")
	}
	if *limit <= 0 {
		*limit = cfg.NotificationLimit
	}

	var tokens api.TokenSource = staticToken(*token)
	if *token == "" {
		db, closeDB, err := provideDatabase(cfg, appLogger)
		if err != nil {
			appLogger.Fatal("FATAL: Failed to open local storage for sync", zap.Error(err))
		}
		defer closeDB()
		store, err := storage.NewStore(cfg, db, appLogger)
		if err != nil {
			appLogger.Fatal("FATAL: Failed to open local storage for sync", zap.Error(err))
		}
		tokens = storage.NewTokenSource(store)
	}

	client, err := api.NewClient(cfg, tokens, appLogger)
	if err != nil {
		appLogger.Fatal("FATAL: Failed to initialize REST client for sync", zap.Error(err))
	}

	esClient, err := platformElasticsearch.NewClient(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("FATAL: Failed to initialize Elasticsearch client for sync", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := platformElasticsearch.CreateNotificationsIndexIfNotExists(ctx, esClient, appLogger); err != nil {
		appLogger.Fatal("FATAL: Failed to create/verify notifications index before sync", zap.Error(err))
	}
	archiver := archive.NewElasticArchiver(esClient, appLogger).WithRefresh(*esRefresh)

	if err := runArchiveSync(ctx, client, archiver, appLogger, *userID, *limit, *batchSize); err != nil {
		appLogger.Fatal("FATAL: Notification archive sync failed", zap.Error(err))
	}
	appLogger.Info("Notification archive sync completed successfully.")
}
