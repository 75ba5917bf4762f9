package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/reddit-scraper-fleet/internal/api"
	"github.com/onnwee/reddit-scraper-fleet/internal/api/handlers"
	"github.com/onnwee/reddit-scraper-fleet/internal/cache"
	"github.com/onnwee/reddit-scraper-fleet/internal/config"
	"github.com/onnwee/reddit-scraper-fleet/internal/enrichment"
	"github.com/onnwee/reddit-scraper-fleet/internal/errorreporting"
	"github.com/onnwee/reddit-scraper-fleet/internal/logger"
	"github.com/onnwee/reddit-scraper-fleet/internal/metrics"
	"github.com/onnwee/reddit-scraper-fleet/internal/reddit"
	"github.com/onnwee/reddit-scraper-fleet/internal/secrets"
	"github.com/onnwee/reddit-scraper-fleet/internal/store"
	"github.com/onnwee/reddit-scraper-fleet/internal/suggestions"
	"github.com/onnwee/reddit-scraper-fleet/internal/supervisor"
	"github.com/onnwee/reddit-scraper-fleet/internal/tracing"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (falling back to system env)")
	}

	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	logger.Info("Initializing supervisor", "log_level", cfg.LogLevel, "port", cfg.APIPort)

	if err := errorreporting.Init(cfg.SentryEnvironment); err != nil {
		logger.Warn("Failed to initialize error reporting", "error", err)
	} else if errorreporting.IsSentryEnabled() {
		logger.Info("Error reporting initialized", "environment", cfg.SentryEnvironment)
		defer errorreporting.Flush(2 * time.Second)
	}

	shutdownTracing, err := tracing.Init("reddit-scraper-fleet-supervisor")
	if err != nil {
		logger.Warn("Failed to initialize tracing", "error", err)
	} else if cfg.OTELEnabled {
		logger.Info("Tracing initialized", "endpoint", cfg.OTELEndpoint)
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("Failed to shutdown tracer", "error", err)
			}
		}()
	}

	if cfg.Database.URI == "" {
		logger.Error("MONGODB_URI environment variable is required")
		log.Fatal("MONGODB_URI environment variable is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Connecting to MongoDB", "uri", secrets.MaskURL(cfg.Database.URI), "database", cfg.Database.Database)
	st, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to MongoDB", "error", err)
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	}()

	if err := st.EnsureIndexes(ctx); err != nil {
		logger.Error("Failed to ensure indexes", "error", err)
		log.Fatalf("Failed to ensure indexes: %v", err)
	}

	statsCache, err := cache.NewLRU(cfg.StatsCacheMaxMB, cfg.StatsCacheEntries, cfg.StatsCacheTTL)
	if err != nil {
		logger.Warn("Stats cache disabled", "error", err)
	} else {
		defer statsCache.Close()
	}

	go metrics.NewCollector(st, 30*time.Second).Start(ctx)

	sup := supervisor.New(st, cfg.Monitor)
	if err := sup.Reconcile(ctx); err != nil {
		logger.Error("Reconcile failed", "error", err)
		log.Fatalf("Reconcile failed: %v", err)
	}
	go sup.Run(ctx)

	enricher := enrichment.New(st, cfg.Enrichment, cfg.Provider)
	go enricher.Run(ctx)

	syncer := suggestions.New(st, cfg.Suggestions)
	go syncer.Run(ctx)

	deps := &handlers.Deps{
		Store:       st,
		Fleet:       sup,
		Enricher:    enricher,
		Discoverer:  discoveryClient(cfg),
		Suggestions: syncer,
		Cfg:         cfg,
	}
	if statsCache != nil {
		deps.Cache = statsCache
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.APIPort),
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Received shutdown signal")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown failed", "error", err)
		}
	}()

	logger.Info("Control plane listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("HTTP server failed", "error", err)
		log.Fatalf("HTTP server failed: %v", err)
	}

	<-ctx.Done()
	logger.Info("Supervisor stopped")
}

// discoveryClient builds the supervisor's own Reddit client for the
// discovery endpoint when credentials are present in the environment.
func discoveryClient(cfg *config.Config) handlers.Discoverer {
	creds := reddit.Credentials{
		ClientID:     os.Getenv("R_CLIENT_ID"),
		ClientSecret: os.Getenv("R_CLIENT_SECRET"),
		Username:     os.Getenv("R_USERNAME"),
		Password:     os.Getenv("R_PASSWORD"),
		UserAgent:    os.Getenv("R_USER_AGENT"),
	}
	if creds.ClientID == "" || creds.ClientSecret == "" || creds.Username == "" || creds.Password == "" {
		logger.Info("No Reddit credentials in environment, discovery endpoint disabled")
		return nil
	}
	if creds.UserAgent == "" {
		creds.UserAgent = cfg.UserAgent
	}
	logger.Info("Discovery endpoint enabled", "client_id", secrets.Mask(creds.ClientID))
	return reddit.NewClient(creds, cfg)
}
