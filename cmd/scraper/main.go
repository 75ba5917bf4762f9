package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/reddit-scraper-fleet/internal/config"
	"github.com/onnwee/reddit-scraper-fleet/internal/errorreporting"
	"github.com/onnwee/reddit-scraper-fleet/internal/logger"
	"github.com/onnwee/reddit-scraper-fleet/internal/reddit"
	"github.com/onnwee/reddit-scraper-fleet/internal/scraper"
	"github.com/onnwee/reddit-scraper-fleet/internal/secrets"
	"github.com/onnwee/reddit-scraper-fleet/internal/store"
	"github.com/onnwee/reddit-scraper-fleet/internal/tracing"
)

func main() {
	primary := flag.String("primary", "", "primary subreddit (instance key)")
	scraperType := flag.String("type", "posts", "scraper type: posts or comments")
	subredditsCSV := flag.String("subreddits", "", "comma-separated subreddit list")
	postsLimit := flag.Int("posts-limit", 0, "override posts limit")
	scrapeInterval := flag.Int("scrape-interval", 0, "override scrape interval in seconds")
	commentBatch := flag.Int("comment-batch", 0, "override comment batch size")
	sortingMethods := flag.String("sorting-methods", "", "override comma-separated sort methods")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (falling back to system env)")
	}

	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	subreddits := splitCSV(*subredditsCSV)
	if *primary == "" && len(subreddits) > 0 {
		*primary = subreddits[0]
	}
	if *primary == "" {
		log.Fatal("--primary or --subreddits is required")
	}
	if len(subreddits) == 0 {
		subreddits = []string{*primary}
	}

	logger.Info("Initializing scraper worker",
		"primary", *primary, "type", *scraperType, "subreddits", len(subreddits))

	if err := errorreporting.Init(cfg.SentryEnvironment); err != nil {
		logger.Warn("Failed to initialize error reporting", "error", err)
	} else if errorreporting.IsSentryEnabled() {
		defer errorreporting.Flush(2 * time.Second)
	}

	shutdownTracing, err := tracing.Init("reddit-scraper-worker")
	if err != nil {
		logger.Warn("Failed to initialize tracing", "error", err)
	} else {
		defer shutdownTracing(context.Background())
	}

	creds := reddit.Credentials{
		ClientID:     os.Getenv("R_CLIENT_ID"),
		ClientSecret: os.Getenv("R_CLIENT_SECRET"),
		Username:     os.Getenv("R_USERNAME"),
		Password:     os.Getenv("R_PASSWORD"),
		UserAgent:    os.Getenv("R_USER_AGENT"),
	}
	if err := secrets.ValidateRequired(map[string]string{
		"R_CLIENT_ID":     creds.ClientID,
		"R_CLIENT_SECRET": creds.ClientSecret,
		"R_USERNAME":      creds.Username,
		"R_PASSWORD":      creds.Password,
	}); err != nil {
		logger.Error("Reddit credentials missing from environment", "error", err)
		log.Fatalf("Invalid credentials: %v", err)
	}
	if creds.UserAgent == "" {
		creds.UserAgent = cfg.UserAgent
	}

	if cfg.Database.URI == "" {
		logger.Error("MONGODB_URI environment variable is required")
		log.Fatal("MONGODB_URI environment variable is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	scrapeCfg := cfg.Scrape
	if *postsLimit > 0 {
		scrapeCfg.PostsLimit = *postsLimit
	}
	if *scrapeInterval > 0 {
		scrapeCfg.ScrapeInterval = time.Duration(*scrapeInterval) * time.Second
	}
	if *commentBatch > 0 {
		scrapeCfg.CommentBatch = *commentBatch
	}
	if methods := splitCSV(*sortingMethods); len(methods) > 0 {
		scrapeCfg.SortingMethods = methods
	}

	client := reddit.NewClient(creds, cfg)
	worker := scraper.New(st, client, client.Governor(), client.Transport(),
		scrapeCfg, *primary, *scraperType, subreddits)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Received shutdown signal")
		cancel()
	}()

	worker.Run(ctx)
	logger.Info("Scraper worker stopped", "primary", *primary)
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
