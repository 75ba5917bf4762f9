package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/reddit-scraper-fleet/internal/config"
	"github.com/onnwee/reddit-scraper-fleet/internal/integrity"
	"github.com/onnwee/reddit-scraper-fleet/internal/logger"
	"github.com/onnwee/reddit-scraper-fleet/internal/store"
)

func main() {
	cleanCmd := flag.NewFlagSet("clean", flag.ExitOnError)
	cleanType := cleanCmd.String("type", "all", "Cleanup type: all, comments, ghosts, scrapers")
	cleanBatch := cleanCmd.Int("batch", 1000, "Batch size for cleanup operations")
	cleanDryRun := cleanCmd.Bool("dry-run", false, "Report what would change without writing")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (falling back to system env)")
	}
	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	if cfg.Database.URI == "" {
		log.Fatal("MONGODB_URI environment variable is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	st, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer st.Close(context.Background())

	svc := integrity.NewService(st)

	switch os.Args[1] {
	case "check":
		runCheck(ctx, svc)
	case "clean":
		cleanCmd.Parse(os.Args[2:])
		runClean(ctx, svc, *cleanType, *cleanBatch, *cleanDryRun)
	case "counts":
		runCounts(ctx, st)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Reddit Scraper Fleet - Data Integrity Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  integrity check              - Run all integrity checks")
	fmt.Println("  integrity clean [options]    - Repair integrity issues")
	fmt.Println("  integrity counts             - Show per-collection document counts")
	fmt.Println()
	fmt.Println("Clean options:")
	fmt.Println("  -type string   Cleanup type (default: all)")
	fmt.Println("                 Options: all, comments, ghosts, scrapers")
	fmt.Println("  -batch int     Batch size (default: 1000)")
	fmt.Println("  -dry-run       Report without writing")
}

func runCheck(ctx context.Context, svc *integrity.Service) {
	results, err := svc.CheckAll(ctx)
	if err != nil {
		log.Fatalf("Integrity checks failed: %v", err)
	}

	fmt.Println()
	hasIssues := false
	for _, r := range results {
		status := "OK"
		if r.HasIssues {
			status = fmt.Sprintf("ISSUES FOUND: %d", r.IssueCount)
			hasIssues = true
		}
		fmt.Printf("%-22s %s\n", r.CheckName+":", status)
		fmt.Printf("  %s\n\n", r.Details)
	}

	if hasIssues {
		fmt.Println("Run 'integrity clean' to repair")
		os.Exit(1)
	}
	fmt.Println("All integrity checks passed")
}

func runClean(ctx context.Context, svc *integrity.Service, cleanType string, batch int, dryRun bool) {
	if dryRun {
		results, err := svc.CheckAll(ctx)
		if err != nil {
			log.Fatalf("Integrity checks failed: %v", err)
		}
		fmt.Println("Dry run, would repair:")
		for _, r := range results {
			if r.HasIssues {
				fmt.Printf("  %s: %d items\n", r.CheckName, r.IssueCount)
			}
		}
		return
	}

	start := time.Now()
	var total int64

	clean := func(name string, fn func() (int64, error)) {
		n, err := fn()
		if err != nil {
			log.Fatalf("Failed to clean %s: %v", name, err)
		}
		fmt.Printf("  %s: %d repaired\n", name, n)
		total += n
	}

	switch cleanType {
	case "comments":
		clean("orphan comments", func() (int64, error) { return svc.CleanOrphanComments(ctx, batch) })
	case "ghosts":
		clean("ghost-marked posts", func() (int64, error) { return svc.ResetGhostPosts(ctx, batch) })
	case "scrapers":
		clean("stale scrapers", func() (int64, error) { return svc.FailStaleScrapers(ctx) })
	case "all":
		clean("orphan comments", func() (int64, error) { return svc.CleanOrphanComments(ctx, batch) })
		clean("ghost-marked posts", func() (int64, error) { return svc.ResetGhostPosts(ctx, batch) })
		clean("stale scrapers", func() (int64, error) { return svc.FailStaleScrapers(ctx) })
	default:
		log.Fatalf("Unknown cleanup type: %s", cleanType)
	}

	fmt.Printf("\nTotal repaired: %d in %s\n", total, time.Since(start).Round(time.Millisecond))
}

func runCounts(ctx context.Context, st *store.Store) {
	counts, err := st.CollectionCounts(ctx)
	if err != nil {
		log.Fatalf("Failed to count collections: %v", err)
	}
	fmt.Println()
	for _, name := range []string{"posts", "comments", "metadata", "scrapers", "accounts", "errors", "api_usage", "suggestions"} {
		fmt.Printf("%-14s %12d\n", name, counts[name])
	}
}
