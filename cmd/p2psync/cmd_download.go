package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/shurlinet/p2psync/internal/config"
	"github.com/shurlinet/p2psync/internal/executor"
	"github.com/shurlinet/p2psync/internal/planner"
	"github.com/shurlinet/p2psync/internal/validate"
)

// defaultConcurrency is used when neither --concurrency nor the
// config file's default is set.
const defaultConcurrency = 8

// progressLogInterval is how often a running download logs its
// current byte count while in flight.
const progressLogInterval = 2 * time.Second

func runDownload(args []string) {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	digest := fs.String("md5", "", "root content digest to download (required)")
	concurrency := fs.Int("concurrency", 0, "maximum number of concurrent downloads")
	var trackerURLs stringList
	fs.Var(&trackerURLs, "tracker", "tracker base URL to discover peers from (repeatable)")
	configPath := fs.String("config", "p2psync.yaml", "path to optional YAML defaults file")
	fs.Parse(args)

	defaults, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if *digest == "" {
		log.Fatal("--md5 is required")
	}
	if err := validate.Digest(*digest); err != nil {
		log.Fatalf("invalid --md5: %v", err)
	}
	if *concurrency == 0 {
		*concurrency = defaults.Concurrency
	}
	if *concurrency == 0 {
		*concurrency = defaultConcurrency
	}
	if len(trackerURLs) == 0 {
		trackerURLs = defaults.TrackerURLs
	}
	for _, url := range trackerURLs {
		if err := validate.PeerURL(url); err != nil {
			log.Fatalf("invalid --tracker: %v", err)
		}
	}

	ctx := context.Background()

	p := planner.New(trackerURLs)
	actions, err := p.Plan(ctx, *digest)
	if err != nil {
		log.Fatalf("plan: %v", err)
	}
	slog.Info("plan resolved", "actions", len(actions))

	progress := executor.NewProgress(executor.TotalSize(actions))
	done := make(chan struct{})
	go reportProgress(progress, done)

	err = executor.Execute(ctx, actions, *concurrency, progress)
	close(done)
	if err != nil {
		log.Fatalf("download failed: %v", err)
	}

	current, total := progress.Snapshot()
	fmt.Printf("downloaded %d/%d bytes\n", current, total)
}

func reportProgress(p *executor.Progress, done <-chan struct{}) {
	ticker := time.NewTicker(progressLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			current, total := p.Snapshot()
			slog.Info("download progress", "bytes", current, "total", total)
		}
	}
}
