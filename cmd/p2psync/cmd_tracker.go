package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shurlinet/p2psync/internal/config"
	"github.com/shurlinet/p2psync/internal/metrics"
	"github.com/shurlinet/p2psync/internal/tracker"
)

func runTracker(args []string) {
	fs := flag.NewFlagSet("tracker", flag.ExitOnError)
	port := fs.Int("port", 0, "port to listen on (required)")
	configPath := fs.String("config", "p2psync.yaml", "path to optional YAML defaults file")
	fs.Parse(args)

	defaults, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if *port == 0 {
		*port = defaults.Port
	}
	if *port == 0 {
		log.Fatal("--port is required")
	}

	m := metrics.New()

	registry := tracker.NewRegistry()
	server := tracker.NewServer(registry, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go registry.RunCleanup(ctx)

	addr := defaults.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	if err := server.Start(addrPort(addr, *port)); err != nil {
		log.Fatalf("tracker start: %v", err)
	}

	slog.Info("tracker running", "addr", server.Addr().String())

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	slog.Info("tracker shutting down")
	cancel()
	if err := server.Stop(context.Background()); err != nil {
		log.Fatalf("tracker shutdown: %v", err)
	}
}
