package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shurlinet/p2psync/internal/config"
	"github.com/shurlinet/p2psync/internal/metrics"
	"github.com/shurlinet/p2psync/internal/servepeer"
	"github.com/shurlinet/p2psync/internal/tracker"
	"github.com/shurlinet/p2psync/internal/validate"
)

// heartbeatInterval is how often a serving peer re-announces itself to
// every configured tracker.
const heartbeatInterval = 30 * time.Second

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var paths stringList
	fs.Var(&paths, "path", "host path to serve (repeatable)")
	address := fs.String("address", "", "address to listen on")
	port := fs.Int("port", 0, "port to listen on (required)")
	dumpPath := fs.String("dump-path", "", "write a CBOR snapshot of the sealed VFS to this file and exit")
	loadPath := fs.String("load-path", "", "restore the VFS from a previously dumped snapshot instead of scanning --path")
	var trackerURLs stringList
	fs.Var(&trackerURLs, "tracker", "tracker base URL to announce to (repeatable)")
	configPath := fs.String("config", "p2psync.yaml", "path to optional YAML defaults file")
	fs.Parse(args)

	defaults, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if len(paths) == 0 {
		paths = defaults.Paths
	}
	if *address == "" {
		*address = defaults.Address
	}
	if *address == "" {
		*address = "0.0.0.0"
	}
	if *port == 0 {
		*port = defaults.Port
	}
	if *port == 0 {
		log.Fatal("--port is required")
	}
	if len(trackerURLs) == 0 {
		trackerURLs = defaults.TrackerURLs
	}
	for _, url := range trackerURLs {
		if err := validate.PeerURL(url); err != nil {
			log.Fatalf("invalid --tracker: %v", err)
		}
	}

	var state *servepeer.State
	switch {
	case *loadPath != "":
		data, err := os.ReadFile(*loadPath)
		if err != nil {
			log.Fatalf("read --load-path: %v", err)
		}
		state, err = servepeer.LoadState(data)
		if err != nil {
			log.Fatalf("load snapshot: %v", err)
		}
	case len(paths) > 0:
		state, err = servepeer.NewState(paths)
		if err != nil {
			log.Fatalf("build VFS: %v", err)
		}
	default:
		log.Fatal("--path or --load-path is required")
	}

	if *dumpPath != "" {
		if err := state.DumpSnapshot(*dumpPath); err != nil {
			log.Fatalf("dump snapshot: %v", err)
		}
		fmt.Printf("snapshot written to %s\n", *dumpPath)
		return
	}

	m := metrics.New()
	server := servepeer.NewServer(state, m)
	if err := server.Start(addrPort(*address, *port)); err != nil {
		log.Fatalf("serve start: %v", err)
	}
	slog.Info("serving peer running", "addr", server.Addr().String())

	var hb *tracker.HeartBeater
	if len(trackerURLs) > 0 {
		selfURL := fmt.Sprintf("http://%s", server.Addr().String())
		hb = tracker.NewHeartBeater(selfURL, trackerURLs, heartbeatInterval)
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	slog.Info("serving peer shutting down")
	if hb != nil {
		hb.Stop()
	}
	if err := server.Stop(context.Background()); err != nil {
		log.Fatalf("serve shutdown: %v", err)
	}
}
