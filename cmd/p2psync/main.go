// Command p2psync is the tracker, serving peer, and downloading client
// for a content-addressed file-sync system, dispatched as subcommands
// of a single binary.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
)

// Set via -ldflags at build time:
//
//	go build -ldflags "-X main.version=0.1.0 -X main.commit=$(git rev-parse --short HEAD)" -o p2psync ./cmd/p2psync
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "tracker":
		runTracker(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "download":
		runDownload(os.Args[2:])
	case "version", "--version":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("p2psync %s (%s)\n", version, commit)
	fmt.Printf("Go %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func printUsage() {
	fmt.Println("Usage: p2psync <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  tracker --port <port> [--config <file>]")
	fmt.Println("  serve --path <path>... --address <addr> --port <port> [--dump-path <file>] [--load-path <file>] [--tracker <url>]... [--config <file>]")
	fmt.Println("  download --md5 <digest> [--concurrency <n>] --tracker <url>... [--config <file>]")
	fmt.Println("  version")
}
