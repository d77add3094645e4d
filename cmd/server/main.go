// Command server runs the reservation API.
//
// The main package stays minimal: read configuration, set up logging, build
// the server and run it. Everything else lives under internal/.
//
// Usage:
//
//	server [-config path/to/config.yaml]
//
// Every setting can also come from the environment, e.g.
// RESERVE_SESSION_SECRET=$(openssl rand -hex 32).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/reservations/internal/config"
	"github.com/sakif/reservations/internal/logging"
	"github.com/sakif/reservations/internal/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("RESERVE_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.Setup(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}

	// Start blocks until the server is shut down (Ctrl+C or SIGTERM).
	return srv.Start()
}
