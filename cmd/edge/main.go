package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/cmux/edge/internal/config"
	"github.com/cmux/edge/internal/edge"
	"github.com/cmux/edge/internal/logging"
	"github.com/cmux/edge/internal/resolver"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/edge.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("cmux edge %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *validateOnly {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	up := cfg.Upstreams
	if up.WorkspaceURL == "" {
		fmt.Fprintln(os.Stderr, "upstreams must be configured to run the edge standalone")
		os.Exit(1)
	}
	lookups := resolver.NewTemplateLookups(up.WorkspaceURL, up.PortURL, up.ScopeURL)

	logging.Info("Starting cmux edge",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.String("public_suffix", cfg.Domain.PublicSuffix),
	)

	server, err := edge.NewServer(cfg, lookups)
	if err != nil {
		logging.Error("Failed to create edge server", zap.Error(err))
		os.Exit(1)
	}

	if err := server.Run(context.Background()); err != nil {
		logging.Error("Server error", zap.Error(err))
		os.Exit(1)
	}
}
