package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zde37/chordsim/internal/api"
	"github.com/zde37/chordsim/internal/chord"
	"github.com/zde37/chordsim/internal/config"
	"github.com/zde37/chordsim/pkg"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "chordsim: %v\n", err)
		os.Exit(1)
	}
}

// run executes one simulation. The logger is closed on every return path so
// buffered async writes reach the log file.
func run(args []string) error {
	// Parse command-line flags
	fs := flag.NewFlagSet("chordsim", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a TOML or YAML config file")
	nodes := fs.String("nodes", "0,20,40,60,80", "Comma-separated node ids; the first creates the ring, the rest join through it")
	keys := fs.String("keys", "hello=world", "Comma-separated key=value pairs to store")
	leave := fs.String("leave", "40", "Comma-separated node ids that leave after the keys are stored")
	strategy := fs.String("strategy", "", "Routing strategy override (ring, oracle, gossip)")
	serve := fs.Bool("serve", false, "Keep the HTTP API running after the scenario until interrupted")
	logLevel := fs.String("log-level", "", "Log level override (trace, debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	}
	if *strategy != "" {
		cfg.Routing.Strategy = *strategy
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	sc, err := parseScenario(*nodes, *keys, *leave, cfg.M)
	if err != nil {
		return fmt.Errorf("invalid scenario: %w", err)
	}

	// Initialize logger
	logger, err := pkg.New(loggerConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	logger.Info().
		Uint64("m", cfg.M).
		Str("strategy", cfg.Routing.Strategy).
		Int("nodes", len(sc.nodes)).
		Msg("Starting chordsim")

	var (
		opts       []chord.Option
		httpServer *api.Server
	)
	if *serve && cfg.HTTPPort > 0 {
		httpServer, err = api.NewServer(logger)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create HTTP API server")
			return err
		}
		if err := httpServer.Start(cfg.HTTPPort); err != nil {
			logger.Error().Err(err).Msg("Failed to start HTTP API server")
			return err
		}
		opts = append(opts, chord.WithObserver(httpServer.Hub()))
	}

	cluster, err := chord.NewCluster(cfg, logger, opts...)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create cluster")
		cleanup(nil, httpServer, logger)
		return err
	}

	var publish func(chord.ClusterSnapshot)
	if httpServer != nil {
		publish = httpServer.Publish
	}

	if err := runScenario(cluster, sc, logger, publish); err != nil {
		logger.Error().Err(err).Msg("Scenario failed")
		cleanup(cluster, httpServer, logger)
		return err
	}

	if httpServer != nil {
		logger.Info().Int("port", cfg.HTTPPort).Msg("Scenario finished, serving snapshot until interrupted")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
	}

	cleanup(cluster, httpServer, logger)
	logger.Info().Msg("chordsim finished")
	return nil
}

// loggerConfig maps the simulation config onto the logger's.
func loggerConfig(cfg *config.Config) *pkg.Config {
	lc := pkg.DefaultConfig()
	lc.Level = cfg.LogLevel
	lc.Format = cfg.LogFormat
	if cfg.LogFile != "" {
		lc.File.Enable = true
		lc.File.Path = cfg.LogFile
		lc.AsyncWrite = true
	}
	return lc
}

// cleanup performs graceful shutdown of all components
func cleanup(cluster *chord.Cluster, httpServer *api.Server, logger *pkg.Logger) {
	if httpServer != nil {
		if err := httpServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping HTTP server")
		}
	}
	if cluster != nil {
		cluster.Close()
	}
}
