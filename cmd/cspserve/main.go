// Package main is the entry point for the cspserve binary. It serves a
// web application's build output with Content-Security-Policy headers
// and meta tags injected per the configured policy.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cspserve/cspserve/pkg/addon"
	"github.com/cspserve/cspserve/pkg/config"
	"github.com/cspserve/cspserve/pkg/logging"
	"github.com/cspserve/cspserve/pkg/telemetry"
)

const defaultLogLevel = "info"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for cspserve
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cspserve",
		Short: "Dev server with Content-Security-Policy injection",
		Long: `Serves a build output directory, merging the declared CSP policy with
runtime additions (live-reload origins, test nonces, the violation
report endpoint) and delivering it as a header, a meta tag, or both.

The configuration file is watched; policy edits apply without restart.

Example:
  cspserve --config cspserve.yaml --addr :4200 --root dist`,
		RunE: runServe,
	}

	rootCmd.Flags().StringP("config", "c", "", "Path to configuration file (YAML)")
	rootCmd.Flags().StringP("addr", "a", "", "Listen address (overrides config)")
	rootCmd.Flags().StringP("root", "r", "", "Build output directory to serve (overrides config)")
	rootCmd.Flags().StringP("log-level", "l", defaultLogLevel, "Log level (debug, info, warn, error)")

	return rootCmd
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, _ []string) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	addrFlag, err := cmd.Flags().GetString("addr")
	if err != nil {
		return fmt.Errorf("failed to get addr flag: %w", err)
	}
	rootFlag, err := cmd.Flags().GetString("root")
	if err != nil {
		return fmt.Errorf("failed to get root flag: %w", err)
	}
	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return fmt.Errorf("failed to get log-level flag: %w", err)
	}

	logger := logging.NewLogger(logging.Config{
		Level:  logLevel,
		Pretty: true, // Use pretty logging for CLI
	})
	slog.SetDefault(logger)

	source, closeSource, err := buildConfigSource(configPath, addrFlag, rootFlag, logger)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		return err
	}
	defer closeSource()

	cfg := source.Current()

	shutdownTracing, err := telemetry.SetupProvider(context.Background(), telemetry.Config{
		ServiceName: "cspserve",
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Environment: cfg.Server.Environment,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		logger.Error("Failed to set up tracing", "error", err)
		return err
	}

	s := addon.NewServer(source, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start(cfg.Server.Address)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Stop(ctx); err != nil {
		logger.Error("Error during shutdown", "error", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Error("Error flushing traces", "error", err)
	}

	logger.Info("Server stopped")
	return nil
}

// buildConfigSource wires the file-watching provider when a config path
// is given, or a static load of defaults and environment overrides when
// not. CLI flags win over both.
func buildConfigSource(path, addrFlag, rootFlag string, logger *slog.Logger) (addon.ConfigSource, func(), error) {
	applyFlags := func(cfg *config.Config) {
		if addrFlag != "" {
			cfg.Server.Address = addrFlag
		}
		if rootFlag != "" {
			cfg.Server.Root = rootFlag
		}
	}

	if path == "" {
		cfg, err := config.Load("")
		if err != nil {
			return nil, nil, err
		}
		applyFlags(cfg)
		return addon.StaticConfig{Config: cfg}, func() {}, nil
	}

	// The override runs inside the provider's load path, so every
	// published config already carries the flag values and a watched
	// file cannot silently move the listener or the served root.
	provider, err := config.NewFileProvider(path, logger, config.WithOverride(applyFlags))
	if err != nil {
		return nil, nil, err
	}

	return provider, func() { _ = provider.Close() }, nil
}
