package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	clientcmd "github.com/rzbill/courier/internal/cmd/client"
	serverrun "github.com/rzbill/courier/internal/cmd/server"
	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
	logpkg "github.com/rzbill/courier/pkg/log"
)

func main() {
	// CLI output honours COURIER_LOG_LEVEL; the server rebuilds its logger
	// from config.
	parsed, err := logpkg.ParseLevel(os.Getenv("COURIER_LOG_LEVEL"))
	if err != nil {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.SetDefaultLogger(logger)
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "courier",
		Short: "Courier message API",
		Long:  "Courier stores published envelopes per content topic and fans them out to live subscribers. This CLI runs the server and talks to it.",
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverCmd.AddCommand(newServerStartCommand())
	rootCmd.AddCommand(serverCmd)

	clientcmd.AddMessageCommands(rootCmd, apiURL)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServerStartCommand() *cobra.Command {
	startCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start courier server (gRPC and HTTP)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			grpcAddr, _ := cmd.Flags().GetString("grpc")
			httpAddr, _ := cmd.Flags().GetString("http")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")

			mode, err := pebblestore.ParseFsyncMode(fsyncMode)
			if err != nil || mode == pebblestore.FsyncModeUnspecified {
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			cfg, err := serverrun.LoadConfig(configPath)
			if err != nil {
				return err
			}
			// Explicit flags win over file and env.
			flags := cmd.Flags()
			if flags.Changed("log-level") {
				cfg.Log.Level, _ = flags.GetString("log-level")
			}
			if flags.Changed("log-format") {
				cfg.Log.Format, _ = flags.GetString("log-format")
			}
			if flags.Changed("sub-buf") {
				cfg.SubscriberBuffer, _ = flags.GetInt("sub-buf")
			}
			if flags.Changed("sub-flush-ms") {
				cfg.SubscriberFlushMs, _ = flags.GetInt("sub-flush-ms")
			}
			if flags.Changed("retention-age-ms") {
				cfg.RetentionAgeMs, _ = flags.GetInt64("retention-age-ms")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{
				DataDir:       dataDir,
				GRPCAddr:      grpcAddr,
				HTTPAddr:      httpAddr,
				Fsync:         mode,
				FsyncInterval: time.Duration(fsyncIntervalMs) * time.Millisecond,
				Config:        cfg,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	startCmd.Flags().String("config", os.Getenv("COURIER_CONFIG"), "Config file (.json or .yaml)")
	startCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	startCmd.Flags().String("grpc", ":50051", "gRPC listen address")
	startCmd.Flags().String("http", ":8080", "HTTP listen address")
	startCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	startCmd.Flags().Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms")
	startCmd.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	startCmd.Flags().String("log-format", "", "Log format: text|json")
	startCmd.Flags().Int("sub-buf", 0, "Queue capacity per subscription")
	startCmd.Flags().Int("sub-flush-ms", 0, "Subscribe flush window in ms")
	startCmd.Flags().Int64("retention-age-ms", 0, "Delete envelopes older than this (0 keeps everything)")
	return startCmd
}

func apiURL() string {
	if v := os.Getenv("COURIER_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
