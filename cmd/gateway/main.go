package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/env"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("gateway failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	serve := newServeCmd()
	root := &cobra.Command{
		Use:           "gateway",
		Short:         "MaestroBuddy coaching gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return nil
			}
			return env.LoadFile(configPath)
		},
		RunE: serve.RunE,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML file of KEY: value settings; environment variables take precedence")
	root.AddCommand(serve, newContentCmd(), newSeedCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the coaching gateway (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), loadConfig())
		},
	}
}

func newContentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "content",
		Short: "Run the standalone content gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContent(cmd.Context(), loadConfig())
		},
	}
}

func newSeedCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import a file store data directory into the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			return runSeed(cmd.Context(), dir, cfg.storeDriver, cfg.storeDSN)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory holding students.json and sessions.json")
	cmd.MarkFlagRequired("dir")
	return cmd
}
