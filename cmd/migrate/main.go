package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/defistate/defistate-migrator-go/cmd/migrate/config"
	"github.com/defistate/defistate-migrator-go/migrator"
	"github.com/defistate/defistate-migrator-go/streams/heads"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const (
	DefaultHeadBufferSize = 16
)

func main() {
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Move a constant-product position into a concentrated-liquidity pool",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "config.yaml", "Path to the configuration file.")

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Print what a migration would deposit, refund and require",
		RunE:  runQuote,
	}
	root.AddCommand(quoteCmd)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Follow new heads and drive the migration to completion",
		RunE:  runMigrate,
	}
	runCmd.Flags().Bool("dry-run", false, "recalculate on every head without sending anything")
	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command) (*config.MigrateConfig, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	logger.Info("Loaded configuration", "path", path, "chain_id", cfg.ChainID, "pair", cfg.Pair)
	return cfg, logger, nil
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, prometheus.NewRegistry(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	return a.quote(ctx)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, prometheus.DefaultRegisterer, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	stream, err := heads.NewClient(ctx, heads.Config{
		URL:        cfg.WSURL,
		Logger:     logger.With("component", "heads"),
		BufferSize: DefaultHeadBufferSize,
	})
	if err != nil {
		return err
	}

	for {
		select {
		case head := <-stream.Heads():
			done, err := a.advance(ctx, head, !dryRun)
			switch {
			case err == nil:
				if done {
					return nil
				}
			case errors.Is(err, migrator.ErrInvariant):
				// numbers that do not add up are never submitted
				return err
			case errors.Is(err, context.Canceled):
				return nil
			default:
				logger.Warn("Head processing failed, waiting for the next head",
					"block", head.Number,
					"class", migrator.Classify(err).Error(),
					"error", err,
				)
			}
		case err, ok := <-stream.Err():
			if ok && err != nil {
				logger.Error("Fatal head stream error", "error", err)
				return err
			}
			return ctx.Err()
		case <-ctx.Done():
			return nil
		}
	}
}
