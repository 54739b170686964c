// Command blacklight ray-traces images of black hole accretion flows from an
// input deck: render integrates the configured snapshots and writes the
// output artifacts; serve exposes the same pipeline behind a monitoring HTTP
// server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/HerculesJack/blacklight/pkg/config"
	"github.com/HerculesJack/blacklight/pkg/engine"
	"github.com/HerculesJack/blacklight/pkg/output"
	"github.com/HerculesJack/blacklight/web/server"
)

func main() {
	var verbose bool
	var port int

	root := &cobra.Command{
		Use:   "blacklight",
		Short: "General-relativistic ray tracing and radiative transfer",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	render := &cobra.Command{
		Use:   "render <input deck>",
		Short: "Integrate the configured snapshots and write the output artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(args[0], newLogger(verbose))
		},
	}

	serve := &cobra.Command{
		Use:   "serve <input deck>",
		Short: "Serve interactive renders of the configured system over HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(verbose)
			cfg, err := loadConfig(args[0], log)
			if err != nil {
				return err
			}
			return server.NewServer(cfg, log, port).Start()
		},
	}
	serve.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on")

	root.AddCommand(render, serve)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig(path string, log *slog.Logger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(log); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runRender(deck string, log *slog.Logger) error {
	runID := uuid.New().String()
	log = log.With("run", runID)

	cfg, err := loadConfig(deck, log)
	if err != nil {
		return err
	}
	log.Info("configuration loaded", "deck", deck, "model", cfg.Model.String(),
		"resolution", cfg.Camera.Resolution, "snapshots", cfg.Snapshots)

	e, err := engine.New(cfg, log)
	if err != nil {
		return err
	}
	writer := output.NewWriter(cfg, e.Radiation().Offsets())

	// SIGINT and SIGTERM cancel the run between levels.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	var writeErr error
	runErr := e.Run(ctx, func(res engine.SnapshotResult) {
		if writeErr != nil {
			return
		}
		rad := e.Radiation()
		writeErr = writer.Snapshot(res.Snapshot, res.Time,
			rad.Image[:res.Levels], e.Camera().BlockLocs)
	})
	if runErr != nil {
		return runErr
	}
	if writeErr != nil {
		return fmt.Errorf("writing outputs: %w", writeErr)
	}
	if err := writer.Finish(); err != nil {
		return err
	}

	log.Info("run complete", "elapsed", time.Since(start).Round(time.Millisecond),
		"stats", e.Stats().Summary())
	return nil
}
