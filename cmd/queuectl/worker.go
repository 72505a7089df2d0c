package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func workerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run job workers",
	}
	cmd.AddCommand(workerStartCmd(a))
	return cmd
}

func workerStartCmd(a *app) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start workers; SIGINT or SIGTERM stops them after their current job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("count") {
				if err := a.cfg.Set("workers", fmt.Sprint(count)); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			flush, err := a.setupTracing(ctx)
			if err != nil {
				return err
			}
			defer flush()

			eng, closeStore, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := eng.Start(ctx); err != nil {
				return err
			}
			a.logger.Info("workers started", slog.Int("count", a.cfg.Workers), slog.String("driver", a.cfg.Driver))

			exited := make(chan error, 1)
			go func() { exited <- eng.Wait() }()

			select {
			case err := <-exited:
				// Every worker gave up on the store before a signal arrived.
				if err != nil {
					return fmt.Errorf("workers exited: %w", err)
				}
				return nil
			case <-ctx.Done():
				stop() // a second signal kills the process
			}

			a.logger.Info("shutting down, waiting for running jobs")
			if err := eng.Stop(context.Background()); err != nil {
				return fmt.Errorf("stop workers: %w", err)
			}
			return <-exited
		},
	}
	cmd.Flags().IntVar(&count, "count", 1, "number of concurrent workers (default from config)")
	return cmd
}
