package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/queuectl/api"
)

func serveCmd(a *app) *cobra.Command {
	var noWorkers bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the worker pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			srv := &http.Server{
				Addr:              a.cfg.ListenAddr,
				Handler:           api.New(eng, api.WithLogger(a.logger)).Handler(),
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       15 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			if !noWorkers {
				if err := eng.Start(ctx); err != nil {
					return err
				}
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.logger.Info("server started", slog.String("addr", a.cfg.ListenAddr))
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				if err := eng.Wait(); err != nil {
					return fmt.Errorf("workers exited: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				a.logger.Info("shutting down")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				srvErr := srv.Shutdown(shutdownCtx)
				engErr := eng.Stop(context.Background())
				return errors.Join(srvErr, engErr)
			})

			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&noWorkers, "no-workers", false, "serve the API without running workers")
	return cmd
}
