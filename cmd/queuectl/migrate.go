package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply storage migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.logger.Info("running migrations", slog.String("driver", a.cfg.Driver))
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			if err := st.Ping(cmd.Context()); err != nil {
				return err
			}
			a.logger.Info("migrations complete", slog.String("driver", a.cfg.Driver))
			return nil
		},
	}
}
