package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func dlqCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and retry dead jobs",
	}
	cmd.AddCommand(dlqListCmd(a), dlqRetryCmd(a))
	return cmd
}

func dlqListCmd(a *app) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, closeStore, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			jobs, err := eng.DeadLetters(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			return printJobs(cmd.OutOrStdout(), jobs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of jobs (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of jobs to skip")
	return cmd
}

func dlqRetryCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "retry [job-id]",
		Short: "Move a dead job, or every dead job with --all, back to pending",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("pass exactly one of a job id or --all")
			}

			eng, closeStore, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			if all {
				n, err := eng.RequeueAllDead(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %d jobs\n", n)
				return nil
			}

			if err := eng.Requeue(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("retry %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "requeue every dead job")
	return cmd
}
