package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/queuectl/job"
)

// ── enqueue ───────────────────────────────────────────────────────────────────

func enqueueCmd(a *app) *cobra.Command {
	var (
		jobID      string
		command    string
		maxRetries int
	)
	cmd := &cobra.Command{
		Use:   "enqueue ['<json>']",
		Short: "Add a job from a JSON payload or from flags",
		Example: `  queuectl enqueue '{"id":"job1","command":"sleep 2"}'
  queuectl enqueue --command "echo hello" --max-retries 5`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := enqueuePayload(cmd, args, jobID, command, maxRetries)
			if err != nil {
				return err
			}

			eng, closeStore, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			j, err := eng.EnqueueJSON(cmd.Context(), payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s\n", j.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&jobID, "id", "", "job id (generated when empty)")
	cmd.Flags().StringVar(&command, "command", "", "shell command to run")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "retries after the first failure (default from config)")
	return cmd
}

// enqueuePayload returns the positional JSON payload, or builds one from
// flags. The two forms are exclusive.
func enqueuePayload(cmd *cobra.Command, args []string, jobID, command string, maxRetries int) ([]byte, error) {
	flagsUsed := cmd.Flags().Changed("command") || cmd.Flags().Changed("id") || cmd.Flags().Changed("max-retries")
	switch {
	case len(args) == 1 && flagsUsed:
		return nil, errors.New("pass either a JSON payload or --command flags, not both")
	case len(args) == 1:
		return []byte(args[0]), nil
	case !flagsUsed:
		return nil, errors.New("a JSON payload or --command is required")
	}

	req := job.Request{ID: jobID, Command: command}
	if cmd.Flags().Changed("max-retries") {
		req.MaxRetries = &maxRetries
	}
	return json.Marshal(req)
}

// ── status ────────────────────────────────────────────────────────────────────

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job counts by state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, closeStore, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			stats, err := eng.Stats(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STATE\tJOBS")
			for _, st := range job.States {
				fmt.Fprintf(tw, "%s\t%d\n", st, stats.Counts[st])
			}
			fmt.Fprintf(tw, "total\t%d\n", stats.Total)
			return tw.Flush()
		},
	}
}

// ── list ──────────────────────────────────────────────────────────────────────

func listCmd(a *app) *cobra.Command {
	var (
		state  string
		limit  int
		offset int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs in FIFO order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := job.ListOpts{Limit: limit, Offset: offset}
			if state != "" {
				st, ok := job.ParseState(state)
				if !ok {
					return fmt.Errorf("unknown state %q (want pending, processing, completed or dead)", state)
				}
				opts.State = st
			}

			eng, closeStore, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			jobs, err := eng.List(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return printJobs(cmd.OutOrStdout(), jobs)
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "filter by state: pending, processing, completed, dead")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of jobs (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of jobs to skip")
	return cmd
}

func printJobs(w io.Writer, jobs []*job.Job) error {
	if len(jobs) == 0 {
		_, err := fmt.Fprintln(w, "no jobs")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tATTEMPTS\tMAX_RETRIES\tNEXT_RUN\tCREATED\tCOMMAND")
	for _, j := range jobs {
		next := "-"
		if j.NextRunAt > 0 {
			next = time.Unix(j.NextRunAt, 0).UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			j.ID, j.State, j.Attempts, j.MaxRetries, next,
			j.CreatedAt.Format(time.RFC3339), j.Command)
	}
	return tw.Flush()
}
