package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xraph/queuectl/internal/config"
)

// configCmd edits the file only; environment overrides are neither shown
// nor saved.
func configCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get, set and list configuration keys",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if a.configPath != "" {
				return nil
			}
			p, err := config.DefaultPath()
			if err != nil {
				return err
			}
			a.configPath = p
			return nil
		},
	}
	cmd.AddCommand(configGetCmd(a), configSetCmd(a), configListCmd(a))
	return cmd
}

func configGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(a.configPath)
			if err != nil {
				return err
			}
			v, err := cfg.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func configSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "set <key> <value>",
		Short:   "Set one key and save the file",
		Example: "  queuectl config set max_retries 5\n  queuectl config set backoff_base 3",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(a.configPath)
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Save(a.configPath); err != nil {
				return err
			}
			v, _ := cfg.Get(args[0]) //nolint:errcheck // key validated by Set
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], v)
			return nil
		},
	}
}

func configListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFile(a.configPath)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "# %s\n", a.configPath)
			for _, key := range config.Keys() {
				v, _ := cfg.Get(key) //nolint:errcheck // key comes from Keys
				fmt.Fprintf(tw, "%s\t%s\n", key, v)
			}
			return tw.Flush()
		},
	}
}
