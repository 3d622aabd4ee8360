package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tunesync/internal/runstate"
)

// History commands read the run history database directly so they work
// whether or not the daemon is up. SQLite WAL mode allows the concurrent
// reader.
func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded sync runs",
	}
	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryClearCommand(ctx))
	return historyCmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			history, err := runstate.OpenHistory(cfg)
			if err != nil {
				return err
			}
			defer history.Close()

			runs, err := history.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			fmt.Fprintln(out, runHistoryTable(runs))

			stats, err := history.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d total, %d matched, %d failed\n", stats.Total, stats.Matched, stats.Failed)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	return cmd
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete finished runs from the history database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			history, err := runstate.OpenHistory(cfg)
			if err != nil {
				return err
			}
			defer history.Close()

			removed, err := history.ClearTerminal(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d finished runs\n", removed)
			return nil
		},
	}
}
