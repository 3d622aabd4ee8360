package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tunesync/internal/runstate"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show daemon status, or the state of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				return printDaemonStatus(cmd, out, client)
			}
			status, err := client.RunStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printRun(out, status.State, status.Progress)
			return nil
		},
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Request cancellation of a running sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %s\n", args[0])
			fmt.Fprintln(cmd.OutOrStdout(), "The run stops at the next step boundary.")
			return nil
		},
	}
}

func printDaemonStatus(cmd *cobra.Command, out io.Writer, client *apiClient) error {
	status, err := client.DaemonStatus(cmd.Context())
	if err != nil {
		return err
	}
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	kind := statusError
	message := "stopped"
	if status.Running {
		kind = statusOK
		message = fmt.Sprintf("pid %d", status.PID)
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", kind, message, colorize))
	fmt.Fprintln(out, renderStatusLine("History DB", statusInfo, status.HistoryDBPath, colorize))
	fmt.Fprintln(out, renderStatusLine("Runs recorded", statusInfo,
		fmt.Sprintf("%d total, %d matched, %d failed", status.Runs.Total, status.Runs.Matched, status.Runs.Failed), colorize))

	if len(status.RecentRuns) > 0 {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Recent runs", colorize) {
			fmt.Fprintln(out, line)
		}
		fmt.Fprintln(out, runHistoryTable(status.RecentRuns))
	}
	return nil
}

func printRun(out io.Writer, state runstate.RunState, progress runstate.Progress) {
	colorize := shouldColorize(out)

	fmt.Fprintln(out, renderStatusLine("Run", statusInfo, state.RunID, colorize))
	fmt.Fprintln(out, renderStatusLine("Track", statusInfo, state.Request.Source.String(), colorize))
	fmt.Fprintln(out, renderStatusLine("Playlist", statusInfo, state.Request.TargetPlaylistID, colorize))
	fmt.Fprintln(out, renderStatusLine("Status", statusKindFor(state.Status), string(state.Status), colorize))
	fmt.Fprintln(out, renderStatusLine("Step", statusInfo,
		fmt.Sprintf("%s (%d/%d)", progress.CurrentStep, progress.StepsCompleted, progress.StepsTotal), colorize))
	fmt.Fprintln(out, renderStatusLine("Candidates", statusInfo, fmt.Sprintf("%d", progress.CandidatesFound), colorize))
	fmt.Fprintln(out, renderStatusLine("Elapsed", statusInfo, formatElapsed(progress.ElapsedSeconds), colorize))

	switch {
	case state.Error != "":
		fmt.Fprintln(out, renderStatusLine("Error", statusError, state.Error, colorize))
	case state.Result != nil && state.Result.Success:
		fmt.Fprintln(out, renderStatusLine("Result", statusOK, state.Result.Message, colorize))
		fmt.Fprintln(out, renderStatusLine("Confidence", statusInfo, fmt.Sprintf("%.2f", state.Result.Confidence), colorize))
		fmt.Fprintln(out, renderStatusLine("Catalog URI", statusInfo, state.Result.MatchedURI, colorize))
	case state.Result != nil:
		fmt.Fprintln(out, renderStatusLine("Result", statusWarn, state.Result.Message, colorize))
	}
}

func statusKindFor(status runstate.Status) statusKind {
	switch status {
	case runstate.StatusCompleted:
		return statusOK
	case runstate.StatusFailed:
		return statusError
	default:
		return statusInfo
	}
}
