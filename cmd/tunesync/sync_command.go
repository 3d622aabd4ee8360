package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"tunesync/internal/daemon"
	"tunesync/internal/runstate"
)

const waitPollInterval = 2 * time.Second

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var (
		album          string
		isrc           string
		durationMS     int
		playlistID     string
		requesterID    string
		threshold      float64
		noDisambig     bool
		idempotencyKey string
		wait           bool
	)

	cmd := &cobra.Command{
		Use:   "sync <title> <artist>",
		Short: "Submit a track for playlist sync",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			req := daemon.SyncRequest{
				Title:          args[0],
				Artist:         args[1],
				Album:          album,
				DurationMS:     durationMS,
				ISRC:           isrc,
				PlaylistID:     playlistID,
				RequesterID:    requesterID,
				IdempotencyKey: idempotencyKey,
			}
			if cmd.Flags().Changed("threshold") {
				req.MatchThreshold = &threshold
			}
			if noDisambig {
				allow := false
				req.AllowDisambiguation = &allow
			}

			accepted, err := client.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run accepted: %s\n", accepted.RunID)
			if !wait {
				fmt.Fprintf(out, "Track it with: tunesync status %s\n", accepted.RunID)
				return nil
			}
			return waitForRun(cmd.Context(), out, client, accepted.RunID)
		},
	}

	cmd.Flags().StringVar(&album, "album", "", "Album name")
	cmd.Flags().StringVar(&isrc, "isrc", "", "ISRC identifier of the source track")
	cmd.Flags().IntVar(&durationMS, "duration-ms", 0, "Track duration in milliseconds")
	cmd.Flags().StringVarP(&playlistID, "playlist", "p", "", "Target playlist identifier")
	cmd.Flags().StringVar(&requesterID, "requester", "", "Requester identifier recorded with the run")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Match threshold override (0..1)")
	cmd.Flags().BoolVar(&noDisambig, "no-disambiguation", false, "Skip LLM disambiguation for ambiguous matches")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Deduplication key for retried submissions")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Poll until the run reaches a terminal state")
	_ = cmd.MarkFlagRequired("playlist")

	return cmd
}

// waitForRun polls the run until it is terminal, printing each step
// transition. A failed run surfaces as a command error.
func waitForRun(ctx context.Context, out io.Writer, client *apiClient, runID string) error {
	var lastStep runstate.Step
	for {
		status, err := client.RunStatus(ctx, runID)
		if err != nil {
			return err
		}
		state := status.State

		if state.CurrentStep != lastStep {
			lastStep = state.CurrentStep
			fmt.Fprintf(out, "  %s (%d/%d)\n",
				state.CurrentStep, status.Progress.StepsCompleted, status.Progress.StepsTotal)
		}

		if state.Status.Terminal() {
			return reportResult(out, state)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitPollInterval):
		}
	}
}

func reportResult(out io.Writer, state runstate.RunState) error {
	if state.Status == runstate.StatusFailed {
		if state.Error != "" {
			return errors.New(state.Error)
		}
		return errors.New("run failed")
	}
	if state.Result == nil {
		fmt.Fprintln(out, "Run completed")
		return nil
	}
	if state.Result.Success {
		fmt.Fprintf(out, "%s (confidence %.2f, %.1fs)\n",
			state.Result.Message, state.Result.Confidence, state.Result.ElapsedSeconds)
	} else {
		fmt.Fprintf(out, "No match: %s\n", state.Result.Message)
	}
	return nil
}
