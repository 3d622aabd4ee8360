package runstate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tunesync/internal/catalog"
	"tunesync/internal/match"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := OpenHistoryPath(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func sampleState(runID string, status Status) RunState {
	state := RunState{
		RunID: runID,
		Request: RunRequest{
			Source: catalog.SourceRecord{
				Title:  "Karma Police",
				Artist: "Radiohead",
				Album:  "OK Computer",
			},
			TargetPlaylistID: "37i9dQZF1DXcBWIGoYBM5M",
			RequesterID:      "user-1",
		},
		CurrentStep:     StepCompleted,
		CandidatesFound: 3,
		StartedAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Status:          status,
	}
	if status.Terminal() {
		state.FinishedAt = state.StartedAt.Add(12 * time.Second)
	}
	if status == StatusCompleted {
		state.Result = &RunResult{
			Success:          true,
			Message:          "matched",
			MatchedCatalogID: "abc123",
			MatchedURI:       "spotify:track:abc123",
			Confidence:       0.93,
			ElapsedSeconds:   12,
			Method:           match.MethodSimilarity,
		}
	}
	return state
}

func TestHistoryRecordAndGet(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()

	state := sampleState("run-1", StatusCompleted)
	if err := h.Record(ctx, state); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, found, err := h.Get(ctx, "run-1")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.Request.Source.Title != "Karma Police" {
		t.Fatalf("title = %q", got.Request.Source.Title)
	}
	if got.Status != StatusCompleted || got.CurrentStep != StepCompleted {
		t.Fatalf("status=%q step=%q", got.Status, got.CurrentStep)
	}
	if got.Result == nil || got.Result.MatchedURI != "spotify:track:abc123" {
		t.Fatalf("result = %+v", got.Result)
	}
	if got.Result.Method != match.MethodSimilarity {
		t.Fatalf("method = %q", got.Result.Method)
	}
	if !got.FinishedAt.Equal(state.FinishedAt) {
		t.Fatalf("finished_at = %v", got.FinishedAt)
	}
}

func TestHistoryUpsert(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()

	running := sampleState("run-1", StatusRunning)
	running.CurrentStep = StepSearching
	running.Result = nil
	running.FinishedAt = time.Time{}
	if err := h.Record(ctx, running); err != nil {
		t.Fatalf("record running: %v", err)
	}

	done := sampleState("run-1", StatusCompleted)
	if err := h.Record(ctx, done); err != nil {
		t.Fatalf("record completed: %v", err)
	}

	got, found, err := h.Get(ctx, "run-1")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status = %q, want upserted terminal state", got.Status)
	}

	stats, err := h.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 1 {
		t.Fatalf("total = %d, want 1 after upsert", stats.Total)
	}
}

func TestHistoryGetMissing(t *testing.T) {
	h := openTestHistory(t)
	_, found, err := h.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatal("unexpected hit")
	}
}

func TestHistoryListOrder(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		state := sampleState("run-"+string(rune('a'+i)), StatusCompleted)
		state.StartedAt = state.StartedAt.Add(time.Duration(i) * time.Minute)
		if err := h.Record(ctx, state); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	runs, err := h.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len = %d", len(runs))
	}
	if runs[0].RunID != "run-c" {
		t.Fatalf("first = %q, want most recent", runs[0].RunID)
	}

	limited, err := h.List(ctx, 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limited len = %d", len(limited))
	}
}

func TestHistoryStatsAndClear(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()

	if err := h.Record(ctx, sampleState("done", StatusCompleted)); err != nil {
		t.Fatal(err)
	}
	failed := sampleState("failed", StatusFailed)
	failed.Result = &RunResult{Success: false, Message: "search failed: boom", ElapsedSeconds: 3}
	failed.Error = "search failed: boom"
	if err := h.Record(ctx, failed); err != nil {
		t.Fatal(err)
	}
	live := sampleState("live", StatusRunning)
	live.Result = nil
	live.FinishedAt = time.Time{}
	if err := h.Record(ctx, live); err != nil {
		t.Fatal(err)
	}

	stats, err := h.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Completed != 1 || stats.Failed != 1 || stats.Matched != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	removed, err := h.ClearTerminal(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if _, found, _ := h.Get(ctx, "live"); !found {
		t.Fatal("running run must survive clear")
	}
}
