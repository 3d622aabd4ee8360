package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tunesync/internal/catalog"
	"tunesync/internal/config"
	"tunesync/internal/logging"
	"tunesync/internal/orchestrator"
	"tunesync/internal/runstate"
)

// fakeRunner completes runs when released, recording peak concurrency.
type fakeRunner struct {
	store   *runstate.MemoryStore
	block   chan struct{}
	active  atomic.Int32
	peak    atomic.Int32
	started atomic.Int32
}

func (f *fakeRunner) Run(ctx context.Context, runID string, req runstate.RunRequest, token *orchestrator.CancelToken) runstate.RunResult {
	f.started.Add(1)
	current := f.active.Add(1)
	for {
		peak := f.peak.Load()
		if current <= peak || f.peak.CompareAndSwap(peak, current) {
			break
		}
	}
	if f.block != nil {
		<-f.block
	}
	f.active.Add(-1)

	result := runstate.RunResult{Success: true, Message: "done"}
	status := runstate.StatusCompleted
	if token.Cancelled() {
		result = runstate.RunResult{Success: false, Message: "cancelled"}
		status = runstate.StatusFailed
	}
	f.store.Put(runID, runstate.RunState{
		RunID:       runID,
		Request:     req,
		CurrentStep: runstate.StepCompleted,
		Status:      status,
		Result:      &result,
	})
	return result
}

func testRequest(key string) runstate.RunRequest {
	return runstate.RunRequest{
		Source:           catalog.SourceRecord{Title: "Karma Police", Artist: "Radiohead"},
		TargetPlaylistID: "37i9dQZF1DXcBWIGoYBM5M",
		MatchThreshold:   0.85,
		IdempotencyKey:   key,
	}
}

func newTestSupervisor(t *testing.T, maxConcurrent int, runner *fakeRunner) (*Supervisor, *runstate.MemoryStore) {
	t.Helper()
	store := runstate.NewMemoryStore()
	runner.store = store
	cfg := config.Default()
	cfg.Sync.MaxConcurrentRuns = maxConcurrent
	s := New(&cfg, runner, store, logging.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s, store
}

func waitForStatus(t *testing.T, s *Supervisor, runID string, status runstate.Status) runstate.RunState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if state, ok := s.GetStatus(runID); ok && state.Status == status {
			return state
		}
		time.Sleep(5 * time.Millisecond)
	}
	state, _ := s.GetStatus(runID)
	t.Fatalf("run %s never reached %s, last state %+v", runID, status, state)
	return runstate.RunState{}
}

func TestStartRunCompletes(t *testing.T) {
	runner := &fakeRunner{}
	s, _ := newTestSupervisor(t, 2, runner)

	runID, err := s.StartRun(testRequest(""))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if runID == "" {
		t.Fatal("empty run id")
	}

	state := waitForStatus(t, s, runID, runstate.StatusCompleted)
	if state.Result == nil || !state.Result.Success {
		t.Fatalf("result = %+v", state.Result)
	}
}

func TestStartRunVisibleImmediately(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	s, _ := newTestSupervisor(t, 1, runner)
	defer close(runner.block)

	runID, err := s.StartRun(testRequest(""))
	if err != nil {
		t.Fatal(err)
	}
	state, ok := s.GetStatus(runID)
	if !ok {
		t.Fatal("run not visible right after StartRun")
	}
	if state.Status != runstate.StatusRunning {
		t.Fatalf("status = %q", state.Status)
	}
	if _, ok := s.GetProgress(runID); !ok {
		t.Fatal("progress not available")
	}
}

func TestIdempotencyKeyDedupe(t *testing.T) {
	runner := &fakeRunner{}
	s, _ := newTestSupervisor(t, 2, runner)

	first, err := s.StartRun(testRequest("key-1"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.StartRun(testRequest("key-1"))
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("duplicate key started a second run: %s vs %s", first, second)
	}

	other, err := s.StartRun(testRequest("key-2"))
	if err != nil {
		t.Fatal(err)
	}
	if other == first {
		t.Fatal("distinct keys must start distinct runs")
	}
}

func TestConcurrencyBound(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	s, _ := newTestSupervisor(t, 2, runner)

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := s.StartRun(testRequest(""))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && runner.started.Load() < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if got := runner.started.Load(); got != 2 {
		t.Fatalf("started = %d, want 2 with the slots full", got)
	}

	close(runner.block)
	for _, id := range ids {
		waitForStatus(t, s, id, runstate.StatusCompleted)
	}
	if peak := runner.peak.Load(); peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestCancelRun(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	s, _ := newTestSupervisor(t, 1, runner)

	runID, err := s.StartRun(testRequest(""))
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && runner.started.Load() == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	if !s.Cancel(runID) {
		t.Fatal("cancel should find the live run")
	}
	close(runner.block)

	state := waitForStatus(t, s, runID, runstate.StatusFailed)
	if state.Result == nil || state.Result.Message != "cancelled" {
		t.Fatalf("result = %+v", state.Result)
	}

	if s.Cancel(runID) {
		t.Fatal("cancel after completion should report false")
	}
	if s.Cancel("unknown") {
		t.Fatal("cancel of unknown run should report false")
	}
}

func TestCloseRejectsNewRuns(t *testing.T) {
	runner := &fakeRunner{}
	store := runstate.NewMemoryStore()
	runner.store = store
	cfg := config.Default()
	s := New(&cfg, runner, store, logging.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.StartRun(testRequest("")); err != ErrClosed {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	// Close is idempotent.
	if err := s.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestCloseDrainsInFlight(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	s, _ := newTestSupervisor(t, 2, runner)

	runID, err := s.StartRun(testRequest(""))
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	closeErr := make(chan error, 1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		closeErr <- s.Close(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	close(runner.block)
	wg.Wait()
	if err := <-closeErr; err != nil {
		t.Fatalf("close: %v", err)
	}
	waitForStatus(t, s, runID, runstate.StatusCompleted)
}
