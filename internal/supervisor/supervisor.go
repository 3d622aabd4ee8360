package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tunesync/internal/config"
	"tunesync/internal/logging"
	"tunesync/internal/orchestrator"
	"tunesync/internal/runstate"
)

// ErrClosed is returned by StartRun after Close has begun.
var ErrClosed = errors.New("supervisor closed")

// Runner executes one run to completion. Satisfied by
// *orchestrator.Orchestrator.
type Runner interface {
	Run(ctx context.Context, runID string, req runstate.RunRequest, token *orchestrator.CancelToken) runstate.RunResult
}

// Supervisor launches orchestrator executions in the background, bounds
// their concurrency, and answers status and cancellation requests.
type Supervisor struct {
	runner Runner
	store  runstate.Store
	logger *slog.Logger
	sem    chan struct{}
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	tokens map[string]*orchestrator.CancelToken
	byKey  map[string]string
	closed bool
}

// New constructs a supervisor. maxConcurrent comes from configuration; a
// non-positive value means a single run at a time.
func New(cfg *config.Config, runner Runner, store runstate.Store, logger *slog.Logger) *Supervisor {
	maxConcurrent := cfg.Sync.MaxConcurrentRuns
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		runner: runner,
		store:  store,
		logger: logging.NewComponentLogger(logger, "supervisor"),
		sem:    make(chan struct{}, maxConcurrent),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		tokens: make(map[string]*orchestrator.CancelToken),
		byKey:  make(map[string]string),
	}
}

// StartRun begins an orchestrator execution asynchronously and returns its
// run ID. A duplicate request carrying an idempotency key already seen
// returns the original run's ID instead of starting a second run.
func (s *Supervisor) StartRun(req runstate.RunRequest) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	if key := req.IdempotencyKey; key != "" {
		if existing, ok := s.byKey[key]; ok {
			s.mu.Unlock()
			return existing, nil
		}
	}

	runID := uuid.NewString()
	token := orchestrator.NewCancelToken()
	s.tokens[runID] = token
	if req.IdempotencyKey != "" {
		s.byKey[req.IdempotencyKey] = runID
	}
	s.wg.Add(1)
	s.mu.Unlock()

	// Seed the store so status queries see the run while it waits for a
	// concurrency slot.
	s.store.Put(runID, runstate.RunState{
		RunID:       runID,
		Request:     req,
		CurrentStep: runstate.StepInitializing,
		StartedAt:   s.now(),
		Status:      runstate.StatusRunning,
	})

	go s.launch(runID, req, token)
	s.logger.Info("run accepted",
		logging.String(logging.FieldRunID, runID),
		logging.String("track", req.Source.String()))
	return runID, nil
}

func (s *Supervisor) launch(runID string, req runstate.RunRequest, token *orchestrator.CancelToken) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.tokens, runID)
		s.mu.Unlock()
	}()

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-s.ctx.Done():
		token.Cancel()
	}
	s.runner.Run(s.ctx, runID, req, token)
}

// GetStatus returns the current state of a run.
func (s *Supervisor) GetStatus(runID string) (runstate.RunState, bool) {
	return s.store.Get(runID)
}

// GetProgress returns a progress snapshot for a run.
func (s *Supervisor) GetProgress(runID string) (runstate.Progress, bool) {
	state, ok := s.store.Get(runID)
	if !ok {
		return runstate.Progress{}, false
	}
	return state.ProgressAt(s.now()), true
}

// Cancel requests cooperative cancellation of a run. It reports whether the
// run was known and still cancellable.
func (s *Supervisor) Cancel(runID string) bool {
	s.mu.Lock()
	token, ok := s.tokens[runID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	token.Cancel()
	s.logger.Info("cancellation requested", logging.String(logging.FieldRunID, runID))
	return true
}

// Close stops accepting runs and waits for in-flight runs to finish. If the
// context expires first, remaining runs are cancelled cooperatively and
// Close returns the context error.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for _, token := range s.tokens {
			token.Cancel()
		}
		s.mu.Unlock()
		s.cancel()
		<-done
		return ctx.Err()
	}
}
