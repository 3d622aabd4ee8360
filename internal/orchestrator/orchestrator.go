package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tunesync/internal/catalog"
	"tunesync/internal/config"
	"tunesync/internal/disambig"
	"tunesync/internal/logging"
	"tunesync/internal/match"
	"tunesync/internal/runstate"
	"tunesync/internal/services"
)

// History receives state snapshots for durable run records. Failures are
// logged, never fatal to the run.
type History interface {
	Record(ctx context.Context, state runstate.RunState) error
}

// Orchestrator executes sync runs. One instance is shared by all runs; all
// per-run state lives in the store keyed by run ID.
type Orchestrator struct {
	catalog  catalog.Client
	disambig disambig.Client
	store    runstate.Store
	history  History
	logger   *slog.Logger

	searchLimit int
	stepTimeout time.Duration
	runDeadline time.Duration

	now     func() time.Time
	sleeper func(time.Duration)
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithDisambiguator installs the disambiguation client. Without one, runs
// behave as if disambiguation was disallowed.
func WithDisambiguator(client disambig.Client) Option {
	return func(o *Orchestrator) {
		o.disambig = client
	}
}

// WithHistory installs a durable run record sink.
func WithHistory(history History) Option {
	return func(o *Orchestrator) {
		o.history = history
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(o *Orchestrator) {
		o.sleeper = sleeper
	}
}

// New constructs an orchestrator from configuration and collaborators.
func New(cfg *config.Config, catalogClient catalog.Client, store runstate.Store, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		catalog:     catalogClient,
		store:       store,
		logger:      logging.NewComponentLogger(logger, "orchestrator"),
		searchLimit: cfg.Sync.SearchLimit,
		stepTimeout: time.Duration(cfg.Sync.StepTimeoutSeconds) * time.Second,
		runDeadline: time.Duration(cfg.Sync.RunDeadlineSeconds) * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the workflow to completion and returns its terminal result.
// It never returns an error: faults become failed states with populated
// results. The token is honored at step boundaries only.
func (o *Orchestrator) Run(ctx context.Context, runID string, req runstate.RunRequest, token *CancelToken) runstate.RunResult {
	ctx = services.WithRunID(ctx, runID)
	if o.runDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.runDeadline)
		defer cancel()
	}

	state := runstate.RunState{
		RunID:       runID,
		Request:     req,
		CurrentStep: runstate.StepInitializing,
		StartedAt:   o.now(),
		Status:      runstate.StatusRunning,
	}
	o.update(ctx, &state)

	logger := logging.WithContext(ctx, o.logger)
	logger.Info("run started",
		logging.String("track", req.Source.String()),
		logging.String("playlist_id", req.TargetPlaylistID))

	result := o.execute(ctx, &state, token)

	result.ElapsedSeconds = o.now().Sub(state.StartedAt).Seconds()
	state.FinishedAt = o.now()
	state.Result = &result
	if state.Status != runstate.StatusFailed {
		state.Status = runstate.StatusCompleted
		state.CurrentStep = runstate.StepCompleted
	}
	o.update(ctx, &state)

	logger.Info("run finished",
		logging.Bool("success", result.Success),
		logging.String("message", result.Message),
		logging.Float64("elapsed_seconds", result.ElapsedSeconds))
	return result
}

// execute walks the step sequence. It mutates state in place and marks
// Status failed for faults; expected negative outcomes leave Status alone
// so the caller records them as completed runs with success=false.
func (o *Orchestrator) execute(ctx context.Context, state *runstate.RunState, token *CancelToken) runstate.RunResult {
	req := state.Request
	logger := logging.WithContext(ctx, o.logger)

	// searching
	if result, stop := o.checkBoundary(ctx, state, token); stop {
		return result
	}
	o.setStep(ctx, state, runstate.StepSearching)
	var candidates []catalog.CandidateRecord
	err := o.withRetry(ctx, searchRetry, "search", func(attemptCtx context.Context) error {
		found, searchErr := o.catalog.Search(attemptCtx, req.Source.SearchQuery(), o.searchLimit)
		if searchErr != nil {
			return searchErr
		}
		candidates = found
		return nil
	})
	if err != nil {
		return o.fail(ctx, state, "search", err)
	}
	state.CandidatesFound = len(candidates)
	o.update(ctx, state)
	if len(candidates) == 0 {
		return runstate.RunResult{
			Success: false,
			Message: fmt.Sprintf("No tracks found for '%s'", req.Source.Title),
			Method:  match.MethodNone,
		}
	}

	// matching
	if result, stop := o.checkBoundary(ctx, state, token); stop {
		return result
	}
	o.setStep(ctx, state, runstate.StepMatching)
	decision := match.Score(req.Source, candidates, req.MatchThreshold)
	logger.Info("candidates scored",
		logging.Int("candidates", len(candidates)),
		logging.Float64("best_score", decision.Confidence),
		logging.Bool("matched", decision.IsMatch))

	// disambiguating
	if !decision.IsMatch && req.AllowDisambiguation && o.disambig != nil {
		if result, stop := o.checkBoundary(ctx, state, token); stop {
			return result
		}
		o.setStep(ctx, state, runstate.StepDisambiguating)
		var resolved match.Decision
		err = o.withRetry(ctx, aiRetry, "disambiguation", func(attemptCtx context.Context) error {
			d, dErr := o.disambig.Disambiguate(attemptCtx, req.Source, decision.Top(disambig.MaxCandidates))
			if dErr != nil {
				return dErr
			}
			resolved = d
			return nil
		})
		if err != nil {
			return o.fail(ctx, state, "disambiguation", err)
		}
		if resolved.IsMatch {
			decision = resolved
		} else if resolved.Reasoning != "" {
			decision.Reasoning = resolved.Reasoning
		}
	}

	if !decision.IsMatch {
		return runstate.RunResult{
			Success:    false,
			Message:    fmt.Sprintf("No match above threshold %g (best: %.2f)", req.MatchThreshold, decision.Confidence),
			Confidence: decision.Confidence,
			Method:     decision.Method,
		}
	}
	matched := *decision.Matched

	// inserting
	if result, stop := o.checkBoundary(ctx, state, token); stop {
		return result
	}
	o.setStep(ctx, state, runstate.StepInserting)
	alreadyPresent := false
	err = o.withRetry(ctx, insertRetry, "insert", func(attemptCtx context.Context) error {
		exists, existsErr := o.catalog.Exists(attemptCtx, matched.CatalogURI, req.TargetPlaylistID)
		if existsErr != nil {
			return existsErr
		}
		if exists {
			alreadyPresent = true
			return nil
		}
		_, insertErr := o.catalog.Insert(attemptCtx, matched.CatalogURI, req.TargetPlaylistID)
		return insertErr
	})
	if err != nil {
		return o.fail(ctx, state, "insert", err)
	}
	if alreadyPresent {
		logger.Info("track already in playlist, insert skipped",
			logging.String("catalog_uri", matched.CatalogURI))
	}

	// verifying: a negative or failed check is a warning, not a failure;
	// the insert outcome above is authoritative.
	if result, stop := o.checkBoundary(ctx, state, token); stop {
		return result
	}
	o.setStep(ctx, state, runstate.StepVerifying)
	verifyCtx := ctx
	cancel := func() {}
	if o.stepTimeout > 0 {
		verifyCtx, cancel = context.WithTimeout(ctx, o.stepTimeout)
	}
	verified, verifyErr := o.catalog.Exists(verifyCtx, matched.CatalogURI, req.TargetPlaylistID)
	cancel()
	switch {
	case verifyErr != nil:
		logger.Warn("verification check failed", logging.Error(verifyErr))
	case !verified:
		logger.Warn("verification did not observe the inserted track",
			logging.String("catalog_uri", matched.CatalogURI))
	}

	message := fmt.Sprintf("Matched %s via %s", matched.String(), decision.Method)
	if alreadyPresent {
		message += " (already present)"
	}
	return runstate.RunResult{
		Success:          true,
		Message:          message,
		MatchedCatalogID: matched.CatalogID,
		MatchedURI:       matched.CatalogURI,
		Confidence:       decision.Confidence,
		Method:           decision.Method,
	}
}

// checkBoundary enforces cancellation and the run deadline between steps.
func (o *Orchestrator) checkBoundary(ctx context.Context, state *runstate.RunState, token *CancelToken) (runstate.RunResult, bool) {
	if token.Cancelled() {
		state.Status = runstate.StatusFailed
		state.Error = "cancelled"
		return runstate.RunResult{Success: false, Message: "cancelled"}, true
	}
	if err := ctx.Err(); err != nil {
		state.Status = runstate.StatusFailed
		message := "cancelled"
		if errors.Is(err, context.DeadlineExceeded) {
			message = fmt.Sprintf("run deadline exceeded after %s", o.runDeadline)
		}
		state.Error = message
		return runstate.RunResult{Success: false, Message: message}, true
	}
	return runstate.RunResult{}, false
}

// fail marks the run failed for a fault that escaped a step's retry
// envelope.
func (o *Orchestrator) fail(ctx context.Context, state *runstate.RunState, step string, err error) runstate.RunResult {
	message := fmt.Sprintf("%s failed: %v", step, err)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		message = fmt.Sprintf("run deadline exceeded after %s", o.runDeadline)
	}
	state.Status = runstate.StatusFailed
	state.Error = message
	logging.WithContext(ctx, o.logger).Error("run failed",
		logging.String("failed_step", step),
		logging.Error(err))
	return runstate.RunResult{Success: false, Message: message}
}

func (o *Orchestrator) setStep(ctx context.Context, state *runstate.RunState, step runstate.Step) {
	state.CurrentStep = step
	o.update(ctx, state)
}

func (o *Orchestrator) update(ctx context.Context, state *runstate.RunState) {
	o.store.Put(state.RunID, *state)
	if o.history != nil {
		if err := o.history.Record(context.WithoutCancel(ctx), *state); err != nil {
			o.logger.Warn("record run history", logging.Error(err))
		}
	}
}
