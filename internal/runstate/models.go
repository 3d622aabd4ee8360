package runstate

import (
	"time"

	"tunesync/internal/catalog"
	"tunesync/internal/match"
)

// Step is the orchestrator's current position in the fixed workflow sequence.
type Step string

const (
	StepInitializing   Step = "initializing"
	StepSearching      Step = "searching"
	StepMatching       Step = "matching"
	StepDisambiguating Step = "disambiguating"
	StepInserting      Step = "inserting"
	StepVerifying      Step = "verifying"
	StepCompleted      Step = "completed"
)

// StepsTotal is the number of progress slots a run moves through.
const StepsTotal = 4

// stepOrdinals maps each step to its slot in the progression. Disambiguation
// shares matching's slot and verifying shares inserting's, so progress never
// moves backwards on either optional path.
var stepOrdinals = map[Step]int{
	StepInitializing:   0,
	StepSearching:      1,
	StepMatching:       2,
	StepDisambiguating: 2,
	StepInserting:      3,
	StepVerifying:      3,
	StepCompleted:      StepsTotal,
}

// Ordinal returns the progress slot for a step. Unknown steps count as zero.
func (s Step) Ordinal() int {
	return stepOrdinals[s]
}

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// RunRequest describes one sync request. It is validated at the process
// boundary; the orchestrator assumes a well-formed request.
type RunRequest struct {
	Source              catalog.SourceRecord `json:"source"`
	TargetPlaylistID    string               `json:"target_playlist_id"`
	RequesterID         string               `json:"requester_id,omitempty"`
	MatchThreshold      float64              `json:"match_threshold"`
	AllowDisambiguation bool                 `json:"allow_disambiguation"`
	IdempotencyKey      string               `json:"idempotency_key,omitempty"`
}

// RunResult is the immutable terminal outcome of a run.
type RunResult struct {
	Success          bool         `json:"success"`
	Message          string       `json:"message"`
	MatchedCatalogID string       `json:"matched_catalog_id,omitempty"`
	MatchedURI       string       `json:"matched_catalog_uri,omitempty"`
	Confidence       float64      `json:"confidence"`
	ElapsedSeconds   float64      `json:"elapsed_seconds"`
	Method           match.Method `json:"method,omitempty"`
}

// RunState is the mutable per-run record. While the run executes it is
// written only by that run's orchestrator and read concurrently by status
// queries; once Status is terminal it never changes again.
type RunState struct {
	RunID           string     `json:"run_id"`
	Request         RunRequest `json:"request"`
	CurrentStep     Step       `json:"current_step"`
	CandidatesFound int        `json:"candidates_found"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      time.Time  `json:"finished_at,omitzero"`
	Status          Status     `json:"status"`
	Result          *RunResult `json:"result,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// Progress is the point-in-time view returned by progress queries.
type Progress struct {
	CurrentStep     Step    `json:"current_step"`
	StepsCompleted  int     `json:"steps_completed"`
	StepsTotal      int     `json:"steps_total"`
	CandidatesFound int     `json:"candidates_found"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
}

// ProgressAt derives a progress snapshot from the state as of now.
func (s RunState) ProgressAt(now time.Time) Progress {
	elapsed := now.Sub(s.StartedAt).Seconds()
	if !s.FinishedAt.IsZero() {
		elapsed = s.FinishedAt.Sub(s.StartedAt).Seconds()
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return Progress{
		CurrentStep:     s.CurrentStep,
		StepsCompleted:  s.CurrentStep.Ordinal(),
		StepsTotal:      StepsTotal,
		CandidatesFound: s.CandidatesFound,
		ElapsedSeconds:  elapsed,
	}
}
