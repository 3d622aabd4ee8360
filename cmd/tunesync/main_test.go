package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"tunesync/internal/config"
	"tunesync/internal/daemon"
	"tunesync/internal/logging"
	"tunesync/internal/orchestrator"
	"tunesync/internal/runstate"
	"tunesync/internal/supervisor"
)

// stubRunner finishes every run immediately with a canned outcome.
type stubRunner struct {
	store  *runstate.MemoryStore
	result runstate.RunResult
	status runstate.Status
}

func (r *stubRunner) Run(ctx context.Context, runID string, req runstate.RunRequest, token *orchestrator.CancelToken) runstate.RunResult {
	result := r.result
	state := runstate.RunState{
		RunID:       runID,
		Request:     req,
		CurrentStep: runstate.StepCompleted,
		Status:      r.status,
		Result:      &result,
	}
	if r.status == runstate.StatusFailed {
		state.Error = result.Message
	}
	r.store.Put(runID, state)
	return result
}

type cliTestEnv struct {
	cfg    *config.Config
	daemon *daemon.Daemon
	server string
	token  string
}

func setupCLITestEnv(t *testing.T, runner *stubRunner) *cliTestEnv {
	t.Helper()

	cfgVal := config.Default()
	cfgVal.Paths.DataDir = t.TempDir()
	cfgVal.Paths.LogDir = t.TempDir()
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Paths.APIToken = "cli-test-token"
	cfg := &cfgVal

	store := runstate.NewMemoryStore()
	runner.store = store
	sup := supervisor.New(cfg, runner, store, logging.NewNop())
	d, err := daemon.New(cfg, sup, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	return &cliTestEnv{
		cfg:    cfg,
		daemon: d,
		server: d.APIAddr(),
		token:  cfg.Paths.APIToken,
	}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--server", env.server, "--token", env.token}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("output %q missing %q", haystack, needle)
	}
}

func TestCLISyncWait(t *testing.T) {
	runner := &stubRunner{
		result: runstate.RunResult{
			Success:    true,
			Message:    "Matched 'Karma Police' by Radiohead via similarity",
			Confidence: 0.93,
		},
		status: runstate.StatusCompleted,
	}
	env := setupCLITestEnv(t, runner)

	out, err := runCLI(t, env, "sync", "Karma Police", "Radiohead",
		"--playlist", "37i9dQZF1DXcBWIGoYBM5M", "--wait")
	if err != nil {
		t.Fatalf("sync --wait: %v", err)
	}
	requireContains(t, out, "Run accepted:")
	requireContains(t, out, "Matched 'Karma Police' by Radiohead")
}

func TestCLISyncFailedRunIsAnError(t *testing.T) {
	runner := &stubRunner{
		result: runstate.RunResult{Success: false, Message: "insert failed: catalog unavailable"},
		status: runstate.StatusFailed,
	}
	env := setupCLITestEnv(t, runner)

	_, err := runCLI(t, env, "sync", "Karma Police", "Radiohead",
		"--playlist", "37i9dQZF1DXcBWIGoYBM5M", "--wait")
	if err == nil {
		t.Fatal("failed run must surface as a command error")
	}
	requireContains(t, err.Error(), "insert failed")
}

func TestCLISyncNoMatchCompletes(t *testing.T) {
	runner := &stubRunner{
		result: runstate.RunResult{Success: false, Message: "No tracks found for 'Karma Police'"},
		status: runstate.StatusCompleted,
	}
	env := setupCLITestEnv(t, runner)

	out, err := runCLI(t, env, "sync", "Karma Police", "Radiohead",
		"--playlist", "37i9dQZF1DXcBWIGoYBM5M", "--wait")
	if err != nil {
		t.Fatalf("no-match run must not be a command error: %v", err)
	}
	requireContains(t, out, "No match: No tracks found")
}

func TestCLIStatusRun(t *testing.T) {
	runner := &stubRunner{
		result: runstate.RunResult{Success: true, Message: "Matched", Confidence: 0.88},
		status: runstate.StatusCompleted,
	}
	env := setupCLITestEnv(t, runner)

	out, err := runCLI(t, env, "sync", "Karma Police", "Radiohead",
		"--playlist", "37i9dQZF1DXcBWIGoYBM5M", "--wait")
	if err != nil {
		t.Fatal(err)
	}
	runID := extractRunID(t, out)

	out, err = runCLI(t, env, "status", runID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, runID)
	requireContains(t, out, "completed")
	requireContains(t, out, "'Karma Police' by Radiohead")
}

func TestCLIStatusUnknownRun(t *testing.T) {
	env := setupCLITestEnv(t, &stubRunner{status: runstate.StatusCompleted})

	_, err := runCLI(t, env, "status", "does-not-exist")
	if err == nil {
		t.Fatal("unknown run must error")
	}
	requireContains(t, err.Error(), "not found")
}

func TestCLIDaemonStatus(t *testing.T) {
	env := setupCLITestEnv(t, &stubRunner{status: runstate.StatusCompleted})

	out, err := runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon")
	requireContains(t, out, "[OK]")
}

func extractRunID(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(line, "Run accepted: "); ok {
			return strings.TrimSpace(rest)
		}
	}
	t.Fatalf("no run id in output %q", out)
	return ""
}

func TestNormalizeServer(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"127.0.0.1:7613", "http://127.0.0.1:7613"},
		{":7613", "http://127.0.0.1:7613"},
		{"http://localhost:7613/", "http://localhost:7613"},
		{"https://sync.example.com", "https://sync.example.com"},
	}
	for _, tc := range cases {
		got, err := normalizeServer(tc.in)
		if err != nil {
			t.Fatalf("normalizeServer(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("normalizeServer(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if _, err := normalizeServer("  "); err == nil {
		t.Fatal("empty server must error")
	}
}

func TestFormatElapsed(t *testing.T) {
	if got := formatElapsed(12.34); got != "12.3s" {
		t.Fatalf("got %q", got)
	}
	if got := formatElapsed(65); got != "1m05s" {
		t.Fatalf("got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 40); got != "short" {
		t.Fatalf("got %q", got)
	}
	long := strings.Repeat("x", 50)
	got := truncate(long, 40)
	if len(got) != 40 || !strings.HasSuffix(got, "...") {
		t.Fatalf("got %q", got)
	}
}
