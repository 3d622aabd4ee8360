package runstate

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()

	if _, ok := store.Get("missing"); ok {
		t.Fatal("unexpected hit for unknown run")
	}

	state := RunState{
		RunID:       "run-1",
		CurrentStep: StepSearching,
		StartedAt:   time.Now(),
		Status:      StatusRunning,
	}
	store.Put("run-1", state)

	got, ok := store.Get("run-1")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.CurrentStep != StepSearching || got.Status != StatusRunning {
		t.Fatalf("got %+v", got)
	}

	// Mutating the returned copy must not affect the stored value.
	got.CurrentStep = StepCompleted
	stored, _ := store.Get("run-1")
	if stored.CurrentStep != StepSearching {
		t.Fatal("store must hand out copies")
	}
}

func TestMemoryStoreConcurrentReaders(t *testing.T) {
	store := NewMemoryStore()
	store.Put("run-1", RunState{RunID: "run-1", Status: StatusRunning, CurrentStep: StepInitializing})

	steps := []Step{StepSearching, StepMatching, StepInserting, StepVerifying, StepCompleted}
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, step := range steps {
			store.Put("run-1", RunState{RunID: "run-1", Status: StatusRunning, CurrentStep: step})
		}
	}()
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if state, ok := store.Get("run-1"); ok {
					_ = state.CurrentStep.Ordinal()
				}
			}
		}()
	}
	wg.Wait()
}

func TestMemoryStoreSnapshot(t *testing.T) {
	store := NewMemoryStore()
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("run-%d", i)
		store.Put(id, RunState{RunID: id, Status: StatusRunning})
	}
	if got := store.Snapshot(); len(got) != 3 {
		t.Fatalf("snapshot has %d entries, want 3", len(got))
	}
}
