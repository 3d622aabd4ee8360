package services

import (
	"context"
	"testing"
)

func TestRunIDContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := RunIDFromContext(ctx); ok {
		t.Fatal("empty context has no run id")
	}
	ctx = WithRunID(ctx, "run-1")
	id, ok := RunIDFromContext(ctx)
	if !ok || id != "run-1" {
		t.Fatalf("run id = %q ok=%v", id, ok)
	}
}

func TestStepContext(t *testing.T) {
	ctx := WithStep(context.Background(), "searching")
	step, ok := StepFromContext(ctx)
	if !ok || step != "searching" {
		t.Fatalf("step = %q ok=%v", step, ok)
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-9")
	id, ok := RequestIDFromContext(ctx)
	if !ok || id != "req-9" {
		t.Fatalf("request id = %q ok=%v", id, ok)
	}
}
