package orchestrator

import (
	"testing"
	"time"
)

func TestRetryPolicyDelayGrowth(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{6, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := searchRetry.Delay(tc.attempt); got != tc.want {
			t.Errorf("searchRetry.Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestRetryPolicyDelayCap(t *testing.T) {
	for attempt := 1; attempt <= 12; attempt++ {
		if got := insertRetry.Delay(attempt); got > insertRetry.MaxDelay {
			t.Fatalf("insertRetry.Delay(%d) = %v exceeds cap %v", attempt, got, insertRetry.MaxDelay)
		}
	}
	if got := insertRetry.Delay(1); got != 2*time.Second {
		t.Fatalf("insertRetry.Delay(1) = %v", got)
	}
}

func TestRetryPolicyZeroBase(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3}
	if got := policy.Delay(2); got != 0 {
		t.Fatalf("Delay = %v, want 0 for zero base", got)
	}
}

func TestCancelToken(t *testing.T) {
	token := NewCancelToken()
	if token.Cancelled() {
		t.Fatal("new token must be unset")
	}
	token.Cancel()
	token.Cancel()
	if !token.Cancelled() {
		t.Fatal("token must report cancelled")
	}

	var nilToken *CancelToken
	if nilToken.Cancelled() {
		t.Fatal("nil token reads as not cancelled")
	}
	nilToken.Cancel()
}
