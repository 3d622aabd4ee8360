package disambig

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tunesync/internal/catalog"
	"tunesync/internal/config"
	"tunesync/internal/match"
	"tunesync/internal/services"
)

func testCandidates() []match.ScoredCandidate {
	return []match.ScoredCandidate{
		{
			Candidate: catalog.CandidateRecord{
				CatalogID:  "1a",
				Title:      "Karma Police",
				Artist:     "Radiohead",
				Album:      "OK Computer",
				CatalogURI: "spotify:track:1a",
			},
			CombinedScore: 0.82,
		},
		{
			Candidate: catalog.CandidateRecord{
				CatalogID:  "2b",
				Title:      "Karma Police - Live",
				Artist:     "Radiohead",
				Album:      "I Might Be Wrong",
				CatalogURI: "spotify:track:2b",
			},
			CombinedScore: 0.74,
		},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*LLMClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewLLMClient(config.LLM{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
	})
	return client, server
}

func completionBody(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestDisambiguateSelectsCandidate(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header = %q", got)
		}
		w.Write(completionBody(t, "URI: spotify:track:1a\nREASON: exact studio recording match"))
	})

	source := catalog.SourceRecord{Title: "Karma Police", Artist: "Radiohead"}
	decision, err := client.Disambiguate(context.Background(), source, testCandidates())
	if err != nil {
		t.Fatalf("Disambiguate: %v", err)
	}
	if !decision.IsMatch {
		t.Fatal("expected a match")
	}
	if decision.Method != match.MethodDisambiguation {
		t.Fatalf("method = %q", decision.Method)
	}
	if decision.Matched.CatalogURI != "spotify:track:1a" {
		t.Fatalf("matched %q", decision.Matched.CatalogURI)
	}
	if decision.Confidence != 0.82 {
		t.Fatalf("confidence = %v, want the candidate's score", decision.Confidence)
	}
	if decision.Reasoning != "exact studio recording match" {
		t.Fatalf("reasoning = %q", decision.Reasoning)
	}
}

func TestDisambiguateNone(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionBody(t, "URI: none\nREASON: all candidates are covers"))
	})

	decision, err := client.Disambiguate(context.Background(), catalog.SourceRecord{Title: "X", Artist: "Y"}, testCandidates())
	if err != nil {
		t.Fatalf("Disambiguate: %v", err)
	}
	if decision.IsMatch {
		t.Fatal("expected no match")
	}
	if decision.Reasoning != "all candidates are covers" {
		t.Fatalf("reasoning = %q", decision.Reasoning)
	}
}

func TestDisambiguateUnparseableResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionBody(t, "I think the first one looks right."))
	})

	decision, err := client.Disambiguate(context.Background(), catalog.SourceRecord{Title: "X", Artist: "Y"}, testCandidates())
	if err != nil {
		t.Fatalf("unparseable responses must not error: %v", err)
	}
	if decision.IsMatch {
		t.Fatal("expected no match")
	}
	if !strings.Contains(decision.Reasoning, "unparseable") {
		t.Fatalf("reasoning = %q", decision.Reasoning)
	}
}

func TestDisambiguateUnknownURI(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionBody(t, "URI: spotify:track:doesnotexist\nREASON: made up"))
	})

	decision, err := client.Disambiguate(context.Background(), catalog.SourceRecord{Title: "X", Artist: "Y"}, testCandidates())
	if err != nil {
		t.Fatalf("unknown uri must not error: %v", err)
	}
	if decision.IsMatch {
		t.Fatal("expected no match")
	}
	if !strings.Contains(decision.Reasoning, "unknown uri") {
		t.Fatalf("reasoning = %q", decision.Reasoning)
	}
}

func TestDisambiguateRateLimited(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Disambiguate(context.Background(), catalog.SourceRecord{Title: "X", Artist: "Y"}, testCandidates())
	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("err = %v, want rate-limited", err)
	}
	retryAfter, ok := services.RetryAfter(err)
	if !ok || retryAfter != 7*time.Second {
		t.Fatalf("retry-after = %v ok=%v, want 7s", retryAfter, ok)
	}
}

func TestDisambiguateAuthFailure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Disambiguate(context.Background(), catalog.SourceRecord{Title: "X", Artist: "Y"}, testCandidates())
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("err = %v, want auth", err)
	}
	if services.Retryable(err) {
		t.Fatal("auth failures must not be retryable")
	}
}

func TestDisambiguateServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Disambiguate(context.Background(), catalog.SourceRecord{Title: "X", Artist: "Y"}, testCandidates())
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestDisambiguateMissingAPIKey(t *testing.T) {
	client := NewLLMClient(config.LLM{BaseURL: "http://127.0.0.1:0", Model: "m"})
	_, err := client.Disambiguate(context.Background(), catalog.SourceRecord{Title: "X", Artist: "Y"}, testCandidates())
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("err = %v, want auth", err)
	}
}

func TestDisambiguateCandidateCap(t *testing.T) {
	var prompt string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
		}
		for _, m := range req.Messages {
			if m.Role == "user" {
				prompt = m.Content
			}
		}
		w.Write(completionBody(t, "URI: none\nREASON: n/a"))
	})

	candidates := make([]match.ScoredCandidate, 8)
	for i := range candidates {
		candidates[i] = match.ScoredCandidate{
			Candidate: catalog.CandidateRecord{
				Title:      "Track",
				Artist:     "Artist",
				CatalogURI: "spotify:track:" + string(rune('a'+i)),
			},
		}
	}
	if _, err := client.Disambiguate(context.Background(), catalog.SourceRecord{Title: "X", Artist: "Y"}, candidates); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(prompt, "spotify:track:f") {
		t.Fatal("prompt should not include candidates beyond the cap")
	}
	if !strings.Contains(prompt, "spotify:track:e") {
		t.Fatal("prompt should include the fifth candidate")
	}
}

func TestParseSelection(t *testing.T) {
	cases := []struct {
		name       string
		content    string
		wantURI    string
		wantReason string
		wantOK     bool
	}{
		{"canonical", "URI: spotify:track:x\nREASON: because", "spotify:track:x", "because", true},
		{"lowercase labels", "uri: spotify:track:x\nreason: fine", "spotify:track:x", "fine", true},
		{"none", "URI: none\nREASON: nothing fits", "", "nothing fits", true},
		{"extra whitespace", "  URI:   spotify:track:x  \n  REASON:  padded  ", "spotify:track:x", "padded", true},
		{"missing uri line", "REASON: confused", "", "", false},
		{"freeform", "the second candidate", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uri, reason, ok := parseSelection(tc.content)
			if uri != tc.wantURI || reason != tc.wantReason || ok != tc.wantOK {
				t.Fatalf("parseSelection(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tc.content, uri, reason, ok, tc.wantURI, tc.wantReason, tc.wantOK)
			}
		})
	}
}
