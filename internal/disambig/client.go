package disambig

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tunesync/internal/catalog"
	"tunesync/internal/config"
	"tunesync/internal/match"
	"tunesync/internal/services"
)

const defaultHTTPTimeout = 15 * time.Second

// MaxCandidates caps how many scored candidates are presented to the model.
const MaxCandidates = 5

// Client selects a candidate when similarity scoring alone could not decide.
// Implementations make a single attempt; an undecidable response is a
// no-match decision, not an error.
type Client interface {
	Disambiguate(ctx context.Context, source catalog.SourceRecord, candidates []match.ScoredCandidate) (match.Decision, error)
}

// LLMClient implements Client against an OpenAI-compatible chat completions
// endpoint.
type LLMClient struct {
	cfg        config.LLM
	httpClient *http.Client
}

var _ Client = (*LLMClient)(nil)

// Option customizes the client.
type Option func(*LLMClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *LLMClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewLLMClient constructs a disambiguation client from configuration.
func NewLLMClient(cfg config.LLM, opts ...Option) *LLMClient {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &LLMClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Disambiguate sends the source record and up to MaxCandidates scored
// candidates to the model and maps its selection back onto a decision.
//
// An unparseable response or a selection that names no known candidate
// resolves to a no-match decision with the failure recorded in Reasoning.
// Only transport, rate-limit, and auth failures surface as errors.
func (c *LLMClient) Disambiguate(ctx context.Context, source catalog.SourceRecord, candidates []match.ScoredCandidate) (match.Decision, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return match.Decision{}, services.Wrap(services.ErrAuth, "disambiguate", "request", "api key required", nil)
	}
	if len(candidates) == 0 {
		return match.Decision{Method: match.MethodNone, Reasoning: "no candidates to disambiguate"}, nil
	}
	if len(candidates) > MaxCandidates {
		candidates = candidates[:MaxCandidates]
	}

	content, err := c.complete(ctx, systemPrompt, userPrompt(source, candidates))
	if err != nil {
		return match.Decision{}, err
	}

	uri, reason, ok := parseSelection(content)
	if !ok {
		return match.Decision{
			Method:    match.MethodNone,
			Reasoning: "unparseable model response: " + snippet(content),
			Scored:    candidates,
		}, nil
	}
	if uri == "" {
		return match.Decision{
			Method:    match.MethodNone,
			Reasoning: reason,
			Scored:    candidates,
		}, nil
	}

	for _, entry := range candidates {
		if entry.Candidate.CatalogURI == uri {
			matched := entry.Candidate
			return match.Decision{
				IsMatch:    true,
				Confidence: entry.CombinedScore,
				Matched:    &matched,
				Method:     match.MethodDisambiguation,
				Reasoning:  reason,
				Scored:     candidates,
			}, nil
		}
	}
	return match.Decision{
		Method:    match.MethodNone,
		Reasoning: fmt.Sprintf("model selected unknown uri %q", uri),
		Scored:    candidates,
	}, nil
}

func (c *LLMClient) complete(ctx context.Context, system, user string) (string, error) {
	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("disambiguate: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("disambiguate: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
		req.Header.Set("Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", services.Wrap(services.ErrTransient, "disambiguate", "request", "http error", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "disambiguate", "request", "read body", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", services.Wrap(services.ErrAuth, "disambiguate", "request",
			fmt.Sprintf("http %d", resp.StatusCode), errors.New(snippet(string(body))))
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", services.WrapRateLimited("disambiguate", "request", retryAfter,
			fmt.Errorf("http %d: %s", resp.StatusCode, snippet(string(body))))
	case resp.StatusCode >= http.StatusMultipleChoices:
		return "", services.Wrap(services.ErrTransient, "disambiguate", "request",
			fmt.Sprintf("http %d", resp.StatusCode), errors.New(snippet(string(body))))
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", services.Wrap(services.ErrTransient, "disambiguate", "request", "decode response", err)
	}
	if completion.Error != nil {
		return "", services.Wrap(services.ErrTransient, "disambiguate", "request",
			"api error", errors.New(strings.TrimSpace(completion.Error.Message)))
	}
	if len(completion.Choices) == 0 {
		return "", services.Wrap(services.ErrTransient, "disambiguate", "request", "empty choices", nil)
	}
	return completion.Choices[0].Message.Content, nil
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

func snippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	if clean == "" {
		return "<empty>"
	}
	return clean
}
