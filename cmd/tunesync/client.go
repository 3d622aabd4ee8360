package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tunesync/internal/daemon"
)

// errRunNotFound marks a 404 from the run status endpoint so callers can
// distinguish "unknown run" from transport failures.
var errRunNotFound = errors.New("run not found")

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(server, token string) (*apiClient, error) {
	base, err := normalizeServer(server)
	if err != nil {
		return nil, err
	}
	return &apiClient{
		baseURL: base,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func normalizeServer(server string) (string, error) {
	server = strings.TrimSpace(server)
	if server == "" {
		return "", errors.New("no daemon address configured; set paths.api_bind or pass --server")
	}
	if !strings.Contains(server, "://") {
		if strings.HasPrefix(server, ":") {
			server = "127.0.0.1" + server
		}
		server = "http://" + server
	}
	return strings.TrimRight(server, "/"), nil
}

func (c *apiClient) Submit(ctx context.Context, req daemon.SyncRequest) (daemon.SyncAccepted, error) {
	var accepted daemon.SyncAccepted
	err := c.do(ctx, http.MethodPost, "/api/v1/sync", req, http.StatusAccepted, &accepted)
	return accepted, err
}

func (c *apiClient) RunStatus(ctx context.Context, runID string) (daemon.SyncStatus, error) {
	var status daemon.SyncStatus
	err := c.do(ctx, http.MethodGet, "/api/v1/sync/"+runID, nil, http.StatusOK, &status)
	return status, err
}

func (c *apiClient) Cancel(ctx context.Context, runID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/sync/"+runID+"/cancel", nil, http.StatusAccepted, nil)
}

func (c *apiClient) DaemonStatus(ctx context.Context) (daemon.Status, error) {
	var status daemon.Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, http.StatusOK, &status)
	return status, err
}

func (c *apiClient) do(ctx context.Context, method, path string, payload any, wantStatus int, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return wrapConnectError(err, c.baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		if resp.StatusCode == http.StatusNotFound {
			return errRunNotFound
		}
		return fmt.Errorf("daemon responded %d: %s", resp.StatusCode, apiErrorMessage(resp.Body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiErrorMessage(body io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 4096)).Decode(&payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return "unknown error"
}

func wrapConnectError(err error, base string) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("connect to daemon at %s: %w (is tunesyncd running?)", base, urlErr.Err)
	}
	return fmt.Errorf("connect to daemon at %s: %w", base, err)
}
