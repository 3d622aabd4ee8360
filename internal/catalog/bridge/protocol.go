package bridge

import (
	"time"

	"tunesync/internal/catalog"
	"tunesync/internal/services"
)

// Error code strings the bridge process reports alongside failed operations.
const (
	codeRateLimited      = "rate_limited"
	codeAuth             = "auth"
	codeInvalidRequest   = "invalid_request"
	codeNotFound         = "not_found"
	codePermissionDenied = "permission_denied"
)

// CallError is the structured failure payload carried inside bridge responses.
type CallError struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// PingRequest verifies the bridge is alive and authenticated.
type PingRequest struct{}

// PingResponse reports bridge readiness.
type PingResponse struct {
	OK    bool       `json:"ok"`
	Error *CallError `json:"error,omitempty"`
}

// SearchRequest asks the bridge for catalog search results.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// SearchResponse contains search hits or a structured failure.
type SearchResponse struct {
	Tracks []catalog.CandidateRecord `json:"tracks"`
	Error  *CallError                `json:"error,omitempty"`
}

// InsertRequest asks the bridge to add a track to a playlist.
type InsertRequest struct {
	CatalogURI string `json:"catalog_uri"`
	PlaylistID string `json:"playlist_id"`
}

// InsertResponse reports the playlist snapshot after the mutation.
type InsertResponse struct {
	SnapshotID string     `json:"snapshot_id"`
	Error      *CallError `json:"error,omitempty"`
}

// ExistsRequest asks the bridge whether a track is a playlist member.
type ExistsRequest struct {
	CatalogURI string `json:"catalog_uri"`
	PlaylistID string `json:"playlist_id"`
}

// ExistsResponse reports membership or a structured failure.
type ExistsResponse struct {
	Found bool       `json:"found"`
	Error *CallError `json:"error,omitempty"`
}

// classify maps a bridge error payload onto the services taxonomy.
func classify(operation string, callErr *CallError) error {
	if callErr == nil {
		return nil
	}
	switch callErr.Code {
	case codeRateLimited:
		retryAfter := time.Duration(callErr.RetryAfterSeconds) * time.Second
		return services.WrapRateLimited("bridge", operation, retryAfter, nil)
	case codeAuth:
		return services.Wrap(services.ErrAuth, "bridge", operation, callErr.Message, nil)
	case codeInvalidRequest:
		return services.Wrap(services.ErrInvalidRequest, "bridge", operation, callErr.Message, nil)
	case codeNotFound:
		return services.Wrap(services.ErrNotFound, "bridge", operation, callErr.Message, nil)
	case codePermissionDenied:
		return services.Wrap(services.ErrPermission, "bridge", operation, callErr.Message, nil)
	default:
		return services.Wrap(services.ErrTransient, "bridge", operation, callErr.Message, nil)
	}
}
