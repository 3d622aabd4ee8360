package daemon

import (
	"fmt"
	"regexp"
	"strings"

	"tunesync/internal/catalog"
	"tunesync/internal/config"
	"tunesync/internal/runstate"
)

// playlistIDPattern matches the 22-character base62 playlist identifiers
// the catalog issues.
var playlistIDPattern = regexp.MustCompile(`^[a-zA-Z0-9]{22}$`)

// SyncRequest is the boundary representation of a sync submission. Optional
// fields fall back to configured defaults.
type SyncRequest struct {
	Title               string   `json:"title"`
	Artist              string   `json:"artist"`
	Album               string   `json:"album,omitempty"`
	DurationMS          int      `json:"duration_ms,omitempty"`
	ISRC                string   `json:"isrc,omitempty"`
	PlaylistID          string   `json:"playlist_id"`
	RequesterID         string   `json:"requester_id,omitempty"`
	MatchThreshold      *float64 `json:"match_threshold,omitempty"`
	AllowDisambiguation *bool    `json:"allow_disambiguation,omitempty"`
	IdempotencyKey      string   `json:"idempotency_key,omitempty"`
}

// buildRunRequest validates the submission and produces the internal run
// request. Invalid submissions never reach the orchestrator.
func buildRunRequest(req SyncRequest, cfg *config.Config) (runstate.RunRequest, error) {
	title := strings.TrimSpace(req.Title)
	artist := strings.TrimSpace(req.Artist)
	if title == "" {
		return runstate.RunRequest{}, fmt.Errorf("title is required")
	}
	if artist == "" {
		return runstate.RunRequest{}, fmt.Errorf("artist is required")
	}
	playlistID := strings.TrimSpace(req.PlaylistID)
	if !playlistIDPattern.MatchString(playlistID) {
		return runstate.RunRequest{}, fmt.Errorf("playlist_id must be a 22-character alphanumeric identifier")
	}

	threshold := cfg.Sync.MatchThreshold
	if req.MatchThreshold != nil {
		threshold = *req.MatchThreshold
		if threshold < 0 || threshold > 1 {
			return runstate.RunRequest{}, fmt.Errorf("match_threshold must be between 0 and 1")
		}
	}
	allowDisambiguation := cfg.Sync.Disambiguation
	if req.AllowDisambiguation != nil {
		allowDisambiguation = *req.AllowDisambiguation
	}
	if req.DurationMS < 0 {
		return runstate.RunRequest{}, fmt.Errorf("duration_ms must not be negative")
	}

	return runstate.RunRequest{
		Source: catalog.SourceRecord{
			Title:      title,
			Artist:     artist,
			Album:      strings.TrimSpace(req.Album),
			DurationMS: req.DurationMS,
			ExternalID: strings.TrimSpace(req.ISRC),
		},
		TargetPlaylistID:    playlistID,
		RequesterID:         strings.TrimSpace(req.RequesterID),
		MatchThreshold:      threshold,
		AllowDisambiguation: allowDisambiguation,
		IdempotencyKey:      strings.TrimSpace(req.IdempotencyKey),
	}, nil
}
