package catalog

import "context"

// Client describes the catalog operations the orchestrator consumes.
//
// Implementations perform single attempts only; retry policy belongs to the
// caller. Errors must be tagged with the services sentinel markers so the
// caller can classify them. Insert is not idempotent at the catalog layer
// (repeated calls duplicate playlist entries), which is why callers check
// Exists first.
type Client interface {
	// Search returns up to limit candidates for the structured query.
	// Zero results is a valid outcome, not an error.
	Search(ctx context.Context, query string, limit int) ([]CandidateRecord, error)
	// Insert adds the track to the playlist and returns the playlist
	// snapshot identifier after the mutation.
	Insert(ctx context.Context, catalogURI, playlistID string) (string, error)
	// Exists reports whether the track is already a member of the playlist.
	Exists(ctx context.Context, catalogURI, playlistID string) (bool, error)
}
