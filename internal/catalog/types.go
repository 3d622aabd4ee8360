package catalog

import (
	"fmt"
	"strings"
)

// SourceRecord is the immutable song description a sync run starts from.
// ExternalID carries a globally unique recording identifier (ISRC) when the
// source catalog supplies one.
type SourceRecord struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	DurationMS int    `json:"duration_ms,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
}

// SearchQuery renders the record as a structured catalog search query.
func (r SourceRecord) SearchQuery() string {
	var builder strings.Builder
	builder.WriteString("track:")
	builder.WriteString(r.Title)
	builder.WriteString(" artist:")
	builder.WriteString(r.Artist)
	if r.Album != "" {
		builder.WriteString(" album:")
		builder.WriteString(r.Album)
	}
	return builder.String()
}

func (r SourceRecord) String() string {
	return fmt.Sprintf("'%s' by %s", r.Title, r.Artist)
}

// CandidateRecord is a single search hit from the external catalog.
// Popularity and ReleaseDate are carried through for disambiguation prompts
// but never enter the deterministic scoring formula.
type CandidateRecord struct {
	CatalogID   string `json:"catalog_id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	CatalogURI  string `json:"catalog_uri"`
	DurationMS  int    `json:"duration_ms"`
	Popularity  int    `json:"popularity"`
	ReleaseDate string `json:"release_date"`
	ExternalID  string `json:"external_id,omitempty"`
}

func (c CandidateRecord) String() string {
	return fmt.Sprintf("'%s' by %s on %s", c.Title, c.Artist, c.Album)
}
