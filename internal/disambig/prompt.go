package disambig

import (
	"fmt"
	"strings"

	"tunesync/internal/catalog"
	"tunesync/internal/match"
)

const systemPrompt = `You match a source music track against catalog search results.
Pick the candidate that is the same recording as the source track, or decide that none of them is.
Prefer original studio recordings over live versions, remixes, covers, and karaoke tracks unless the source clearly names one.

Respond with exactly two lines and nothing else:
URI: <the catalog URI of the chosen candidate, or the word none>
REASON: <one short sentence explaining the choice>`

// userPrompt renders the source track and scored candidates for the model.
func userPrompt(source catalog.SourceRecord, candidates []match.ScoredCandidate) string {
	var b strings.Builder
	b.WriteString("Source track:\n")
	fmt.Fprintf(&b, "  title: %s\n", source.Title)
	fmt.Fprintf(&b, "  artist: %s\n", source.Artist)
	if source.Album != "" {
		fmt.Fprintf(&b, "  album: %s\n", source.Album)
	}
	if source.DurationMS > 0 {
		fmt.Fprintf(&b, "  duration_ms: %d\n", source.DurationMS)
	}
	b.WriteString("\nCandidates:\n")
	for i, entry := range candidates {
		c := entry.Candidate
		fmt.Fprintf(&b, "%d. uri=%s score=%.3f\n", i+1, c.CatalogURI, entry.CombinedScore)
		fmt.Fprintf(&b, "   title: %s\n", c.Title)
		fmt.Fprintf(&b, "   artist: %s\n", c.Artist)
		if c.Album != "" {
			fmt.Fprintf(&b, "   album: %s\n", c.Album)
		}
		if c.DurationMS > 0 {
			fmt.Fprintf(&b, "   duration_ms: %d\n", c.DurationMS)
		}
		if c.ReleaseDate != "" {
			fmt.Fprintf(&b, "   release_date: %s\n", c.ReleaseDate)
		}
	}
	return b.String()
}

// parseSelection extracts the URI and REASON lines from a model response.
// A URI of "none" (any case) yields an empty uri with ok=true. A response
// with no URI line is unparseable.
func parseSelection(content string) (uri, reason string, ok bool) {
	foundURI := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "URI:"):
			uri = strings.TrimSpace(line[len("URI:"):])
			foundURI = true
		case strings.HasPrefix(upper, "REASON:"):
			reason = strings.TrimSpace(line[len("REASON:"):])
		}
	}
	if !foundURI {
		return "", "", false
	}
	if strings.EqualFold(uri, "none") {
		uri = ""
	}
	return uri, reason, true
}
