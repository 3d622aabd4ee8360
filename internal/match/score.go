package match

import (
	"sort"

	"tunesync/internal/catalog"
)

// Method identifies how a match decision was reached.
type Method string

const (
	MethodExactID        Method = "exact_id"
	MethodSimilarity     Method = "similarity"
	MethodDisambiguation Method = "disambiguation"
	MethodNone           Method = "none"
)

// Component score weights. Title dominates because it is the most reliably
// populated field in practice. Tuned constants; changing them invalidates
// recorded confidences.
const (
	titleWeight  = 0.50
	artistWeight = 0.35
	albumWeight  = 0.15
)

// ScoredCandidate pairs a candidate with its component similarity scores.
type ScoredCandidate struct {
	Candidate       catalog.CandidateRecord `json:"candidate"`
	CombinedScore   float64                 `json:"combined_score"`
	TitleScore      float64                 `json:"title_score"`
	ArtistScore     float64                 `json:"artist_score"`
	AlbumScore      float64                 `json:"album_score"`
	ExternalIDMatch bool                    `json:"external_id_match"`
}

// Decision is the outcome of the scoring or disambiguation phase.
// IsMatch implies Matched is non-nil.
type Decision struct {
	IsMatch    bool                     `json:"is_match"`
	Confidence float64                  `json:"confidence"`
	Matched    *catalog.CandidateRecord `json:"matched,omitempty"`
	Method     Method                   `json:"method"`
	Reasoning  string                   `json:"reasoning,omitempty"`
	Scored     []ScoredCandidate        `json:"scored,omitempty"`
}

// Score ranks candidates against the source record and decides whether the
// best one clears the threshold. Pure and deterministic: identical inputs
// produce identical output.
//
// An external-ID (ISRC) tie between source and candidate short-circuits that
// candidate to a perfect score. An ID mismatch carries no penalty; scoring
// simply falls through to the weighted text formula.
func Score(source catalog.SourceRecord, candidates []catalog.CandidateRecord, threshold float64) Decision {
	if len(candidates) == 0 {
		return Decision{Method: MethodNone}
	}

	scored := make([]ScoredCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		entry := ScoredCandidate{
			Candidate:   candidate,
			TitleScore:  Ratio(source.Title, candidate.Title),
			ArtistScore: Ratio(source.Artist, candidate.Artist),
		}
		if source.Album != "" && candidate.Album != "" {
			entry.AlbumScore = Ratio(source.Album, candidate.Album)
		}

		if source.ExternalID != "" && candidate.ExternalID != "" && source.ExternalID == candidate.ExternalID {
			entry.ExternalIDMatch = true
			entry.CombinedScore = 1.0
		} else {
			entry.CombinedScore = titleWeight*entry.TitleScore +
				artistWeight*entry.ArtistScore +
				albumWeight*entry.AlbumScore
		}
		scored = append(scored, entry)
	}

	// Stable sort keeps the original catalog ordering for equal scores.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].CombinedScore > scored[j].CombinedScore
	})

	best := scored[0]
	decision := Decision{
		Confidence: best.CombinedScore,
		Method:     MethodNone,
		Scored:     scored,
	}
	if best.CombinedScore >= threshold {
		matched := best.Candidate
		decision.IsMatch = true
		decision.Matched = &matched
		if best.ExternalIDMatch {
			decision.Method = MethodExactID
		} else {
			decision.Method = MethodSimilarity
		}
	}
	return decision
}

// Top returns up to n highest-scored candidates from a decision.
func (d Decision) Top(n int) []ScoredCandidate {
	if n <= 0 || len(d.Scored) == 0 {
		return nil
	}
	if n > len(d.Scored) {
		n = len(d.Scored)
	}
	return d.Scored[:n]
}
