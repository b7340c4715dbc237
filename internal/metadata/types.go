// Package metadata implements the aggregation pipeline: snippet scoring,
// candidate selection, bounded-concurrency enrichment, ranking, and the
// best-of-breed merge of tied top results.
package metadata

// MediaType classifies a catalog record.
type MediaType string

// Media types known to the aggregator.
const (
	TypeBook      MediaType = "book"
	TypeAudiobook MediaType = "audiobook"
	TypeUnknown   MediaType = "unknown"
)

// MergedProvider is the synthetic provider id carried by merged records.
const MergedProvider = "merged"

// Epsilon is the similarity distance within which two results are
// considered tied.
const Epsilon = 1e-6

// Source identifies the provider a record came from, as shown to users.
type Source struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Link string `json:"link,omitempty"`
}

// Snippet is the minimal record a provider's search returns. It is cheap
// to produce and owned by the provider until the aggregator tags it.
type Snippet struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Authors []string  `json:"authors,omitempty"`
	URL     string    `json:"url,omitempty"`
	Cover   string    `json:"cover,omitempty"`
	Rating  float64   `json:"rating,omitempty"`
	Type    MediaType `json:"type"`
	Source  Source    `json:"source"`
}

// Candidate is a snippet tagged with its provider and similarity score.
// Candidates are immutable once scored; re-ranking derives new values
// instead of mutating in place.
type Candidate struct {
	Snippet
	Provider         string  `json:"_provider"`
	ProviderPriority int     `json:"_providerPriority"`
	Similarity       float64 `json:"similarity"`
}

// SeriesEntry places a record inside a series. Sequence is a string so
// providers can express "2.5"-style ordering; it may be empty.
type SeriesEntry struct {
	Series   string `json:"series"`
	Sequence string `json:"sequence,omitempty"`
}

// MemberRef names one contributor of a merged record.
type MemberRef struct {
	Provider string `json:"provider"`
	ID       string `json:"id"`
}

// EnrichedResult is a candidate with full metadata populated. Enrichment
// is additive: a failed or unavailable detail fetch leaves the snippet
// fields as the whole record. Records with Provider == MergedProvider
// additionally carry MergedFrom and FieldSources provenance.
type EnrichedResult struct {
	Candidate
	Author        string            `json:"author,omitempty"`
	Subtitle      string            `json:"subtitle,omitempty"`
	Narrator      string            `json:"narrator,omitempty"`
	Description   string            `json:"description,omitempty"`
	Publisher     string            `json:"publisher,omitempty"`
	PublishedYear string            `json:"publishedYear,omitempty"`
	Genres        []string          `json:"genres,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Series        []SeriesEntry     `json:"series,omitempty"`
	Identifiers   map[string]string `json:"identifiers,omitempty"`
	Languages     []string          `json:"languages,omitempty"`
	Duration      int               `json:"duration,omitempty"`
	MergedFrom    []MemberRef       `json:"_mergedFrom,omitempty"`
	FieldSources  map[string]any    `json:"_mergedFieldSources,omitempty"`
}

// nonEmptyFieldCount counts populated metadata fields. The merge engine
// uses it to break resolution-order ties between equally prioritized
// providers.
func (r EnrichedResult) nonEmptyFieldCount() int {
	n := 0
	for _, s := range []string{
		r.Title, r.Subtitle, r.Narrator, r.Description, r.Publisher,
		r.PublishedYear, r.Cover, r.URL,
	} {
		if s != "" {
			n++
		}
	}
	for _, l := range [][]string{r.Genres, r.Tags, r.Languages} {
		if len(l) > 0 {
			n++
		}
	}
	if len(r.Authors) > 0 {
		n++
	}
	if len(r.Series) > 0 {
		n++
	}
	if len(r.Identifiers) > 0 {
		n++
	}
	if r.Rating > 0 {
		n++
	}
	if r.Duration > 0 {
		n++
	}
	return n
}
