package metadata

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/lakafior/aio-abs-providers/internal/config"
)

// MaybeMerge prepends one synthetic best-of-breed record when at least two
// ranked results tie for the top similarity within Epsilon. Field values
// are resolved preferred-provider-first, then by resolution order
// (provider priority descending, populated-field count descending), with
// provenance recorded per field. The merge is best effort: a panic during
// synthesis is logged and the unmerged ranking returned.
func MaybeMerge(ranked []EnrichedResult, cfg config.Settings, logger *slog.Logger) (out []EnrichedResult) {
	out = ranked
	if !cfg.MergeBestResults || len(ranked) < 2 {
		return out
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Merge failed, returning unmerged results", "panic", r)
			out = ranked
		}
	}()

	group := tieGroup(ranked)
	if len(group) < 2 || !distinctMembers(group) {
		return out
	}

	resolution := make([]EnrichedResult, len(group))
	copy(resolution, group)
	sort.SliceStable(resolution, func(i, j int) bool {
		if resolution[i].ProviderPriority != resolution[j].ProviderPriority {
			return resolution[i].ProviderPriority > resolution[j].ProviderPriority
		}
		return resolution[i].nonEmptyFieldCount() > resolution[j].nonEmptyFieldCount()
	})

	merged := synthesize(resolution, ranked[0].Similarity, cfg)

	if redundant(merged, ranked[0]) {
		if cfg.MergeDebug {
			logger.Debug("Merged record suppressed, top result already complete",
				"title", ranked[0].Title, "provider", ranked[0].Provider)
		}
		return out
	}

	maxPriority := resolution[0].ProviderPriority
	for _, m := range resolution[1:] {
		if m.ProviderPriority > maxPriority {
			maxPriority = m.ProviderPriority
		}
	}
	merged.ProviderPriority = maxPriority + 1

	if cfg.MergeDebug {
		logger.Debug("Merged record synthesized",
			"members", len(merged.MergedFrom), "sources", merged.FieldSources)
	}

	out = append([]EnrichedResult{merged}, ranked...)
	return out
}

// tieGroup returns the leading run of results within Epsilon of the top
// similarity. Input must already be ranked.
func tieGroup(ranked []EnrichedResult) []EnrichedResult {
	top := ranked[0].Similarity
	n := 0
	for _, r := range ranked {
		if top-r.Similarity > Epsilon {
			break
		}
		n++
	}
	return ranked[:n]
}

// distinctMembers reports whether the group has at least two distinct
// (provider, id) pairs, the minimum for a meaningful merge.
func distinctMembers(group []EnrichedResult) bool {
	seen := make(map[MemberRef]bool, len(group))
	for _, m := range group {
		seen[MemberRef{Provider: m.Provider, ID: m.ID}] = true
	}
	return len(seen) >= 2
}

// synthesize builds the merged record from the tie group in resolution
// order.
func synthesize(resolution []EnrichedResult, similarity float64, cfg config.Settings) EnrichedResult {
	merged := EnrichedResult{
		Candidate: Candidate{
			Snippet: Snippet{
				Type:   TypeUnknown,
				Source: Source{ID: MergedProvider, Name: "Merged"},
			},
			Provider:   MergedProvider,
			Similarity: similarity,
		},
		FieldSources: map[string]any{},
	}
	for _, m := range resolution {
		merged.MergedFrom = append(merged.MergedFrom, MemberRef{Provider: m.Provider, ID: m.ID})
	}

	prefs := cfg.MergePreferences

	resolveString(&merged, resolution, prefs, "title", func(r *EnrichedResult) *string { return &r.Title })
	resolveString(&merged, resolution, prefs, "subtitle", func(r *EnrichedResult) *string { return &r.Subtitle })
	resolveString(&merged, resolution, prefs, "narrator", func(r *EnrichedResult) *string { return &r.Narrator })
	resolveString(&merged, resolution, prefs, "description", func(r *EnrichedResult) *string { return &r.Description })
	resolveString(&merged, resolution, prefs, "cover", func(r *EnrichedResult) *string { return &r.Cover })
	resolveString(&merged, resolution, prefs, "publisher", func(r *EnrichedResult) *string { return &r.Publisher })
	resolveString(&merged, resolution, prefs, "publishedYear", func(r *EnrichedResult) *string { return &r.PublishedYear })
	resolveString(&merged, resolution, prefs, "url", func(r *EnrichedResult) *string { return &r.URL })
	resolveString(&merged, resolution, prefs, "id", func(r *EnrichedResult) *string { return &r.ID })

	resolveRating(&merged, resolution, prefs)
	resolveType(&merged, resolution, prefs)
	resolveDuration(&merged, resolution, prefs)
	resolveAuthors(&merged, resolution)
	resolveList(&merged, resolution, prefs, "genres",
		func(r *EnrichedResult) *[]string { return &r.Genres })
	resolveList(&merged, resolution, prefs, "tags",
		func(r *EnrichedResult) *[]string { return &r.Tags })
	resolveSeries(&merged, resolution, prefs)
	resolveIdentifiers(&merged, resolution, prefs)
	resolveLanguages(&merged, resolution)

	return merged
}

// preferenceFor returns the provider configured to win the given field.
// Viper lowercases configuration map keys, so camel-case field names are
// also looked up case-folded.
func preferenceFor(prefs map[string]string, field string) string {
	if v := prefs[field]; v != "" {
		return v
	}
	return prefs[strings.ToLower(field)]
}

// preferredFirst reorders a scan so the configured provider's record, if
// any, is visited before the resolution order.
func preferredFirst(resolution []EnrichedResult, prefs map[string]string, field string) []EnrichedResult {
	preferred := preferenceFor(prefs, field)
	if preferred == "" {
		return resolution
	}
	ordered := make([]EnrichedResult, 0, len(resolution))
	for _, m := range resolution {
		if m.Provider == preferred {
			ordered = append(ordered, m)
		}
	}
	for _, m := range resolution {
		if m.Provider != preferred {
			ordered = append(ordered, m)
		}
	}
	return ordered
}

func resolveString(merged *EnrichedResult, resolution []EnrichedResult, prefs map[string]string, field string, get func(*EnrichedResult) *string) {
	for _, m := range preferredFirst(resolution, prefs, field) {
		if v := *get(&m); v != "" {
			*get(merged) = v
			merged.FieldSources[field] = m.Provider
			return
		}
	}
}

func resolveRating(merged *EnrichedResult, resolution []EnrichedResult, prefs map[string]string) {
	for _, m := range preferredFirst(resolution, prefs, "rating") {
		if m.Rating > 0 {
			merged.Rating = m.Rating
			merged.FieldSources["rating"] = m.Provider
			return
		}
	}
}

func resolveType(merged *EnrichedResult, resolution []EnrichedResult, prefs map[string]string) {
	for _, m := range preferredFirst(resolution, prefs, "type") {
		if m.Type != "" && m.Type != TypeUnknown {
			merged.Type = m.Type
			merged.FieldSources["type"] = m.Provider
			return
		}
	}
}

func resolveDuration(merged *EnrichedResult, resolution []EnrichedResult, prefs map[string]string) {
	for _, m := range preferredFirst(resolution, prefs, "duration") {
		if m.Duration > 0 {
			merged.Duration = m.Duration
			merged.FieldSources["duration"] = m.Provider
			return
		}
	}
}

// resolveAuthors takes the first non-empty author list in resolution
// order. Author lists are ordered, so no union is attempted.
func resolveAuthors(merged *EnrichedResult, resolution []EnrichedResult) {
	for _, m := range resolution {
		if len(m.Authors) > 0 {
			merged.Authors = append([]string(nil), m.Authors...)
			merged.FieldSources["authors"] = m.Provider
			return
		}
	}
}

// resolveList applies the list-field rule: a configured preferred
// provider's non-empty list wins verbatim; otherwise the union of all
// members' lists, normalized and de-duplicated, with every contributor
// recorded as a source.
func resolveList(merged *EnrichedResult, resolution []EnrichedResult, prefs map[string]string, field string, get func(*EnrichedResult) *[]string) {
	if preferred := preferenceFor(prefs, field); preferred != "" {
		for _, m := range resolution {
			if m.Provider == preferred && len(*get(&m)) > 0 {
				*get(merged) = append([]string(nil), *get(&m)...)
				merged.FieldSources[field] = m.Provider
				return
			}
		}
	}

	var union []string
	var sources []string
	seen := make(map[string]bool)
	for _, m := range resolution {
		values := *get(&m)
		if len(values) == 0 {
			continue
		}
		contributed := false
		for _, v := range values {
			trimmed := strings.TrimSpace(v)
			if trimmed == "" {
				continue
			}
			key := strings.ToLower(trimmed)
			if seen[key] {
				continue
			}
			seen[key] = true
			union = append(union, trimmed)
			contributed = true
		}
		if contributed {
			sources = append(sources, m.Provider)
		}
	}
	if len(union) > 0 {
		*get(merged) = union
		merged.FieldSources[field] = sources
	}
}

// resolveSeries picks one canonical series entry, preferred provider
// first. The sequence travels with whichever member supplied the series.
func resolveSeries(merged *EnrichedResult, resolution []EnrichedResult, prefs map[string]string) {
	for _, m := range preferredFirst(resolution, prefs, "series") {
		if len(m.Series) > 0 {
			merged.Series = []SeriesEntry{m.Series[0]}
			merged.FieldSources["series"] = m.Provider
			return
		}
	}
}

// resolveIdentifiers merges identifier maps key by key: first non-empty
// value per key wins in resolution order. The isbn and asin keys
// additionally honor merge preferences, since operators configure them as
// top-level fields.
func resolveIdentifiers(merged *EnrichedResult, resolution []EnrichedResult, prefs map[string]string) {
	keys := make([]string, 0, 4)
	seen := make(map[string]bool)
	for _, m := range resolution {
		for k := range m.Identifiers {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		scan := resolution
		if k == "isbn" || k == "asin" {
			scan = preferredFirst(resolution, prefs, k)
		}
		for _, m := range scan {
			if v := m.Identifiers[k]; v != "" {
				if merged.Identifiers == nil {
					merged.Identifiers = map[string]string{}
				}
				merged.Identifiers[k] = v
				merged.FieldSources[k] = m.Provider
				break
			}
		}
	}
}

// resolveLanguages unions the members' language lists, de-duplicating
// exact matches only.
func resolveLanguages(merged *EnrichedResult, resolution []EnrichedResult) {
	seen := make(map[string]bool)
	var sources []string
	for _, m := range resolution {
		contributed := false
		for _, l := range m.Languages {
			if l == "" || seen[l] {
				continue
			}
			seen[l] = true
			merged.Languages = append(merged.Languages, l)
			contributed = true
		}
		if contributed {
			sources = append(sources, m.Provider)
		}
	}
	if len(merged.Languages) > 0 {
		merged.FieldSources["languages"] = sources
	}
}

// redundant reports whether the synthesized record adds nothing over the
// top organic result: same title, same ordered authors, and the organic
// result already holds a value for every field the merge contributes.
func redundant(merged, top EnrichedResult) bool {
	if merged.Title != top.Title {
		return false
	}
	if len(merged.Authors) != len(top.Authors) {
		return false
	}
	for i := range merged.Authors {
		if merged.Authors[i] != top.Authors[i] {
			return false
		}
	}

	contributions := []struct {
		mergedHas bool
		topHas    bool
	}{
		{merged.Narrator != "", top.Narrator != ""},
		{merged.Description != "", top.Description != ""},
		{merged.Cover != "", top.Cover != ""},
		{len(merged.Languages) > 0, len(top.Languages) > 0},
		{len(merged.Identifiers) > 0, len(top.Identifiers) > 0},
		{len(merged.Genres) > 0, len(top.Genres) > 0},
		{len(merged.Tags) > 0, len(top.Tags) > 0},
	}
	for _, c := range contributions {
		if c.mergedHas && !c.topHas {
			return false
		}
	}
	return true
}
