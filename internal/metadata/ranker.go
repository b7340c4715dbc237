package metadata

import "sort"

// typeRank orders media types for ranking: equally similar audiobooks
// outrank books.
func typeRank(t MediaType) int {
	switch t {
	case TypeAudiobook:
		return 0
	case TypeBook:
		return 1
	default:
		return 2
	}
}

// Rank returns the results in their final order: similarity descending,
// then audiobook before book, then provider priority descending. The sort
// is stable, so results equal on all three keys keep their input order.
func Rank(results []EnrichedResult) []EnrichedResult {
	out := make([]EnrichedResult, len(results))
	copy(out, results)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if typeRank(a.Type) != typeRank(b.Type) {
			return typeRank(a.Type) < typeRank(b.Type)
		}
		return a.ProviderPriority > b.ProviderPriority
	})

	return out
}
