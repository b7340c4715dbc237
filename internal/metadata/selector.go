package metadata

import (
	"sort"

	"github.com/lakafior/aio-abs-providers/internal/config"
)

// SelectCandidates filters scored candidates down to the set worth
// enriching, grouped by provider. The stages run in a fixed order: type
// filter, per-provider cap, global similarity threshold. Capping happens
// before thresholding so a noisy provider cannot flood the results even
// when many of its snippets clear the threshold.
func SelectCandidates(candidates []Candidate, cfg config.Settings) map[string][]Candidate {
	groups := make(map[string][]Candidate)
	for _, c := range candidates {
		if c.Type == TypeBook && !cfg.Books {
			continue
		}
		if c.Type == TypeAudiobook && !cfg.Audiobooks {
			continue
		}
		groups[c.Provider] = append(groups[c.Provider], c)
	}

	threshold := cfg.ThresholdFraction()

	for id, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Similarity > group[j].Similarity
		})

		if limit := cfg.ProviderFor(id).MaxResults; limit > 0 && len(group) > limit {
			group = group[:limit]
		}

		kept := group[:0]
		for _, c := range group {
			if c.Similarity >= threshold {
				kept = append(kept, c)
			}
		}

		if len(kept) == 0 {
			delete(groups, id)
			continue
		}
		groups[id] = kept
	}

	return groups
}
