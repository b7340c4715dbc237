package metadata

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// DefaultEnrichWorkers bounds a provider's enrichment pool when the
// provider declares no concurrency hint.
const DefaultEnrichWorkers = 5

// EnrichProvider fetches full metadata for a single candidate. Providers
// without this capability are passed through the pool unchanged.
type EnrichProvider interface {
	Enrich(ctx context.Context, c Candidate) (EnrichedResult, error)
}

// EnrichTarget pairs a provider group's enricher with its worker bound.
type EnrichTarget struct {
	Enricher EnrichProvider // nil: candidates pass through with snippet fields only
	Workers  int
}

// EnrichAll drains every provider group through its own bounded worker
// pool and returns the flattened results. The concurrency bound is per
// provider, so a slow provider cannot starve the others. A failed fetch is
// logged and dropped; it never aborts sibling fetches or the request.
// Output order is deterministic: groups in provider-id order, candidates
// in group order.
func EnrichAll(ctx context.Context, groups map[string][]Candidate, targets map[string]EnrichTarget, logger *slog.Logger) []EnrichedResult {
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	perGroup := make(map[string][]EnrichedResult, len(groups))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range ids {
		wg.Add(1)
		go func(id string, cands []Candidate) {
			defer wg.Done()
			enriched := enrichGroup(ctx, id, cands, targets[id], logger)
			mu.Lock()
			perGroup[id] = enriched
			mu.Unlock()
		}(id, groups[id])
	}
	wg.Wait()

	var out []EnrichedResult
	for _, id := range ids {
		out = append(out, perGroup[id]...)
	}
	return out
}

// enrichGroup runs one provider's candidates through a bounded pool.
// Workers pull indices from a shared cursor so no candidate is fetched
// twice; result slots keep the candidates' input order.
func enrichGroup(ctx context.Context, id string, cands []Candidate, target EnrichTarget, logger *slog.Logger) []EnrichedResult {
	if target.Enricher == nil {
		out := make([]EnrichedResult, 0, len(cands))
		for _, c := range cands {
			out = append(out, EnrichedResult{Candidate: c})
		}
		return out
	}

	workers := target.Workers
	if workers <= 0 {
		workers = DefaultEnrichWorkers
	}
	if workers > len(cands) {
		workers = len(cands)
	}

	slots := make([]*EnrichedResult, len(cands))
	var cursor atomic.Int64
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(cursor.Add(1)) - 1
				if i >= len(cands) {
					return
				}
				result, err := target.Enricher.Enrich(ctx, cands[i])
				if err != nil {
					logger.Warn("Enrichment failed, dropping candidate",
						"provider", id, "id", cands[i].ID, "title", cands[i].Title, "error", err)
					continue
				}
				slots[i] = &result
			}
		}()
	}
	wg.Wait()

	out := make([]EnrichedResult, 0, len(cands))
	for _, r := range slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}
