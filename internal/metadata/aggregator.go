package metadata

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lakafior/aio-abs-providers/internal/config"
)

// ErrMissingQuery is the only caller-visible search error; every upstream
// failure is isolated into per-provider diagnostics instead.
var ErrMissingQuery = errors.New("query is required")

// SearchProvider is the cheap search capability every provider exposes.
// Search must not perform detail-page fetches and may return an empty list
// on provider-internal failure.
type SearchProvider interface {
	ID() string
	Name() string
	Search(ctx context.Context, query, author string) ([]Snippet, error)
}

// ProviderEntry is one enabled provider with its request-scoped settings,
// snapshotted from configuration before the request starts.
type ProviderEntry struct {
	Provider SearchProvider
	Enricher EnrichProvider // nil when the provider declares no enrich capability
	Priority int
	Workers  int
}

// ProviderDiagnostic reports one provider's contribution to a request.
type ProviderDiagnostic struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Results    int    `json:"results"`
	DurationMS int64  `json:"duration"`
	Error      string `json:"error,omitempty"`
}

// Response is the aggregated search result handed to the service layer.
type Response struct {
	Matches   []EnrichedResult     `json:"matches"`
	Providers []ProviderDiagnostic `json:"providers"`
}

// Request carries one aggregated search's parameters.
type Request struct {
	Query    string
	Author   string
	Language string
}

// Aggregator runs the aggregation pipeline. It holds no per-request
// state; every Search call builds its own candidate and result sequences.
type Aggregator struct {
	logger *slog.Logger
}

// NewAggregator creates an aggregator logging through the given logger.
// A nil logger falls back to slog.Default.
func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{logger: logger}
}

// Search fans the query out to all entries in parallel, scores and selects
// the returned snippets, enriches the survivors under per-provider
// concurrency bounds, ranks them, and optionally prepends a merged record.
// Provider failures contribute zero results and a diagnostic; the call
// errors only on a missing query.
func (a *Aggregator) Search(ctx context.Context, req Request, entries []ProviderEntry, cfg config.Settings) (Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Response{}, ErrMissingQuery
	}
	author := strings.TrimSpace(req.Author)

	type fanoutResult struct {
		entry    ProviderEntry
		snippets []Snippet
		err      error
		elapsed  time.Duration
	}

	ch := make(chan fanoutResult, len(entries))
	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e ProviderEntry) {
			defer wg.Done()
			start := time.Now()
			snippets, err := e.Provider.Search(ctx, query, author)
			ch <- fanoutResult{entry: e, snippets: snippets, err: err, elapsed: time.Since(start)}
		}(e)
	}
	go func() {
		wg.Wait()
		close(ch)
	}()

	titleWeight := cfg.TitleWeightFraction()
	var candidates []Candidate
	diagnostics := make([]ProviderDiagnostic, 0, len(entries))
	targets := make(map[string]EnrichTarget, len(entries))

	for fr := range ch {
		id := fr.entry.Provider.ID()
		diag := ProviderDiagnostic{
			ID:         id,
			Name:       fr.entry.Provider.Name(),
			Results:    len(fr.snippets),
			DurationMS: fr.elapsed.Milliseconds(),
		}
		if fr.err != nil {
			diag.Error = fr.err.Error()
			diag.Results = 0
			a.logger.Warn("Provider search failed", "provider", id, "error", fr.err)
			diagnostics = append(diagnostics, diag)
			continue
		}
		diagnostics = append(diagnostics, diag)

		targets[id] = EnrichTarget{Enricher: fr.entry.Enricher, Workers: fr.entry.Workers}
		for _, sn := range fr.snippets {
			candidates = append(candidates, Candidate{
				Snippet:          sn,
				Provider:         id,
				ProviderPriority: fr.entry.Priority,
				Similarity:       Score(sn, query, author, titleWeight),
			})
		}
	}

	sort.Slice(diagnostics, func(i, j int) bool { return diagnostics[i].ID < diagnostics[j].ID })

	groups := SelectCandidates(candidates, cfg)
	enriched := EnrichAll(ctx, groups, targets, a.logger)
	ranked := Rank(enriched)
	matches := MaybeMerge(ranked, cfg, a.logger)

	shaped := make([]EnrichedResult, len(matches))
	for i, m := range matches {
		m.Author = strings.Join(m.Authors, ", ")
		shaped[i] = m
	}

	a.logger.Info("Aggregated search finished",
		"query", query, "candidates", len(candidates), "matches", len(shaped))

	return Response{Matches: shaped, Providers: diagnostics}, nil
}
