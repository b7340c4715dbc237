// Package provider defines the contract metadata providers implement and
// the immutable registry the aggregator reads them from.
package provider

import (
	"context"

	"github.com/lakafior/aio-abs-providers/internal/metadata"
)

// Provider is the minimum capability of a metadata source: a cheap,
// best-effort search returning snippets only. Implementations handle
// their own rate limiting, caching, and timeouts; the aggregator treats
// a returned error as "this provider contributed nothing".
type Provider interface {
	ID() string
	Name() string
	Search(ctx context.Context, query, author string) ([]metadata.Snippet, error)
}

// Enricher is the optional detail-fetch capability. Enrich must be
// idempotent and fetch exactly one candidate; failures are signaled as
// errors so the enrichment pool can isolate them. Providers that do not
// implement Enricher have their candidates passed through with snippet
// fields only.
type Enricher interface {
	Enrich(ctx context.Context, c metadata.Candidate) (metadata.EnrichedResult, error)
}

// Pinger is an optional connectivity check used by the ping command.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConcurrencyHinter lets a provider declare how many enrichment fetches
// it tolerates in parallel. Operator configuration overrides the hint.
type ConcurrencyHinter interface {
	Concurrency() int
}

// LanguageLister lets a provider declare the languages it serves. An
// empty or absent list means the provider is language-agnostic.
type LanguageLister interface {
	Languages() []string
}
