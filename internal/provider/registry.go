package provider

import (
	"slices"
	"sync/atomic"

	"github.com/lakafior/aio-abs-providers/internal/config"
	"github.com/lakafior/aio-abs-providers/internal/metadata"
)

// Entry is one enabled provider with its capabilities resolved and its
// settings frozen at table-build time. Capability interfaces are checked
// exactly once here, never per request.
type Entry struct {
	Provider  Provider
	Enricher  Enricher // nil when the provider declares no enrich capability
	Pinger    Pinger   // nil when the provider declares no ping capability
	Priority  int
	Workers   int
	Languages []string
}

// Info describes a table entry for diagnostics surfaces.
type Info struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Priority   int      `json:"priority"`
	MaxResults int      `json:"maxResults"`
	Workers    int      `json:"concurrency"`
	CanEnrich  bool     `json:"canEnrich"`
	Languages  []string `json:"languages,omitempty"`
}

// Table is an immutable set of provider entries built from one
// configuration snapshot. Requests read a table reference and never
// observe later configuration changes.
type Table struct {
	entries []Entry
	infos   []Info
}

// BuildTable assembles a table from the available providers and the given
// settings snapshot. Disabled providers are skipped. Worker counts come
// from configuration, falling back to the provider's declared hint.
func BuildTable(cfg config.Settings, available []Provider) *Table {
	t := &Table{}
	for _, p := range available {
		ps := cfg.ProviderFor(p.ID())
		if !ps.Enabled {
			continue
		}

		e := Entry{
			Provider: p,
			Priority: ps.Priority,
			Workers:  ps.Concurrency,
		}
		if enricher, ok := p.(Enricher); ok {
			e.Enricher = enricher
		}
		if pinger, ok := p.(Pinger); ok {
			e.Pinger = pinger
		}
		if e.Workers <= 0 {
			if hinter, ok := p.(ConcurrencyHinter); ok {
				e.Workers = hinter.Concurrency()
			}
		}
		if lister, ok := p.(LanguageLister); ok {
			e.Languages = lister.Languages()
		}

		t.entries = append(t.entries, e)
		t.infos = append(t.infos, Info{
			ID:         p.ID(),
			Name:       p.Name(),
			Priority:   ps.Priority,
			MaxResults: ps.MaxResults,
			Workers:    e.Workers,
			CanEnrich:  e.Enricher != nil,
			Languages:  e.Languages,
		})
	}
	return t
}

// Entries returns the aggregator-facing view of the table, filtered by
// language hint. Providers that declared languages serve only matching
// hints; providers without a declaration always match.
func (t *Table) Entries(language string) []metadata.ProviderEntry {
	out := make([]metadata.ProviderEntry, 0, len(t.entries))
	for _, e := range t.entries {
		if language != "" && len(e.Languages) > 0 && !slices.Contains(e.Languages, language) {
			continue
		}
		out = append(out, metadata.ProviderEntry{
			Provider: e.Provider,
			Enricher: e.Enricher,
			Priority: e.Priority,
			Workers:  e.Workers,
		})
	}
	return out
}

// Describe returns the table's entries for diagnostics.
func (t *Table) Describe() []Info {
	return slices.Clone(t.infos)
}

// Pingers returns the entries exposing a connectivity check.
func (t *Table) Pingers() []Entry {
	var out []Entry
	for _, e := range t.entries {
		if e.Pinger != nil {
			out = append(out, e)
		}
	}
	return out
}

// Registry hands out the current provider table. Configuration reloads
// build a fresh table and swap it in atomically; in-flight requests keep
// the table they started with.
type Registry struct {
	table atomic.Pointer[Table]
}

// NewRegistry creates a registry seeded with the given table.
func NewRegistry(t *Table) *Registry {
	r := &Registry{}
	r.table.Store(t)
	return r
}

// Snapshot returns the current table.
func (r *Registry) Snapshot() *Table {
	return r.table.Load()
}

// Swap atomically replaces the table.
func (r *Registry) Swap(t *Table) {
	r.table.Store(t)
}
