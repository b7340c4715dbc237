// Package config loads aggregator settings through viper and hands them
// out as immutable value snapshots. A request takes one snapshot at start;
// configuration reloads swap the store pointer and never touch a request
// already in flight.
package config

import (
	"sync/atomic"

	"github.com/spf13/viper"
)

// ProviderSettings holds the operator-configured knobs of one provider.
type ProviderSettings struct {
	Enabled     bool
	Priority    int
	MaxResults  int
	Concurrency int
	RateLimit   int // requests per second, 0 = provider default
}

// ServerSettings configures the HTTP surface.
type ServerSettings struct {
	Listen    string
	AuthToken string
}

// CacheSettings configures the provider response cache.
type CacheSettings struct {
	DBFile string
	TTL    string
}

// Settings is one immutable snapshot of the full configuration surface.
type Settings struct {
	// TitleWeight and SimilarityThreshold are operator values on a 0-100
	// scale; use the Fraction helpers for the [0,1] forms.
	TitleWeight         int
	SimilarityThreshold int

	MergeBestResults bool
	MergeDebug       bool
	// MergePreferences maps a field name to the provider id whose value
	// wins for that field when merging tied results.
	MergePreferences map[string]string

	Books      bool
	Audiobooks bool

	Providers map[string]ProviderSettings

	Server ServerSettings
	Cache  CacheSettings
}

// SetDefaults registers default values with viper. Call before Load.
func SetDefaults() {
	viper.SetDefault("titleWeight", 60)
	viper.SetDefault("similarityThreshold", 50)
	viper.SetDefault("mergeBestResults", true)
	viper.SetDefault("mergeDebug", false)
	viper.SetDefault("books", true)
	viper.SetDefault("audiobooks", true)
	viper.SetDefault("server.listen", ":3111")
	viper.SetDefault("cache.dbfile", "./cache.db")
	viper.SetDefault("cache.ttl", "720h")
}

// Load builds a Settings snapshot from the current viper state.
func Load() Settings {
	s := Settings{
		TitleWeight:         viper.GetInt("titleWeight"),
		SimilarityThreshold: viper.GetInt("similarityThreshold"),
		MergeBestResults:    viper.GetBool("mergeBestResults"),
		MergeDebug:          viper.GetBool("mergeDebug"),
		MergePreferences:    viper.GetStringMapString("mergePreferences"),
		Books:               viper.GetBool("books"),
		Audiobooks:          viper.GetBool("audiobooks"),
		Providers:           map[string]ProviderSettings{},
		Server: ServerSettings{
			Listen:    viper.GetString("server.listen"),
			AuthToken: viper.GetString("server.authToken"),
		},
		Cache: CacheSettings{
			DBFile: viper.GetString("cache.dbfile"),
			TTL:    viper.GetString("cache.ttl"),
		},
	}

	for id := range viper.GetStringMap("providers") {
		key := "providers." + id
		ps := ProviderSettings{
			Enabled:     true,
			Priority:    viper.GetInt(key + ".priority"),
			MaxResults:  viper.GetInt(key + ".maxResults"),
			Concurrency: viper.GetInt(key + ".concurrency"),
			RateLimit:   viper.GetInt(key + ".rateLimit"),
		}
		if viper.IsSet(key + ".enabled") {
			ps.Enabled = viper.GetBool(key + ".enabled")
		}
		s.Providers[id] = ps
	}

	return s
}

// ProviderFor returns the settings of the given provider. Providers absent
// from the configuration run with defaults: enabled, priority 0, no cap.
func (s Settings) ProviderFor(id string) ProviderSettings {
	if ps, ok := s.Providers[id]; ok {
		return ps
	}
	return ProviderSettings{Enabled: true}
}

// TitleWeightFraction returns TitleWeight scaled to [0,1], clamped.
func (s Settings) TitleWeightFraction() float64 {
	return clampPercent(s.TitleWeight)
}

// ThresholdFraction returns SimilarityThreshold scaled to [0,1], clamped.
func (s Settings) ThresholdFraction() float64 {
	return clampPercent(s.SimilarityThreshold)
}

func clampPercent(v int) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 1
	}
	return float64(v) / 100
}

// Store holds the current Settings snapshot behind an atomic pointer.
type Store struct {
	current atomic.Pointer[Settings]
}

// NewStore creates a store seeded with the given snapshot.
func NewStore(s Settings) *Store {
	st := &Store{}
	st.current.Store(&s)
	return st
}

// Snapshot returns the current settings by value.
func (st *Store) Snapshot() Settings {
	return *st.current.Load()
}

// Replace swaps in a new snapshot. Requests holding the previous snapshot
// are unaffected.
func (st *Store) Replace(s Settings) {
	st.current.Store(&s)
}
