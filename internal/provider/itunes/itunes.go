// Package itunes implements the iTunes Store audiobook provider. The
// Search API is anonymous but throttle-happy, so the client defaults to
// a low request rate and a small enrichment concurrency.
package itunes

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lakafior/aio-abs-providers/internal/cache"
	"github.com/lakafior/aio-abs-providers/internal/config"
	pkgerrors "github.com/lakafior/aio-abs-providers/internal/errors"
	"github.com/lakafior/aio-abs-providers/internal/metadata"
	"github.com/lakafior/aio-abs-providers/internal/ratelimit"
)

const (
	providerID   = "itunes"
	providerName = "iTunes"
	cacheTable   = "itunes_cache"

	defaultRateLimit   = 2 // req/s, the store throttles aggressively
	defaultConcurrency = 2
	searchResultLimit  = 25
)

// Client is the iTunes Store provider.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	baseURL    string
	logger     *slog.Logger
}

// New creates an iTunes client honoring the operator's rate limit.
func New(settings config.ProviderSettings, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    ratelimit.ForProvider(providerID, settings.RateLimit, defaultRateLimit),
		baseURL:    "https://itunes.apple.com",
		logger:     logger,
	}
}

func (c *Client) ID() string   { return providerID }
func (c *Client) Name() string { return providerName }

// Concurrency declares the enrichment parallelism the store tolerates.
func (c *Client) Concurrency() int { return defaultConcurrency }

// Languages declares the catalog language served by the US store.
func (c *Client) Languages() []string { return []string{"en"} }

// Search queries the Search API restricted to audiobooks.
func (c *Client) Search(ctx context.Context, query, author string) ([]metadata.Snippet, error) {
	term := strings.TrimSpace(query + " " + author)
	cacheKey := "search:" + strings.ToLower(term)

	cached, fromCache, err := cache.GetOrFetchWithTTL(cacheTable, cacheKey,
		func() (cachedSearch, error) {
			return c.fetchSearch(ctx, term)
		},
		cache.SelectNegativeCacheTTL(func(cs cachedSearch) bool {
			return cs.NotFound
		}))
	if err != nil {
		return nil, err
	}
	if fromCache {
		c.logger.Debug("iTunes search served from cache", "term", term)
	}

	snippets := make([]metadata.Snippet, 0, len(cached.Results))
	for _, ab := range cached.Results {
		if ab.CollectionID == 0 || ab.CollectionName == "" {
			continue
		}
		snippets = append(snippets, metadata.Snippet{
			ID:      strconv.FormatInt(ab.CollectionID, 10),
			Title:   ab.CollectionName,
			Authors: splitArtists(ab.ArtistName),
			URL:     ab.CollectionViewURL,
			Cover:   upscaleArtwork(ab.ArtworkURL100),
			Rating:  ab.AverageUserRating,
			Type:    metadata.TypeAudiobook,
			Source: metadata.Source{
				ID:   providerID,
				Name: providerName,
				Link: ab.CollectionViewURL,
			},
		})
	}
	return snippets, nil
}

func (c *Client) fetchSearch(ctx context.Context, term string) (cachedSearch, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return cachedSearch{}, err
	}

	params := url.Values{}
	params.Set("term", term)
	params.Set("media", "audiobook")
	params.Set("entity", "audiobook")
	params.Set("limit", fmt.Sprintf("%d", searchResultLimit))

	var result lookupResponse
	if err := c.getJSON(ctx, c.baseURL+"/search?"+params.Encode(), &result); err != nil {
		return cachedSearch{}, err
	}

	return cachedSearch{Results: result.Results, NotFound: len(result.Results) == 0}, nil
}

// Enrich fetches the collection record behind a candidate and fills in
// the description, genre, and release year.
func (c *Client) Enrich(ctx context.Context, cand metadata.Candidate) (metadata.EnrichedResult, error) {
	result := metadata.EnrichedResult{Candidate: cand}

	cached, _, err := cache.GetOrFetchWithTTL(cacheTable, "lookup:"+cand.ID,
		func() (cachedLookup, error) {
			return c.fetchLookup(ctx, cand.ID)
		},
		cache.SelectNegativeCacheTTL(func(cl cachedLookup) bool {
			return cl.NotFound
		}))
	if err != nil {
		return result, err
	}
	if cached.NotFound || cached.Result == nil {
		return result, fmt.Errorf("collection %s: %w", cand.ID, pkgerrors.ErrNotFound)
	}

	ab := cached.Result
	result.Description = stripHTML(ab.Description)
	result.Publisher = ab.Copyright
	if len(ab.ReleaseDate) >= 4 {
		result.PublishedYear = ab.ReleaseDate[:4]
	}
	if ab.PrimaryGenreName != "" {
		result.Genres = []string{ab.PrimaryGenreName}
	}
	if result.Cover == "" {
		result.Cover = upscaleArtwork(ab.ArtworkURL100)
	}
	return result, nil
}

func (c *Client) fetchLookup(ctx context.Context, id string) (cachedLookup, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return cachedLookup{}, err
	}

	var result lookupResponse
	if err := c.getJSON(ctx, c.baseURL+"/lookup?id="+url.QueryEscape(id), &result); err != nil {
		return cachedLookup{}, err
	}
	if len(result.Results) == 0 {
		return cachedLookup{NotFound: true}, nil
	}
	return cachedLookup{Result: &result.Results[0]}, nil
}

// Ping checks API reachability with a minimal lookup.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var result lookupResponse
	return c.getJSON(ctx, c.baseURL+"/search?term=the&media=audiobook&limit=1", &result)
}

func (c *Client) getJSON(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("iTunes request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
		// The store answers 403 to throttled anonymous clients
		return pkgerrors.NewRateLimitError("iTunes rate limit exceeded")
	case resp.StatusCode != http.StatusOK:
		return pkgerrors.NewProviderError(providerID, resp.StatusCode, "")
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode iTunes response: %w", err)
	}
	return nil
}

// splitArtists breaks the store's combined artist string into authors.
func splitArtists(artist string) []string {
	if artist == "" {
		return nil
	}
	parts := strings.Split(artist, "&")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// upscaleArtwork rewrites the 100x100 artwork URL to the 600x600 variant.
func upscaleArtwork(u string) string {
	return strings.Replace(u, "100x100bb", "600x600bb", 1)
}

// stripHTML removes markup from store descriptions, which arrive as HTML.
func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(html.UnescapeString(b.String()))
}
