// Package googlebooks implements the Google Books metadata provider.
// An API key is optional; when GOOGLE_BOOKS_API_KEY is set it is sent
// with every request for the higher quota tier.
package googlebooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/lakafior/aio-abs-providers/internal/cache"
	"github.com/lakafior/aio-abs-providers/internal/config"
	pkgerrors "github.com/lakafior/aio-abs-providers/internal/errors"
	"github.com/lakafior/aio-abs-providers/internal/metadata"
	"github.com/lakafior/aio-abs-providers/internal/ratelimit"
)

const (
	providerID   = "googlebooks"
	providerName = "Google Books"
	cacheTable   = "googlebooks_cache"

	defaultRateLimit  = 5 // req/s
	searchResultLimit = 20
)

// Client is the Google Books provider.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

// New creates a Google Books client honoring the operator's rate limit.
func New(settings config.ProviderSettings, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    ratelimit.ForProvider(providerID, settings.RateLimit, defaultRateLimit),
		baseURL:    "https://www.googleapis.com/books/v1",
		apiKey:     os.Getenv("GOOGLE_BOOKS_API_KEY"),
		logger:     logger,
	}
}

func (c *Client) ID() string   { return providerID }
func (c *Client) Name() string { return providerName }

// Search queries the volumes endpoint with intitle/inauthor qualifiers.
func (c *Client) Search(ctx context.Context, query, author string) ([]metadata.Snippet, error) {
	cacheKey := "search:" + strings.ToLower(query) + "|" + strings.ToLower(author)

	cached, fromCache, err := cache.GetOrFetchWithTTL(cacheTable, cacheKey,
		func() (cachedSearch, error) {
			return c.fetchSearch(ctx, query, author)
		},
		cache.SelectNegativeCacheTTL(func(cs cachedSearch) bool {
			return cs.NotFound
		}))
	if err != nil {
		return nil, err
	}
	if fromCache {
		c.logger.Debug("Google Books search served from cache", "query", query)
	}

	snippets := make([]metadata.Snippet, 0, len(cached.Items))
	for _, item := range cached.Items {
		info := item.VolumeInfo
		if item.ID == "" || info.Title == "" {
			continue
		}
		link := info.CanonicalVolumeLink
		if link == "" {
			link = info.InfoLink
		}
		snippets = append(snippets, metadata.Snippet{
			ID:      item.ID,
			Title:   info.Title,
			Authors: info.Authors,
			URL:     link,
			Cover:   secureURL(info.ImageLinks.Thumbnail),
			Rating:  info.AverageRating,
			Type:    metadata.TypeBook,
			Source: metadata.Source{
				ID:   providerID,
				Name: providerName,
				Link: link,
			},
		})
	}
	return snippets, nil
}

func (c *Client) fetchSearch(ctx context.Context, query, author string) (cachedSearch, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return cachedSearch{}, err
	}

	q := fmt.Sprintf("intitle:%q", query)
	if author != "" {
		q += fmt.Sprintf(" inauthor:%q", author)
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("maxResults", fmt.Sprintf("%d", searchResultLimit))
	params.Set("printType", "books")
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	var result volumesResponse
	if err := c.getJSON(ctx, c.baseURL+"/volumes?"+params.Encode(), &result); err != nil {
		return cachedSearch{}, err
	}

	return cachedSearch{Items: result.Items, NotFound: len(result.Items) == 0}, nil
}

// Enrich fetches the full volume record behind a candidate.
func (c *Client) Enrich(ctx context.Context, cand metadata.Candidate) (metadata.EnrichedResult, error) {
	result := metadata.EnrichedResult{Candidate: cand}

	cached, _, err := cache.GetOrFetchWithTTL(cacheTable, "volume:"+cand.ID,
		func() (cachedVolume, error) {
			return c.fetchVolume(ctx, cand.ID)
		},
		cache.SelectNegativeCacheTTL(func(cv cachedVolume) bool {
			return cv.NotFound
		}))
	if err != nil {
		return result, err
	}
	if cached.NotFound || cached.Volume == nil {
		return result, fmt.Errorf("volume %s: %w", cand.ID, pkgerrors.ErrNotFound)
	}

	info := cached.Volume.VolumeInfo
	result.Subtitle = info.Subtitle
	result.Description = info.Description
	result.Publisher = info.Publisher
	if len(info.PublishedDate) >= 4 {
		result.PublishedYear = info.PublishedDate[:4]
	}
	if len(info.Categories) > 0 {
		result.Genres = info.Categories
	}
	if info.Language != "" {
		result.Languages = []string{info.Language}
	}
	if ids := identifiersOf(info.IndustryIdentifiers); len(ids) > 0 {
		result.Identifiers = ids
	}
	if result.Cover == "" {
		result.Cover = secureURL(info.ImageLinks.Thumbnail)
	}
	return result, nil
}

func (c *Client) fetchVolume(ctx context.Context, id string) (cachedVolume, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return cachedVolume{}, err
	}

	endpoint := c.baseURL + "/volumes/" + url.PathEscape(id)
	if c.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(c.apiKey)
	}

	var vol volume
	err := c.getJSON(ctx, endpoint, &vol)
	if err != nil {
		var perr *pkgerrors.ProviderError
		if errors.As(err, &perr) && perr.StatusCode == http.StatusNotFound {
			return cachedVolume{NotFound: true}, nil
		}
		return cachedVolume{}, err
	}
	return cachedVolume{Volume: &vol}, nil
}

// Ping checks API reachability with a minimal query.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var result volumesResponse
	return c.getJSON(ctx, c.baseURL+"/volumes?q=the&maxResults=1", &result)
}

func (c *Client) getJSON(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Google Books request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return pkgerrors.NewRateLimitError("Google Books rate limit exceeded")
	case resp.StatusCode != http.StatusOK:
		return pkgerrors.NewProviderError(providerID, resp.StatusCode, "")
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode Google Books response: %w", err)
	}
	return nil
}

// identifiersOf maps industry identifiers to the aggregator's keys.
// ISBN_13 wins over ISBN_10 for the "isbn" slot; the 10-digit form is
// kept separately when both exist.
func identifiersOf(ids []industryIdentifier) map[string]string {
	out := map[string]string{}
	for _, id := range ids {
		switch id.Type {
		case "ISBN_13":
			out["isbn"] = id.Identifier
		case "ISBN_10":
			out["isbn10"] = id.Identifier
			if _, ok := out["isbn"]; !ok {
				out["isbn"] = id.Identifier
			}
		}
	}
	return out
}

// secureURL upgrades Google's http image links to https.
func secureURL(u string) string {
	return strings.Replace(u, "http://", "https://", 1)
}
