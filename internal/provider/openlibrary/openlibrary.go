// Package openlibrary implements the Open Library metadata provider.
// Search goes through /search.json, enrichment fetches the work record.
// Responses are cached; empty result sets use the shorter negative TTL.
package openlibrary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lakafior/aio-abs-providers/internal/cache"
	"github.com/lakafior/aio-abs-providers/internal/config"
	pkgerrors "github.com/lakafior/aio-abs-providers/internal/errors"
	"github.com/lakafior/aio-abs-providers/internal/metadata"
	"github.com/lakafior/aio-abs-providers/internal/ratelimit"
)

const (
	providerID   = "openlibrary"
	providerName = "Open Library"
	cacheTable   = "openlibrary_cache"

	defaultRateLimit  = 1 // req/s, Open Library asks for gentle clients
	searchResultLimit = 30
	maxSubjects       = 8
)

// Client is the Open Library provider.
type Client struct {
	httpClient   *http.Client
	limiter      *ratelimit.Limiter
	baseURL      string
	coverBaseURL string
	logger       *slog.Logger
}

// New creates an Open Library client honoring the operator's rate limit.
func New(settings config.ProviderSettings, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		limiter:      ratelimit.ForProvider(providerID, settings.RateLimit, defaultRateLimit),
		baseURL:      "https://openlibrary.org",
		coverBaseURL: "https://covers.openlibrary.org",
		logger:       logger,
	}
}

func (c *Client) ID() string   { return providerID }
func (c *Client) Name() string { return providerName }

// Search queries /search.json and returns book snippets. Results are
// cached per title+author pair.
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
		c.logger.Debug("Open Library search served from cache", "query", query)
	}

	snippets := make([]metadata.Snippet, 0, len(cached.Snippets))
	for _, cs := range cached.Snippets {
		snippets = append(snippets, metadata.Snippet{
			ID:      cs.ID,
			Title:   cs.Title,
			Authors: cs.Authors,
			URL:     cs.URL,
			Cover:   cs.Cover,
			Rating:  cs.Rating,
			Type:    metadata.TypeBook,
			Source: metadata.Source{
				ID:   providerID,
				Name: providerName,
				Link: cs.URL,
			},
		})
	}
	return snippets, nil
}

func (c *Client) fetchSearch(ctx context.Context, query, author string) (cachedSearch, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return cachedSearch{}, err
	}

	params := url.Values{}
	params.Set("title", query)
	if author != "" {
		params.Set("author", author)
	}
	params.Set("limit", fmt.Sprintf("%d", searchResultLimit))
	params.Set("fields", "key,title,author_name,cover_i,first_publish_year,ratings_average,language")

	var result searchResponse
	if err := c.getJSON(ctx, c.baseURL+"/search.json?"+params.Encode(), &result); err != nil {
		return cachedSearch{}, err
	}

	out := cachedSearch{NotFound: len(result.Docs) == 0}
	for _, doc := range result.Docs {
		if doc.Title == "" || doc.Key == "" {
			continue
		}
		cs := cachedSnippet{
			ID:      doc.Key,
			Title:   doc.Title,
			Authors: doc.AuthorName,
			URL:     c.baseURL + doc.Key,
			Rating:  doc.RatingsAverage,
		}
		if doc.CoverID > 0 {
			cs.Cover = fmt.Sprintf("%s/b/id/%d-L.jpg", c.coverBaseURL, doc.CoverID)
		}
		out.Snippets = append(out.Snippets, cs)
	}
	return out, nil
}

// Enrich fetches the work record behind a candidate and fills in the
// description, subjects, and publish year.
func (c *Client) Enrich(ctx context.Context, cand metadata.Candidate) (metadata.EnrichedResult, error) {
	result := metadata.EnrichedResult{Candidate: cand}

	cached, _, err := cache.GetOrFetchWithTTL(cacheTable, "work:"+cand.ID,
		func() (cachedWork, error) {
			return c.fetchWork(ctx, cand.ID)
		},
		cache.SelectNegativeCacheTTL(func(cw cachedWork) bool {
			return cw.NotFound
		}))
	if err != nil {
		return result, err
	}
	if cached.NotFound || cached.Work == nil {
		return result, fmt.Errorf("work %s: %w", cand.ID, pkgerrors.ErrNotFound)
	}

	work := cached.Work
	result.Description = string(work.Description)
	if len(work.Subjects) > 0 {
		n := min(len(work.Subjects), maxSubjects)
		result.Genres = work.Subjects[:n]
	}
	if year := yearOf(work.FirstPublishDate); year != "" {
		result.PublishedYear = year
	}
	if result.Cover == "" && len(work.Covers) > 0 && work.Covers[0] > 0 {
		result.Cover = fmt.Sprintf("%s/b/id/%d-L.jpg", c.coverBaseURL, work.Covers[0])
	}
	return result, nil
}

func (c *Client) fetchWork(ctx context.Context, workKey string) (cachedWork, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return cachedWork{}, err
	}

	var work workResponse
	err := c.getJSON(ctx, c.baseURL+workKey+".json", &work)
	if err != nil {
		var perr *pkgerrors.ProviderError
		if errors.As(err, &perr) && perr.StatusCode == http.StatusNotFound {
			return cachedWork{NotFound: true}, nil
		}
		return cachedWork{}, err
	}
	return cachedWork{Work: &work}, nil
}

// Ping checks API reachability with a minimal search.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var result searchResponse
	return c.getJSON(ctx, c.baseURL+"/search.json?q=the&limit=1", &result)
}

func (c *Client) getJSON(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Open Library request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter, _ := time.ParseDuration(resp.Header.Get("Retry-After") + "s")
		return pkgerrors.NewRateLimitErrorWithRetry("Open Library rate limit exceeded", retryAfter)
	case resp.StatusCode != http.StatusOK:
		return pkgerrors.NewProviderError(providerID, resp.StatusCode, "")
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode Open Library response: %w", err)
	}
	return nil
}

// yearOf extracts the four-digit year from dates like "1979" or
// "October 12, 1979".
func yearOf(date string) string {
	for i := 0; i+4 <= len(date); i++ {
		if isDigit(date[i]) && isDigit(date[i+1]) && isDigit(date[i+2]) && isDigit(date[i+3]) {
			return date[i : i+4]
		}
	}
	return ""
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
