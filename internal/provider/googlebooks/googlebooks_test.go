package googlebooks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lakafior/aio-abs-providers/internal/cache"
	"github.com/lakafior/aio-abs-providers/internal/config"
	pkgerrors "github.com/lakafior/aio-abs-providers/internal/errors"
	"github.com/lakafior/aio-abs-providers/internal/metadata"
	"github.com/lakafior/aio-abs-providers/internal/ratelimit"
	"github.com/lakafior/aio-abs-providers/internal/testutil"
)

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()

	env := testutil.NewTestEnv(t)
	testutil.SetupTestCache(t, env)
	if err := cache.ResetGlobalCache(); err != nil {
		t.Fatalf("Failed to reset global cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.ResetGlobalCache() })

	c := New(config.ProviderSettings{}, nil)
	c.httpClient = server.Client()
	c.baseURL = server.URL
	c.apiKey = ""
	c.limiter = ratelimit.New(providerID, 1000)
	return c
}

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/volumes" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query().Get("q")
		if !strings.Contains(q, `intitle:"neuromancer"`) || !strings.Contains(q, `inauthor:"gibson"`) {
			t.Errorf("Unexpected query: %s", q)
		}
		_, _ = w.Write([]byte(`{
			"totalItems": 1,
			"items": [{
				"id": "vol1",
				"volumeInfo": {
					"title": "Neuromancer",
					"authors": ["William Gibson"],
					"averageRating": 4.5,
					"imageLinks": {"thumbnail": "http://books.google.com/thumb.jpg"},
					"canonicalVolumeLink": "https://books.google.com/vol1"
				}
			}]
		}`))
	}))
	defer server.Close()

	c := newTestClient(t, server)

	snippets, err := c.Search(context.Background(), "neuromancer", "gibson")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(snippets) != 1 {
		t.Fatalf("Got %d snippets, want 1", len(snippets))
	}

	sn := snippets[0]
	if sn.ID != "vol1" {
		t.Errorf("ID = %q", sn.ID)
	}
	if sn.Type != metadata.TypeBook {
		t.Errorf("Type = %q, want %q", sn.Type, metadata.TypeBook)
	}
	if sn.Cover != "https://books.google.com/thumb.jpg" {
		t.Errorf("Cover = %q, want https scheme", sn.Cover)
	}
	if sn.URL != "https://books.google.com/vol1" {
		t.Errorf("URL = %q", sn.URL)
	}
}

func TestSearchEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"totalItems": 0}`))
	}))
	defer server.Close()

	c := newTestClient(t, server)

	snippets, err := c.Search(context.Background(), "nonexistent", "")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(snippets) != 0 {
		t.Fatalf("Got %d snippets, want 0", len(snippets))
	}
}

func TestEnrich(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/volumes/vol1" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"id": "vol1",
			"volumeInfo": {
				"title": "Neuromancer",
				"subtitle": "A Novel",
				"publisher": "Ace",
				"publishedDate": "1984-07-01",
				"description": "Case was the sharpest data-thief.",
				"categories": ["Fiction", "Cyberpunk"],
				"language": "en",
				"industryIdentifiers": [
					{"type": "ISBN_10", "identifier": "0441569560"},
					{"type": "ISBN_13", "identifier": "9780441569564"}
				]
			}
		}`))
	}))
	defer server.Close()

	c := newTestClient(t, server)

	cand := metadata.Candidate{
		Snippet:  metadata.Snippet{ID: "vol1", Title: "Neuromancer", Type: metadata.TypeBook},
		Provider: "googlebooks",
	}
	result, err := c.Enrich(context.Background(), cand)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	if result.Subtitle != "A Novel" {
		t.Errorf("Subtitle = %q", result.Subtitle)
	}
	if result.Publisher != "Ace" {
		t.Errorf("Publisher = %q", result.Publisher)
	}
	if result.PublishedYear != "1984" {
		t.Errorf("PublishedYear = %q", result.PublishedYear)
	}
	if result.Identifiers["isbn"] != "9780441569564" {
		t.Errorf("isbn = %q, want ISBN-13", result.Identifiers["isbn"])
	}
	if result.Identifiers["isbn10"] != "0441569560" {
		t.Errorf("isbn10 = %q", result.Identifiers["isbn10"])
	}
	if len(result.Languages) != 1 || result.Languages[0] != "en" {
		t.Errorf("Languages = %v", result.Languages)
	}
}

func TestEnrichNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(t, server)

	cand := metadata.Candidate{Snippet: metadata.Snippet{ID: "gone"}}
	_, err := c.Enrich(context.Background(), cand)
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestSearchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(t, server)

	_, err := c.Search(context.Background(), "anything", "")
	if err == nil {
		t.Fatal("Search returned nil error for 500 response")
	}
	if !pkgerrors.IsProviderError(err) {
		t.Fatalf("Expected provider error, got %v", err)
	}
}

func TestIdentifiersOf(t *testing.T) {
	ids := identifiersOf([]industryIdentifier{
		{Type: "ISBN_10", Identifier: "0441569560"},
	})
	if ids["isbn"] != "0441569560" {
		t.Errorf("isbn = %q, want ISBN-10 fallback", ids["isbn"])
	}

	ids = identifiersOf(nil)
	if len(ids) != 0 {
		t.Errorf("identifiersOf(nil) = %v, want empty", ids)
	}
}

func TestSecureURL(t *testing.T) {
	if got := secureURL("http://example.com/x.jpg"); got != "https://example.com/x.jpg" {
		t.Errorf("secureURL = %q", got)
	}
	if got := secureURL(""); got != "" {
		t.Errorf("secureURL(\"\") = %q", got)
	}
}
