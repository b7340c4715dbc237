package server

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakafior/aio-abs-providers/internal/config"
	"github.com/lakafior/aio-abs-providers/internal/metadata"
	"github.com/lakafior/aio-abs-providers/internal/provider"
)

type stubProvider struct {
	id       string
	snippets []metadata.Snippet
}

func (p *stubProvider) ID() string   { return p.id }
func (p *stubProvider) Name() string { return "Stub " + p.id }
func (p *stubProvider) Search(ctx context.Context, query, author string) ([]metadata.Snippet, error) {
	return p.snippets, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestServer(t *testing.T, settings config.Settings, providers ...provider.Provider) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := config.NewStore(settings)
	registry := provider.NewRegistry(provider.BuildTable(settings, providers))
	return New(store, registry, testLogger())
}

func defaultSettings() config.Settings {
	return config.Settings{
		TitleWeight:         60,
		SimilarityThreshold: 0,
		Books:               true,
		Audiobooks:          true,
		Providers:           map[string]config.ProviderSettings{},
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, defaultSettings())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestSearchMissingQuery(t *testing.T) {
	s := newTestServer(t, defaultSettings())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "query is required")
}

func TestSearch(t *testing.T) {
	stub := &stubProvider{
		id: "stub",
		snippets: []metadata.Snippet{
			{ID: "1", Title: "The Hobbit", Type: metadata.TypeBook, Source: metadata.Source{ID: "stub"}},
		},
	}
	s := newTestServer(t, defaultSettings(), stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/search?query=the+hobbit", nil)
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp metadata.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, "The Hobbit", resp.Matches[0].Title)
	require.Len(t, resp.Providers, 1)
	assert.Equal(t, "stub", resp.Providers[0].ID)
	assert.Equal(t, 1, resp.Providers[0].Results)
}

func TestSearchLanguageFilter(t *testing.T) {
	stub := &stubProvider{
		id: "stub",
		snippets: []metadata.Snippet{
			{ID: "1", Title: "Book", Type: metadata.TypeBook},
		},
	}
	s := newTestServer(t, defaultSettings(), stub)

	// The stub declares no languages, so any hint still includes it
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/search?query=book&language=de", nil)
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp metadata.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Matches, 1)
}

func TestProviders(t *testing.T) {
	settings := defaultSettings()
	settings.Providers["stub"] = config.ProviderSettings{Enabled: true, Priority: 7, MaxResults: 3}
	s := newTestServer(t, settings, &stubProvider{id: "stub"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/providers", nil)
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Providers []provider.Info `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Providers, 1)
	assert.Equal(t, "stub", resp.Providers[0].ID)
	assert.Equal(t, 7, resp.Providers[0].Priority)
	assert.Equal(t, 3, resp.Providers[0].MaxResults)
}

func TestAuthMiddleware(t *testing.T) {
	settings := defaultSettings()
	settings.Server.AuthToken = "sekrit"
	s := newTestServer(t, settings, &stubProvider{id: "stub"})
	router := s.Router()

	// No token
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/providers", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Wrong token
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/providers", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Correct token
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/providers", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Health stays open
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCover(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		img := image.NewRGBA(image.Rect(0, 0, 200, 300))
		for x := range 200 {
			for y := range 300 {
				img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
			}
		}
		w.Header().Set("Content-Type", "image/png")
		_ = png.Encode(w, img)
	}))
	defer upstream.Close()

	s := newTestServer(t, defaultSettings())
	s.httpClient = upstream.Client()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/cover?url="+upstream.URL+"/cover.png&width=50", nil)
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))

	decoded, _, err := image.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 50, decoded.Bounds().Dx())
}

func TestCoverBadRequests(t *testing.T) {
	s := newTestServer(t, defaultSettings())
	router := s.Router()

	tests := []struct {
		name string
		path string
	}{
		{name: "missing url", path: "/cover"},
		{name: "relative url", path: "/cover?url=not-a-url"},
		{name: "bad width", path: "/cover?url=https://example.com/x.jpg&width=-5"},
		{name: "huge width", path: "/cover?url=https://example.com/x.jpg&width=99999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestCoverUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer upstream.Close()

	s := newTestServer(t, defaultSettings())
	s.httpClient = upstream.Client()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/cover?url="+upstream.URL+"/gone.jpg", nil)
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}
