// Package server exposes the aggregator over HTTP.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lakafior/aio-abs-providers/internal/config"
	"github.com/lakafior/aio-abs-providers/internal/metadata"
	"github.com/lakafior/aio-abs-providers/internal/provider"
)

// Server wires the aggregator, provider registry, and configuration
// store into a gin engine.
type Server struct {
	store      *config.Store
	registry   *provider.Registry
	aggregator *metadata.Aggregator
	logger     *slog.Logger
	httpClient *http.Client
}

// New creates a server. A nil logger falls back to slog.Default.
func New(store *config.Store, registry *provider.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:      store,
		registry:   registry,
		aggregator: metadata.NewAggregator(logger),
		logger:     logger,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealthz)

	authed := r.Group("/", s.authMiddleware())
	authed.GET("/search", s.handleSearch)
	authed.GET("/providers", s.handleProviders)
	authed.GET("/cover", s.handleCover)

	return r
}

// Run starts the HTTP server on the configured listen address.
func (s *Server) Run() error {
	listen := s.store.Snapshot().Server.Listen
	s.logger.Info("HTTP server listening", "addr", listen)
	return s.Router().Run(listen)
}

// authMiddleware enforces bearer token auth when a token is configured.
// The token is read per request so configuration reloads apply.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := s.store.Snapshot().Server.AuthToken
		if token == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		got, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || got != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSearch(c *gin.Context) {
	cfg := s.store.Snapshot()
	table := s.registry.Snapshot()

	req := metadata.Request{
		Query:    c.Query("query"),
		Author:   c.Query("author"),
		Language: c.Query("language"),
	}

	resp, err := s.aggregator.Search(c.Request.Context(), req, table.Entries(req.Language), cfg)
	if err != nil {
		if errors.Is(err, metadata.ErrMissingQuery) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("Search failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": s.registry.Snapshot().Describe()})
}
