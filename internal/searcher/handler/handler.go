// Package handler exposes the query engine over HTTP.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/middleware"
)

// Searcher is satisfied by *searcher.Engine.
type Searcher interface {
	Search(ctx context.Context, raw string, k int) (*searcher.SearchResult, error)
	Reload() error
	Generation() uint64
	DocumentCount() int
	Dir() string
}

// BatchCatalog is satisfied by *catalog.Store.
type BatchCatalog interface {
	Batch(ctx context.Context, id string) (*catalog.Batch, error)
	RecentBatches(ctx context.Context, limit int) ([]catalog.Batch, error)
}

type Handler struct {
	engine       Searcher
	cache        *cache.QueryCache
	catalog      BatchCatalog
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New returns a handler. queryCache and batches may be nil.
func New(engine Searcher, queryCache *cache.QueryCache, batches BatchCatalog, defaultLimit, maxResults int) *Handler {
	return &Handler{
		engine:       engine,
		cache:        queryCache,
		catalog:      batches,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Search handles GET /api/v1/search?q=...&k=...
func (h *Handler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		h.writeError(c, fmt.Errorf("query parameter 'q' is required: %w", apperrors.ErrInvalidInput))
		return
	}
	k, err := h.limit(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	result, err := h.engine.Search(c.Request.Context(), query, k)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) limit(c *gin.Context) (int, error) {
	raw := c.Query("k")
	if raw == "" {
		raw = c.Query("limit")
	}
	if raw == "" {
		return h.defaultLimit, nil
	}
	k, err := strconv.Atoi(raw)
	if err != nil || k < 1 {
		return 0, fmt.Errorf("k must be a positive integer: %w", apperrors.ErrInvalidInput)
	}
	if h.maxResults > 0 && k > h.maxResults {
		k = h.maxResults
	}
	return k, nil
}

// IndexStats handles GET /api/v1/index.
func (h *Handler) IndexStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"dir":        h.engine.Dir(),
		"generation": h.engine.Generation(),
		"documents":  h.engine.DocumentCount(),
	})
}

// Reload handles POST /api/v1/index/reload.
func (h *Handler) Reload(c *gin.Context) {
	before := h.engine.Generation()
	if err := h.engine.Reload(); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"previous_generation": before,
		"generation":          h.engine.Generation(),
	})
}

func (h *Handler) CacheStats(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusOK, gin.H{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	c.JSON(http.StatusOK, gin.H{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(c *gin.Context) {
	if h.cache == nil {
		h.writeError(c, fmt.Errorf("caching is disabled: %w", apperrors.ErrUnavailable))
		return
	}
	if err := h.cache.Invalidate(c.Request.Context()); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "invalidated"})
}

// Batches handles GET /api/v1/batches?limit=...
func (h *Handler) Batches(c *gin.Context) {
	if h.catalog == nil {
		h.writeError(c, errCatalogDisabled)
		return
	}
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(c, fmt.Errorf("limit must be a positive integer: %w", apperrors.ErrInvalidInput))
			return
		}
		limit = min(n, 500)
	}
	batches, err := h.catalog.RecentBatches(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches})
}

// Batch handles GET /api/v1/batches/:id.
func (h *Handler) Batch(c *gin.Context) {
	if h.catalog == nil {
		h.writeError(c, errCatalogDisabled)
		return
	}
	id := c.Param("id")
	batch, err := h.catalog.Batch(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if batch == nil {
		h.writeError(c, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusNotFound, "batch %s not found", id))
		return
	}
	c.JSON(http.StatusOK, batch)
}

var errCatalogDisabled = fmt.Errorf("ingest catalog is disabled: %w", apperrors.ErrUnavailable)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Position  *int      `json:"position,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := apperrors.HTTPStatusCode(err)
	resp := ErrorResponse{
		Error:     err.Error(),
		Code:      errorCode(err),
		RequestID: c.GetString(middleware.RequestIDKey),
		Timestamp: time.Now().UTC(),
	}
	var syntaxErr *apperrors.QuerySyntaxError
	if errors.As(err, &syntaxErr) {
		pos := syntaxErr.Pos
		resp.Position = &pos
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err, "request_id", resp.RequestID)
		resp.Error = "internal error"
	}
	c.AbortWithStatusJSON(status, resp)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrQuerySyntax):
		return "QUERY_SYNTAX"
	case errors.Is(err, apperrors.ErrIndexNotFound):
		return "INDEX_NOT_FOUND"
	case errors.Is(err, apperrors.ErrInvalidInput):
		return "INVALID_REQUEST"
	case errors.Is(err, apperrors.ErrUnavailable):
		return "UNAVAILABLE"
	case errors.Is(err, apperrors.ErrPersistence):
		return "PERSISTENCE_FAILED"
	default:
		return "INTERNAL_ERROR"
	}
}
