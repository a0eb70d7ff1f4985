package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/attendix/attendix/internal/common/errors"
)

// Handler exposes the decision review surface over HTTP.
type Handler struct {
	searcher *Searcher
	logger   *zap.Logger
}

// NewHandler creates the audit review handler.
func NewHandler(searcher *Searcher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		searcher: searcher,
		logger:   logger.With(zap.String("component", "audit_handler")),
	}
}

// RegisterRoutes mounts the review routes on a versioned group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/audit/decisions", h.Decisions)
}

// Decisions handles GET /v1/audit/decisions. Filters: user_id, outcome,
// from/to (RFC3339), limit.
func (h *Handler) Decisions(c *gin.Context) {
	q := SearchQuery{
		UserID:  c.Query("user_id"),
		Outcome: c.Query("outcome"),
	}

	if raw := c.Query("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			apperrors.HandleError(c, apperrors.ValidationError("from must be RFC3339"))
			return
		}
		q.Since = ts
	}
	if raw := c.Query("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			apperrors.HandleError(c, apperrors.ValidationError("to must be RFC3339"))
			return
		}
		q.Until = ts
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			apperrors.HandleError(c, apperrors.ValidationError("limit must be an integer"))
			return
		}
		q.Limit = n
	}

	recs, total, err := h.searcher.Search(q)
	if err != nil {
		h.logger.Error("decision search failed", zap.Error(err))
		apperrors.HandleError(c, apperrors.DatabaseError("search decisions", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"decisions": recs,
		"count":     len(recs),
		"total":     total,
	})
}
