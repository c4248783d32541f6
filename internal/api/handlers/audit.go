package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/devnolife/sakti-dashboard-sub017/internal/services"
	"github.com/devnolife/sakti-dashboard-sub017/internal/store"
)

type AuditHandler struct {
	audit  *services.AuditService
	logger *zap.Logger
}

func NewAuditHandler(audit *services.AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		audit:  audit,
		logger: logger.With(zap.String("handler", "audit")),
	}
}

// Export returns a filtered, paginated page of the audit trail.
// Query parameters: actor, action, resource_id, from, to (RFC3339),
// offset, limit.
func (h *AuditHandler) Export(c *gin.Context) {
	filter := store.AuditFilter{
		Actor:      c.Query("actor"),
		Action:     c.Query("action"),
		ResourceID: c.Query("resource_id"),
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		filter.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		filter.To = t
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
			return
		}
		filter.Offset = n
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		filter.Limit = n
	}

	entries, total, err := h.audit.Export(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("audit export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export audit log"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   total,
		"offset":  filter.Offset,
	})
}
