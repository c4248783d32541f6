package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/devnolife/sakti-dashboard-sub017/internal/services"
)

// VerifyHandler serves the public, unauthenticated verification link.
type VerifyHandler struct {
	verification *services.VerificationService
	logger       *zap.Logger
}

func NewVerifyHandler(verification *services.VerificationService, logger *zap.Logger) *VerifyHandler {
	return &VerifyHandler{
		verification: verification,
		logger:       logger.With(zap.String("handler", "verify")),
	}
}

// Verify resolves /verify/:data/:signature. The response is always 200 with
// a structured report; failures carry one uniform reason regardless of which
// check failed.
func (h *VerifyHandler) Verify(c *gin.Context) {
	report := h.verification.VerifyToken(
		c.Request.Context(),
		c.Param("data"),
		c.Param("signature"),
		services.ClientMeta{
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		},
	)
	c.JSON(http.StatusOK, report)
}
