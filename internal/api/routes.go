package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/devnolife/sakti-dashboard-sub017/internal/api/handlers"
	"github.com/devnolife/sakti-dashboard-sub017/internal/api/middleware"
	"github.com/devnolife/sakti-dashboard-sub017/internal/config"
	"github.com/devnolife/sakti-dashboard-sub017/internal/services"
)

type Router struct {
	engine         *gin.Engine
	logger         *zap.Logger
	cfg            *config.Configuration
	requestHandler *handlers.RequestHandler
	verifyHandler  *handlers.VerifyHandler
	auditHandler   *handlers.AuditHandler
	authMiddleware *middleware.AuthMiddleware
	reqMiddleware  *middleware.RequestMiddleware
}

func NewRouter(
	cfg *config.Configuration,
	logger *zap.Logger,
	workflowService *services.WorkflowService,
	verificationService *services.VerificationService,
	auditService *services.AuditService,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	reqMiddleware := middleware.NewRequestMiddleware(logger)
	engine.Use(reqMiddleware.ProcessRequest())
	engine.Use(reqMiddleware.RecoverPanic())
	engine.Use(middleware.Metrics())

	return &Router{
		engine:         engine,
		logger:         logger,
		cfg:            cfg,
		requestHandler: handlers.NewRequestHandler(workflowService, logger),
		verifyHandler:  handlers.NewVerifyHandler(verificationService, logger),
		auditHandler:   handlers.NewAuditHandler(auditService, logger),
		authMiddleware: middleware.NewAuthMiddleware(cfg.Auth.JWTSecret),
		reqMiddleware:  reqMiddleware,
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "up", "name": "surat-service"})
	})
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public verification link. Unauthenticated by design; rate limited
	// because the counter is scrapeable.
	r.engine.GET("/verify/:data/:signature",
		middleware.RateLimit(r.cfg.Server.VerifyRatePerMinute, time.Minute),
		r.verifyHandler.Verify)

	v1 := r.engine.Group("/api/v1")
	v1.Use(r.authMiddleware.RequireAuth())
	{
		v1.POST("/requests", r.requestHandler.Submit)
		v1.GET("/requests/mine", r.requestHandler.Mine)
		v1.GET("/requests/:id", r.requestHandler.Get)
		v1.DELETE("/requests/:id", r.requestHandler.Cancel)
		v1.POST("/requests/:id/forward", r.requestHandler.Forward)
		v1.POST("/requests/:id/reject", r.requestHandler.Reject)
		v1.POST("/requests/:id/complete", r.requestHandler.Complete)
		v1.POST("/requests/:id/sign", r.requestHandler.Sign)
		v1.GET("/requests/:id/verification-link", r.requestHandler.VerificationLink)
		v1.POST("/requests/:id/revoke", r.requestHandler.Revoke)
		v1.POST("/requests/:id/signatures/revoke", r.requestHandler.RevokeSignature)
		v1.GET("/queue/:role", r.requestHandler.Queue)
		v1.GET("/audit", r.auditHandler.Export)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// HTTPServer builds the server with the configured connection timeouts.
// Callers own its lifecycle; main runs it in a goroutine and drains it with
// Shutdown on SIGINT/SIGTERM.
func (r *Router) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      r.engine,
		ReadTimeout:  r.cfg.Server.ReadTimeout,
		WriteTimeout: r.cfg.Server.WriteTimeout,
		IdleTimeout:  r.cfg.Server.IdleTimeout,
	}
}
