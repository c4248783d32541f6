package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/devnolife/sakti-dashboard-sub017/internal/api"
	"github.com/devnolife/sakti-dashboard-sub017/internal/config"
	"github.com/devnolife/sakti-dashboard-sub017/internal/db"
	"github.com/devnolife/sakti-dashboard-sub017/internal/services"
	"github.com/devnolife/sakti-dashboard-sub017/internal/signing"
	"github.com/devnolife/sakti-dashboard-sub017/internal/store"
	"github.com/devnolife/sakti-dashboard-sub017/internal/workflow"
	"github.com/devnolife/sakti-dashboard-sub017/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()
	zap.ReplaceGlobals(zapLogger)

	cfg.LogConfig(zapLogger)

	var st store.Store
	var database *gorm.DB
	switch cfg.Database.Driver {
	case "memory":
		zapLogger.Warn("using in-memory store, data will not survive a restart")
		st = store.NewMemoryStore()
	default:
		database, err = db.Initialize(cfg)
		if err != nil {
			zapLogger.Fatal("failed to initialize database", zap.Error(err))
		}
		st = store.NewGormStore(database)
	}

	var retired []signing.Key
	for _, k := range cfg.Signing.RetiredKeys {
		retired = append(retired, signing.Key{
			ID:        k.ID,
			Secret:    []byte(k.Secret),
			RetiredAt: k.RetiredAt,
		})
	}
	keyring, err := signing.NewKeyring(signing.Key{
		ID:     cfg.Signing.ActiveKeyID,
		Secret: []byte(cfg.Signing.ActiveSecret),
	}, retired, cfg.Signing.GracePeriod)
	if err != nil {
		zapLogger.Fatal("failed to build signing keyring", zap.Error(err))
	}

	registry, err := workflow.NewRegistry(workflow.Defaults())
	if err != nil {
		zapLogger.Fatal("failed to build workflow registry", zap.Error(err))
	}

	auditService := services.NewAuditService(st, zapLogger)
	notifier := services.NewLogNotifier(zapLogger)
	workflowService := services.NewWorkflowService(st, registry, keyring, auditService, notifier, zapLogger)
	verificationService := services.NewVerificationService(st, keyring, zapLogger)

	router := api.NewRouter(cfg, zapLogger, workflowService, verificationService, auditService)
	router.SetupRoutes()

	server := router.HTTPServer(":" + cfg.Server.Port)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server failed", zap.Error(err))
		}
	}()
	zapLogger.Info("server started", zap.String("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		zapLogger.Error("forced shutdown", zap.Error(err))
	}

	if database != nil {
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	}
	zapLogger.Info("server stopped")
}
