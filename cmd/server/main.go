// @title           SceneForge Backend API
// @version         1.0.0
// @description     Backend API for collaborative AI scene generation. Handles credit-escrowed regeneration approvals, batch image generation, and asynchronous provider polling.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

package main

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"sceneforge-backend/internal/config"
	"sceneforge-backend/internal/credits"
	"sceneforge-backend/internal/database"
	"sceneforge-backend/internal/generation"
	"sceneforge-backend/internal/handlers"
	"sceneforge-backend/internal/logger"
	"sceneforge-backend/internal/middleware"
	"sceneforge-backend/internal/providers"
	"sceneforge-backend/internal/supabase"
	"sceneforge-backend/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLog, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLog.Sync()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.DatabaseURL == "" {
		appLog.Fatal("DATABASE_URL is required")
	}

	dbClient, err := supabase.NewDatabaseClient(cfg.DatabaseURL)
	if err != nil {
		appLog.Fatal("failed to initialize database client", "error", err)
	}
	defer dbClient.Close()

	migrator, err := database.NewMigrator(cfg.DatabaseURL, appLog)
	if err != nil {
		appLog.Fatal("failed to initialize migrator", "error", err)
	}
	if err := migrator.Run(); err != nil {
		appLog.Fatal("migration failed", "error", err)
	}
	migrator.Close()

	supabaseClient, err := supabase.NewClient(cfg)
	if err != nil {
		appLog.Fatal("failed to initialize supabase client", "error", err)
	}

	storageClient, err := supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabasePublishableKey, cfg.SupabaseStorageBucket)
	if err != nil {
		appLog.Fatal("failed to initialize storage client", "error", err)
	}

	notifier := supabase.NewNotifier(supabaseClient, appLog)

	registry := providers.NewRegistry(
		providers.NewModalClient(cfg.ModalImageEndpoint, cfg.ModalAPIKey),
		providers.NewFalClient(cfg.FalAPIBaseURL, cfg.FalAPIKey, ""),
		providers.NewKlingClient(cfg.KlingAPIBaseURL, cfg.KlingAPIKey),
	)
	poller := providers.NewPoller(appLog)

	chargeService := credits.NewChargeService(dbClient, cfg.SignupCreditGrant, appLog)
	regenService := workflow.NewRegenerationService(
		dbClient, storageClient, notifier, registry, poller, chargeService, appLog)
	batchEngine := generation.NewEngine(
		dbClient, storageClient, notifier, registry, poller, chargeService,
		cfg.BatchConcurrency, appLog)

	regenHandler := handlers.NewRegenerationHandler(regenService)
	batchHandler := handlers.NewBatchHandler(batchEngine, dbClient)
	creditsHandler := handlers.NewCreditsHandler(dbClient, cfg)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Health check (no auth)
	router.GET("/health", handlers.HealthHandler)

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg))

	// Regeneration workflow
	api.POST("/projects/:project_id/regeneration-requests", regenHandler.Create)
	api.GET("/projects/:project_id/regeneration-requests", regenHandler.List)
	api.PUT("/regeneration-requests/:request_id", regenHandler.Review)
	api.PATCH("/regeneration-requests/:request_id", regenHandler.Action)
	api.DELETE("/regeneration-requests/:request_id", regenHandler.Cancel)

	// Batch generation
	api.POST("/projects/:project_id/generation-batches", batchHandler.Submit)
	api.GET("/generation-batches/:batch_id", batchHandler.Get)
	api.DELETE("/generation-batches/:batch_id", batchHandler.Cancel)

	// Credits
	api.GET("/credits", creditsHandler.Balance)
	api.GET("/credits/transactions", creditsHandler.Transactions)

	appLog.Info("server starting", "port", cfg.Port, "environment", cfg.Environment)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		appLog.Fatal("server exited", "error", err)
	}
}
