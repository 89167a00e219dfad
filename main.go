package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sashabaranov/go-openai"

	"github.com/casevault/backend/config"
	"github.com/casevault/backend/database"
	"github.com/casevault/backend/handler"
	"github.com/casevault/backend/middleware"
	"github.com/casevault/backend/pkg/logger"
	"github.com/casevault/backend/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully")

	// Apply database migrations and open the pool
	if err := database.Migrate(cfg.Database.DSN); err != nil {
		slog.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := database.NewPool(ctx, &cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Object storage for raw evidence files
	objects, err := service.NewObjectStore(&cfg.Minio)
	if err != nil {
		slog.Error("failed to initialize object storage", "error", err)
		os.Exit(1)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		slog.Error("failed to ensure storage bucket", "error", err)
		os.Exit(1)
	}

	// OpenAI client shared by the embedding and generation paths
	openaiCfg := openai.DefaultConfig(cfg.OpenAI.APIKey)
	if cfg.OpenAI.BaseURL != "" {
		openaiCfg.BaseURL = cfg.OpenAI.BaseURL
	}
	openaiClient := openai.NewClientWithConfig(openaiCfg)

	// Core services
	evidenceStore := service.NewEvidenceStore(pool)
	vectorStore := service.NewVectorStore(pool)
	auditSink := service.NewAuditSink(pool)
	extractor := service.NewExtractor(cfg.Ingest.MaxPDFPages)
	defer extractor.Close()
	embedder := service.NewEmbeddingClient(openaiClient, &cfg.OpenAI)
	ingestSvc := service.NewIngestService(objects, evidenceStore, extractor, embedder, vectorStore, &cfg.Ingest)
	answerSvc := service.NewAnswerService(embedder, vectorStore, openaiClient, auditSink, cfg)

	// Handlers
	authHandler := handler.NewAuthHandler(cfg)
	evidenceHandler := handler.NewEvidenceHandler(objects, evidenceStore, ingestSvc, auditSink, &cfg.Ingest)
	queryHandler := handler.NewQueryHandler(answerSvc)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New() // Use New() instead of Default() to avoid default middleware

	// Add custom middleware
	router.Use(middleware.RequestID())     // Request ID for tracing
	router.Use(middleware.Recovery())      // Panic recovery
	router.Use(middleware.RequestLogger()) // Access logging
	router.Use(corsMiddleware())           // CORS

	rateLimit := middleware.RateLimit(cfg.Server.RateLimitPerMinute, time.Minute)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Public routes. Login is throttled by client IP since no user identity
	// exists yet.
	api := router.Group("/api")
	{
		api.POST("/auth/login", rateLimit, authHandler.Login)
	}

	// Protected routes. The limiter runs after auth so budgets are per user,
	// not per source address.
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	protected.Use(rateLimit)
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.POST("/cases/:caseID/evidence", evidenceHandler.Upload)
		protected.GET("/cases/:caseID/evidence", evidenceHandler.List)
		protected.GET("/cases/:caseID/evidence/:id", evidenceHandler.Get)
		protected.GET("/cases/:caseID/evidence/:id/status", evidenceHandler.GetStatus)
		protected.GET("/cases/:caseID/evidence/:id/download", evidenceHandler.Download)
		protected.POST("/cases/:caseID/query", queryHandler.Ask)
	}

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
