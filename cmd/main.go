package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"document-intelligence-platform/internal/ai"
	"document-intelligence-platform/internal/config"
	"document-intelligence-platform/internal/database"
	"document-intelligence-platform/internal/logger"
	"document-intelligence-platform/internal/telemetry"
	"document-intelligence-platform/middleware"
	"document-intelligence-platform/routes"
	"document-intelligence-platform/services"
)

func main() {
	startedAt := time.Now()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Initialize tracing
	shutdownTracer, err := telemetry.InitTracer("document-intelligence-api")
	if err != nil {
		log.Printf("Failed to initialize tracer: %v", err)
	} else {
		defer shutdownTracer()
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Printf("Failed to initialize metrics: %v", err)
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	// Connect to Redis (rate limiting + hot analysis cache)
	redisClient, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()

	// Asynq client for enqueueing analysis tasks
	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer queueClient.Close()

	// Storage and services
	blobs, err := services.NewDiskBlobStore(cfg.FileStorageDir)
	if err != nil {
		log.Fatal("Failed to initialize file storage:", err)
	}

	store := database.NewStore(mongoClient, cfg.DBName)
	cache := services.NewMongoAnalysisCache(store.AnalysesCollection(), redisClient,
		time.Duration(cfg.AnalysisCacheTTLSecs)*time.Second, metrics)

	engine := ai.NewOllamaClient(cfg, metrics)
	ocr := services.NewOCRClient(cfg)
	extractor := services.NewExtractor(cfg, ocr)
	chunker := services.NewChunkingService(cfg.MaxChunkSize, cfg.MinChunkSize)

	orchestrator := services.NewOrchestrator(store, blobs, cache, engine, extractor, chunker,
		services.OrchestratorOptions{
			ModelName:         cfg.OllamaModel,
			MaxAttempts:       cfg.AnalysisMaxAttempts,
			RetryBackoff:      time.Duration(cfg.AnalysisBackoffSecs) * time.Second,
			EngineConcurrency: cfg.EngineConcurrency,
			Metrics:           metrics,
		})
	comparator := services.NewComparator(store, cache, engine)
	exporter := services.NewExportService(store, metrics)

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	if metrics != nil {
		router.Use(middleware.MetricsMiddleware(metrics))
	}
	router.Use(middleware.RateLimitMiddleware(redisClient, cfg))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Requested-With"}
	router.Use(cors.New(corsConfig))

	// Setup routes
	routes.SetupSystemRoutes(router, store, engine, ocr, startedAt)
	routes.SetupDocumentRoutes(router, cfg, store, blobs, queueClient, orchestrator)
	routes.SetupCompareRoutes(router, comparator)
	routes.SetupExportRoutes(router, exporter)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
