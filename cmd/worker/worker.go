package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"document-intelligence-platform/internal/ai"
	"document-intelligence-platform/internal/config"
	"document-intelligence-platform/internal/database"
	"document-intelligence-platform/internal/logger"
	"document-intelligence-platform/internal/queue"
	"document-intelligence-platform/internal/telemetry"
	"document-intelligence-platform/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("document-intelligence-worker")
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

	redisClient, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()

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

	// Background maintenance: stuck-document sweep and orphan blob purge
	maintenance := services.NewMaintenanceService(store, blobs,
		time.Duration(cfg.StuckThresholdSecs)*time.Second)
	if err := maintenance.Start(
		time.Duration(cfg.StuckSweepIntervalSecs)*time.Second,
		time.Duration(cfg.OrphanPurgeIntervalSecs)*time.Second,
	); err != nil {
		log.Fatal("Failed to start maintenance scheduler:", err)
	}
	defer maintenance.Stop()

	// Redis options for Asynq
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	// Create Asynq server
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.EngineConcurrency * 2,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	// Create task processor
	processor := queue.NewTaskProcessor(orchestrator)

	// Create mux and register handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskDocumentAnalyze, processor.ProcessDocument)

	log.Println("Starting document analysis worker...")
	log.Printf("   Queues: critical(6), default(3), low(1)")
	log.Printf("   Redis: %s", redisOpt.Addr)

	// Start the server
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
