package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"textbook-rag-platform/internal/ai"
	"textbook-rag-platform/internal/config"
	"textbook-rag-platform/internal/extract"
	"textbook-rag-platform/internal/logger"
	"textbook-rag-platform/internal/pipeline"
	"textbook-rag-platform/internal/queue"
	"textbook-rag-platform/internal/store"
	"textbook-rag-platform/internal/telemetry"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if cfg.TracingEnabled {
		stop, err := telemetry.InitTracer("textbook-rag-worker", cfg.OTLPEndpoint)
		if err != nil {
			logger.Warn("tracing disabled", "error", err)
		} else {
			defer stop()
		}
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(ctx)
	}()

	geminiClient, err := ai.NewClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiTier)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer geminiClient.Close()

	journal, err := pipeline.NewFailureJournal(cfg.LogsDir)
	if err != nil {
		log.Fatal("Failed to open failure journal:", err)
	}

	ingestor, err := pipeline.NewIngestor(
		extract.New(),
		ai.NewTextEmbedder(geminiClient, cfg.TextEmbeddingModel),
		ai.NewImageEmbedder(geminiClient, cfg.ImageEmbeddingModel, cfg.MinImageDim),
		store.New(mongoClient.Database(cfg.DBName), cfg),
		journal,
		cfg,
	)
	if err != nil {
		log.Fatal("Failed to build ingestor:", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	// Concurrency stays at 1: the ingestion pipeline is sequential by design
	// and the failure journal depends on a single writer per process.
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 1,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(ingestor)
	mux := asynq.NewServeMux()
	processor.Register(mux)

	logger.Info("starting ingestion worker", "redis", redisOpt.Addr)
	if err := server.Run(mux); err != nil {
		log.Fatal("Worker failed:", err)
	}
}
