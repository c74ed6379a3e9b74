// Standalone ingestion/evaluation worker. Runs the same task handlers as the
// API process but serves no client-facing routes, so queue throughput can be
// scaled independently of the HTTP tier.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saga-labs/lexrag/internal/chunking"
	"github.com/saga-labs/lexrag/internal/circuitbreaker"
	"github.com/saga-labs/lexrag/internal/config"
	"github.com/saga-labs/lexrag/internal/db"
	"github.com/saga-labs/lexrag/internal/embeddings"
	"github.com/saga-labs/lexrag/internal/evaluation"
	"github.com/saga-labs/lexrag/internal/extract"
	"github.com/saga-labs/lexrag/internal/health"
	"github.com/saga-labs/lexrag/internal/ingestion"
	"github.com/saga-labs/lexrag/internal/llm"
	"github.com/saga-labs/lexrag/internal/progress"
	"github.com/saga-labs/lexrag/internal/retrieval"
	"github.com/saga-labs/lexrag/internal/taskqueue"
	"github.com/saga-labs/lexrag/internal/vectorstore"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	circuitbreaker.StartMetricsCollection()

	healthMgr := health.NewManager(logger)
	adminMux := http.NewServeMux()
	healthMgr.RegisterRoutes(adminMux)
	adminMux.Handle("GET /metrics", promhttp.Handler())
	adminSrv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Service.AdminPort),
		Handler:      adminMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("Admin HTTP server listening", zap.Int("port", cfg.Service.AdminPort))
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Admin HTTP server failed", zap.Error(err))
		}
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	rdb := circuitbreaker.NewRedisWrapper(redisClient, "redis", logger)
	healthMgr.Register(health.NewRedisChecker(rdb))

	dbClient, err := db.NewClient(cfg.Postgres.DSN(), logger)
	if err != nil {
		logger.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer dbClient.Close()
	if err := dbClient.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to apply database schema", zap.Error(err))
	}
	healthMgr.Register(health.NewPostgresChecker(dbClient))

	vectors := vectorstore.NewClient(vectorstore.Config{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		Collection: cfg.Qdrant.Collection,
		Timeout:    cfg.Qdrant.Timeout,
	}, logger)
	if err := vectors.EnsureCollection(ctx, cfg.Embedder.Dimensions); err != nil {
		logger.Fatal("Failed to ensure vector collection", zap.Error(err))
	}
	healthMgr.Register(health.NewQdrantChecker(vectors))

	embedder := embeddings.NewService(embeddings.Config{
		BaseURL:    cfg.Embedder.BaseURL,
		Model:      cfg.Embedder.Model,
		Dimensions: cfg.Embedder.Dimensions,
		MaxTokens:  cfg.Embedder.MaxTokens,
		Timeout:    cfg.Embedder.Timeout,
		CacheTTL:   cfg.Embedder.CacheTTL,
		MaxLRU:     cfg.Embedder.LRUSize,
	}, embeddings.NewRedisCache(rdb), logger)

	extractor := extract.NewClient(cfg.Extractor.BaseURL, cfg.Extractor.Timeout, logger)
	propositioner := extract.NewPropositionClient(cfg.Extractor.PropositionerURL, cfg.Extractor.Timeout, logger)
	llmClient := llm.NewClient(llm.Config{APIKey: cfg.LLM.APIKey, Model: cfg.LLM.Model}, logger)

	chunkers := chunking.NewRegistry()
	recursive, err := chunking.NewRecursiveOverlap(embedder.MaxCharacters(), cfg.Chunking.OverlapRatio)
	if err != nil {
		logger.Fatal("Failed to build recursive chunker", zap.Error(err))
	}
	chunkers.Register(chunking.PipelineRecursiveOverlap, recursive)
	chunkers.Register(chunking.PipelineSemantic, chunking.NewSemantic(
		propositioner, embedder, cfg.Chunking.BufferSize, cfg.Chunking.BreakpointPercentile, logger))

	pipeline := ingestion.NewPipeline(extractor, chunkers, embedder, vectors, logger)
	tracker := progress.NewTracker(rdb, logger)

	// Evaluation runs need the full retrieval path to score questions.
	enhancer := retrieval.NewQueryEnhancer(llmClient, logger)
	reranker := retrieval.NewReranker(llmClient, logger)
	retriever := retrieval.NewEngine(embedder, vectors, enhancer, reranker, logger)
	evalEngine := evaluation.NewEngine(db.NewEvaluationStore(dbClient), extractor, retriever, llmClient, logger)

	queue := taskqueue.NewQueue(rdb, logger)
	pool := taskqueue.NewWorkerPool(queue, cfg.Queue.Workers, logger)
	taskqueue.NewHandlers(pipeline, tracker, queue, evalEngine, cfg.Queue.FinalizerBackoff, logger).Register(pool)
	pool.Start(ctx)
	logger.Info("Worker pool started", zap.Int("workers", cfg.Queue.Workers))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Admin server shutdown error", zap.Error(err))
	}
	pool.Stop()
	cancel()
	if err := redisClient.Close(); err != nil {
		logger.Warn("Redis close error", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}
