// Package main 文档问答服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"doc-qa-api/internal/application/qa"
	"doc-qa-api/internal/application/retrieval"
	"doc-qa-api/internal/config"
	"doc-qa-api/internal/domain/entity"
	"doc-qa-api/internal/infrastructure/embedding"
	"doc-qa-api/internal/infrastructure/extract"
	"doc-qa-api/internal/infrastructure/llm"
	"doc-qa-api/internal/infrastructure/messaging"
	"doc-qa-api/internal/infrastructure/persistence/milvus"
	"doc-qa-api/internal/infrastructure/persistence/postgres"
	"doc-qa-api/internal/infrastructure/persistence/redis"
	"doc-qa-api/internal/interfaces/http/handler"
	"doc-qa-api/internal/interfaces/http/router"
	einoobs "doc-qa-api/internal/observability/eino"
	"doc-qa-api/pkg/logger"
	"doc-qa-api/pkg/tracer"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting doc-qa-api",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	// 初始化追踪
	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		log.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// 初始化 Eino 全局 callbacks（追踪/指标）
	einoobs.Init()

	// Postgres
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to connect postgres", err)
	}
	defer pgClient.Close()

	if err := pgClient.DB().AutoMigrate(
		&entity.Document{},
		&entity.DocumentChunk{},
		&entity.Session{},
		&entity.SessionTurn{},
	); err != nil {
		logger.Fatal(ctx, "failed to migrate schema", err)
	}

	// Redis
	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to connect redis", err)
	}
	defer redisClient.Close()

	// Milvus
	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Fatal(ctx, "failed to connect milvus", err)
	}
	defer milvusClient.Close()

	// 仓储，文档读路径走 cache-aside
	docCache := redis.NewDocumentCache(redisClient, cfg.Cache.DocumentTTL)
	docRepo := redis.NewCachedDocumentRepository(postgres.NewDocumentRepository(pgClient), docCache)
	sessionRepo := postgres.NewSessionRepository(pgClient)
	vectorRepo := milvus.NewRetrievalVectorRepository(
		milvus.NewRepository(milvusClient, cfg.Embedding.Dimension),
	)
	embeddingCache := redis.NewEmbeddingCache(redisClient, cfg.Cache.QueryEmbeddingTTL)

	// 向量化
	einoEmbedder, err := embedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Fatal(ctx, "failed to init embedder", err)
	}
	batchEmbedder := retrieval.NewBatchEmbedder(einoEmbedder, retrieval.BatchEmbedderOptions{
		Model:             cfg.Embedding.Model,
		BatchSize:         cfg.Embedding.BatchSize,
		Timeout:           cfg.Embedding.Timeout,
		MaxRetries:        cfg.Embedding.MaxRetries,
		BackoffInitial:    cfg.Embedding.Backoff.Initial,
		BackoffMax:        cfg.Embedding.Backoff.Max,
		BackoffMultiplier: cfg.Embedding.Backoff.Multiplier,
	})

	// 检索与索引
	indexer := retrieval.NewIndexer(batchEmbedder, vectorRepo, docRepo,
		cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap, cfg.Embedding.Dimension)
	engine := retrieval.NewEngine(batchEmbedder, vectorRepo, docRepo, embeddingCache,
		cfg.Retrieval.TopK, cfg.Retrieval.FallbackTopN, cfg.Retrieval.MinTokenRunes)

	// 回答生成
	generator := llm.NewGenerator(llm.NewEinoFactory(cfg))

	// 文本抽取
	extractor := extract.NewRegistry(
		extract.NewPlainTextExtractor(),
		extract.NewPDFExtractor(cfg.Upload.PDFToolPath),
	)

	// 问答服务
	svc := qa.NewService(qa.Config{
		UploadDir:      cfg.Upload.Dir,
		MaxUploadBytes: int64(cfg.Upload.MaxSizeMB) << 20,
		EmbeddingModel: cfg.Embedding.Model,
		EmbeddingDim:   cfg.Embedding.Dimension,
	}, docRepo, sessionRepo, indexer, engine, extractor, generator)

	// 文档事件：发布到 Redis Stream，消费侧按事件失效文档缓存
	producer := messaging.NewProducer(redisClient.Redis(), 0)
	svc.SetEventPublisher(messaging.NewDocumentEventPublisher(producer))

	consumer := messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:       messaging.StreamDocumentEvents,
		Group:        messaging.ConsumerGroupCacheInvalidator,
		ConsumerName: fmt.Sprintf("%s-%d", cfg.App.Name, os.Getpid()),
	})
	consumer.RegisterHandler(qa.EventDocumentDeleted, func(ctx context.Context, msg *messaging.Message) error {
		return docCache.InvalidateDocument(ctx, msg.DocumentID)
	})
	consumer.RegisterHandler(qa.EventDocumentReady, func(ctx context.Context, msg *messaging.Message) error {
		// 重建完成后旧缓存同样失效
		return docCache.InvalidateDocument(ctx, msg.DocumentID)
	})
	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start document event consumer", err)
	}
	defer consumer.Stop()
	go consumer.MonitorDLQ(ctx, 100)

	// 路由
	r := router.New(cfg, router.Handlers{
		Health:   handler.NewHealthHandler(pgClient, redisClient, milvusClient),
		Document: handler.NewDocumentHandler(svc),
		Session:  handler.NewSessionHandler(svc),
		Query:    handler.NewQueryHandler(svc),
	}, redis.NewRateLimiter(redisClient))

	// 创建 HTTP 服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	// 启动服务器
	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
