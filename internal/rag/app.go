package rag

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/sidi-cnm/supnum-backend/internal/rag/biz"
	"github.com/sidi-cnm/supnum-backend/internal/rag/handler"
	"github.com/sidi-cnm/supnum-backend/internal/rag/router"
	"github.com/sidi-cnm/supnum-backend/internal/rag/store"
	"github.com/sidi-cnm/supnum-backend/pkg/app"
	"github.com/sidi-cnm/supnum-backend/pkg/component/metadb"
	"github.com/sidi-cnm/supnum-backend/pkg/component/milvus"
	"github.com/sidi-cnm/supnum-backend/pkg/component/redis"
	"github.com/sidi-cnm/supnum-backend/pkg/llm"

	// 导入 LLM 供应商以自动注册
	_ "github.com/sidi-cnm/supnum-backend/pkg/llm/ollama"
	_ "github.com/sidi-cnm/supnum-backend/pkg/llm/openai"
)

// Name is the name of the application.
const Name = "supnum-rag"

const description = `SupNum Knowledge Base Service

The RAG (Retrieval-Augmented Generation) backend for the SupNum student
assistant. It indexes institutional documents into a relational metadata
store and a Milvus vector collection, retrieves relevant chunks by
semantic similarity, and answers student questions in French through an
LLM provider.`

// NewApp creates a new application instance.
func NewApp() *app.App {
	opts := NewOptions()

	return app.NewApp(
		app.WithName(Name),
		app.WithShortDescription("SupNum knowledge base service"),
		app.WithDescription(description),
		app.WithOptions(opts),
		app.WithRunFunc(func() error {
			return Run(opts)
		}),
	)
}

// Run assembles and runs the knowledge base service with the given options.
func Run(opts *Options) error {
	fmt.Printf("Starting %s...\n", Name)

	// 1. 初始化日志
	opts.Log.AddInitialField("service.name", Name)
	opts.Log.AddInitialField("service.version", app.GetVersion())
	if err := opts.Log.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting knowledge base service...")

	// 2. 初始化元数据库
	dbClient, err := metadb.New(opts.Metadb)
	if err != nil {
		return fmt.Errorf("failed to initialize metadata database: %w", err)
	}
	factory := store.NewFactory(dbClient.DB())
	if err := factory.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to migrate metadata schema: %w", err)
	}
	logger.Infow("Metadata database initialized", "driver", opts.Metadb.Driver)

	// 3. 初始化向量存储
	milvusClient, err := milvus.New(opts.Milvus)
	if err != nil {
		return fmt.Errorf("failed to initialize milvus: %w", err)
	}
	vectorStore := store.NewMilvusStore(milvusClient, opts.RAG.Collection)
	if err := vectorStore.EnsureCollection(context.Background(), opts.RAG.EmbeddingDim); err != nil {
		return fmt.Errorf("failed to ensure milvus collection: %w", err)
	}
	logger.Infow("Vector store initialized",
		"collection", opts.RAG.Collection,
		"dimension", opts.RAG.EmbeddingDim,
	)

	// 4. 初始化查询缓存（Redis 不可用时降级为直通）
	queryCache := biz.NewQueryCache(nil, nil)
	var redisClose func()
	if opts.Cache.Enabled {
		redisClient, err := redis.New(opts.Cache.Redis)
		if err != nil {
			logger.Warnw("failed to connect to redis, cache will be disabled", "error", err.Error())
		} else {
			queryCache = biz.NewQueryCache(redisClient.Client(), &biz.QueryCacheConfig{
				Enabled:   true,
				TTL:       opts.Cache.TTL,
				KeyPrefix: opts.Cache.KeyPrefix,
			})
			redisClose = func() { _ = redisClient.Close() }
			logger.Infow("Redis cache initialized",
				"host", opts.Cache.Redis.Host,
				"port", opts.Cache.Redis.Port,
				"ttl", opts.Cache.TTL,
			)
		}
	} else {
		logger.Info("Cache is disabled")
	}

	// 5. 初始化 LLM 供应商
	// 嵌入后端惰性初始化：首次嵌入请求时才建立连接。
	embedder := biz.NewEmbedder(func() (llm.EmbeddingProvider, error) {
		return llm.NewEmbeddingProvider(opts.Embedding.Provider, opts.Embedding.ToConfigMap())
	}, &biz.EmbedderConfig{
		Dimension: opts.RAG.EmbeddingDim,
		BatchSize: opts.RAG.EmbedBatchSize,
	})
	logger.Infow("Embedding provider configured",
		"provider", opts.Embedding.Provider,
		"model", opts.Embedding.Model,
	)

	chatProvider, err := llm.NewChatProvider(opts.Chat.Provider, opts.Chat.ToConfigMap())
	if err != nil {
		return fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	generator := biz.NewGenerator(chatProvider, &biz.GeneratorConfig{
		SystemPrompt: opts.RAG.SystemPrompt,
	})
	logger.Infow("Chat provider initialized",
		"provider", opts.Chat.Provider,
		"model", opts.Chat.Model,
	)

	// 6. 初始化 Biz 层
	ragService := biz.NewRAGService(factory, vectorStore, embedder, generator, queryCache, &biz.ServiceConfig{
		IndexerConfig: &biz.IndexerConfig{
			ChunkSize:    opts.RAG.ChunkSize,
			ChunkOverlap: opts.RAG.ChunkOverlap,
		},
		RetrieverConfig: &biz.RetrieverConfig{
			TopK:           opts.RAG.TopK,
			ScoreThreshold: opts.RAG.ScoreThreshold,
		},
		GeneratorConfig: &biz.GeneratorConfig{
			SystemPrompt: opts.RAG.SystemPrompt,
		},
		QueryCacheConfig: &biz.QueryCacheConfig{
			Enabled:   opts.Cache.Enabled,
			TTL:       opts.Cache.TTL,
			KeyPrefix: opts.Cache.KeyPrefix,
		},
	})
	logger.Infow("RAG service initialized", "cache.enabled", opts.Cache.Enabled)

	// 7. 初始化 Handler 层与路由
	ragHandler := handler.NewRAGHandler(ragService)
	srv := newHTTPServer(opts.HTTP)
	router.Register(srv.engine, ragHandler)

	// 8. 启动服务器
	logger.Info("Knowledge base service is ready")
	return srv.Run(func() {
		embedder.Close()
		if redisClose != nil {
			redisClose()
		}
		_ = milvusClient.Close(context.Background())
		_ = dbClient.Close()
	})
}
