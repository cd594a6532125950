package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jobfitai/jobfit-api/internal/api/handlers"
	"github.com/jobfitai/jobfit-api/internal/cache"
	"github.com/jobfitai/jobfit-api/internal/config"
	"github.com/jobfitai/jobfit-api/internal/core"
	db "github.com/jobfitai/jobfit-api/internal/core/database"
	"github.com/jobfitai/jobfit-api/internal/core/extract"
	"github.com/jobfitai/jobfit-api/internal/core/llm"
	"github.com/jobfitai/jobfit-api/internal/core/objectstore"
	"github.com/jobfitai/jobfit-api/internal/core/pipeline"
	"github.com/jobfitai/jobfit-api/internal/core/vectorstore"
)

// App owns every long-lived component. Postgres, S3 and Redis are optional:
// without them the service still analyzes, with in-memory vectors and no
// persistence.
type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	Cache        *cache.RedisCache
	Orchestrator *pipeline.Orchestrator
	Server       *Server

	logger *zap.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{logger: logger}

	if cfg.DatabaseURL != "" {
		dbClient, err := db.NewDatabaseClient(appCtx, cfg)
		if err != nil {
			return nil, err
		}
		a.DBClient = dbClient
		logger.Info("database initialized and ready")
	} else {
		logger.Warn("DATABASE_URL not set, running without persistence")
	}

	if cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" {
		objClient, err := objectstore.NewS3Client(appCtx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.ObjectClient = objClient
	} else {
		logger.Warn("AWS credentials not set, uploads will not be archived")
	}

	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL, logger)
		if err != nil {
			return nil, err
		}
		if err := redisCache.Ping(appCtx); err != nil {
			return nil, err
		}
		a.Cache = redisCache
		logger.Info("redis cache connected")
	} else {
		logger.Warn("REDIS_URL not set, running without cache")
	}

	registry := llm.NewRegistry(cfg)
	extractor := extract.NewDocconvExtractor(logger)

	var store core.VectorStore
	if a.DBClient != nil {
		store = vectorstore.NewPgStore(a.DBClient)
		logger.Info("vector store: pgvector")
	} else {
		store = vectorstore.NewMemoryStore()
		logger.Info("vector store: in-memory")
	}

	var sink pipeline.StatusSink
	if a.Cache != nil {
		sink = a.Cache
	}

	a.Orchestrator = pipeline.NewOrchestrator(registry, extractor, store, a.DBClient, sink, logger, pipeline.Options{
		EmbedProviderID:    cfg.EmbedProvider,
		ChunkSize:          cfg.ChunkSize,
		TopK:               cfg.TopK,
		MaxRetries:         cfg.MaxRetries,
		BackoffBase:        cfg.BackoffBase,
		ProviderTimeout:    cfg.ProviderTimeout,
		FallbackProviderID: cfg.FallbackProvider,
		FallbackModelID:    cfg.FallbackModel,
	})

	var statusReader handlers.RunStatusReader
	if a.Cache != nil {
		statusReader = a.Cache
	}
	a.Server = NewServer(cfg, logger, a.Orchestrator, a.DBClient, a.ObjectClient, extractor, statusReader)

	return a, nil
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
