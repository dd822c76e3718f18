package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"finrag/internal/ai"
	appsvc "finrag/internal/app"
	"finrag/internal/cache"
	"finrag/internal/company"
	"finrag/internal/config"
	"finrag/internal/logger"
	postgresClient "finrag/internal/platform/postgres"
	rabbitmqClient "finrag/internal/platform/rabbitmq"
	redisClient "finrag/internal/platform/redis"
	"finrag/internal/repository"
	"finrag/internal/retrieval"
	"finrag/internal/worker"
)

type Options struct {
	// Queue connects RabbitMQ and enables ingest jobs.
	Queue bool
	// StartWorker consumes ingest jobs in this process. Implies Queue.
	StartWorker bool
}

type App struct {
	Config    *config.Config
	Postgres  *gorm.DB
	Redis     *redis.Client
	MQConn    *amqp.Connection
	Retriever *retrieval.Retriever
	Search    *appsvc.SearchService
	Ingest    *appsvc.IngestService
	Jobs      *appsvc.JobService
	Auth      *appsvc.AuthService
	Worker    *worker.IngestWorker

	StartedAt time.Time
}

func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logger.New(cfg.Log.Level, cfg.Log.Format)
	if opts.StartWorker {
		opts.Queue = true
	}

	a := &App{Config: cfg, StartedAt: time.Now()}
	if err := a.init(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, opts Options) error {
	cfg := a.Config

	db, err := postgresClient.NewWithBackoff(ctx, cfg.PostgresDSN(), postgresClient.Options{
		MaxOpenConns: cfg.Postgres.MaxOpenConns,
		MaxIdleConns: cfg.Postgres.MaxIdleConns,
	}, 3)
	if err != nil {
		return err
	}
	a.Postgres = db
	if cfg.Postgres.AutoMigrate {
		if err := postgresClient.Migrate(ctx, db, cfg.Embedding.Dimension); err != nil {
			return err
		}
	}

	redisCli, err := redisClient.New(ctx, redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	switch {
	case err == nil:
		a.Redis = redisCli
	case opts.Queue:
		return err
	default:
		log.Warn().Err(err).Msg("redis unavailable, query embedding cache disabled")
	}

	embedder, err := ai.NewEmbedder(ai.EmbeddingConfig{
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init embedder failed: %w", err)
	}

	chunkRepo := repository.NewChunkRepository(db)
	a.Retriever = retrieval.NewRetriever(chunkRepo, retrieval.Options{
		Dimension: cfg.Embedding.Dimension,
		Timeout:   cfg.QueryTimeout(),
	})

	var embeddingCache appsvc.EmbeddingCache
	if a.Redis != nil {
		embeddingCache = cache.NewEmbeddingCache(a.Redis, time.Duration(cfg.Redis.EmbeddingTTLSeconds)*time.Second)
	}
	a.Search = appsvc.NewSearchService(a.Retriever, embedder, embeddingCache, appsvc.SearchConfig{
		DefaultThreshold: cfg.Retrieval.DefaultThreshold,
		DefaultLimit:     cfg.Retrieval.DefaultLimit,
		MaxLimit:         cfg.Retrieval.MaxLimit,
		RetryAttempts:    cfg.Retrieval.RetryAttempts,
		RetryBaseDelay:   cfg.RetryBaseDelay(),
	})

	var profiles appsvc.ProfileResolver
	if cfg.Finnhub.APIKey != "" {
		profiles = company.NewFinnhubResolver(cfg.Finnhub.APIKey, "")
	}
	a.Ingest = appsvc.NewIngestService(chunkRepo, repository.NewFilingRepository(db), embedder, profiles, appsvc.IngestConfig{
		ChunkSize:         cfg.Ingestion.ChunkSize,
		ChunkOverlap:      cfg.Ingestion.ChunkOverlap,
		BatchSize:         cfg.Embedding.BatchSize,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Source:            cfg.Ingestion.Source,
		Dimension:         cfg.Embedding.Dimension,
	})
	a.Auth = appsvc.NewAuthService(cfg.Auth.AdminKeyHash, cfg.Auth.JWTSecret, cfg.JWTExpiration())

	if !opts.Queue {
		return nil
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return err
	}
	a.MQConn = mqConn

	statuses := cache.NewJobStatusStore(a.Redis, time.Duration(cfg.Redis.JobStatusTTLSeconds)*time.Second)
	publisher := rabbitmqClient.NewJobPublisher(mqConn, cfg.RabbitMQ.IngestQueue)
	a.Jobs = appsvc.NewJobService(publisher, statuses, a.Ingest)

	if opts.StartWorker {
		a.Worker = worker.NewIngestWorker(mqConn, a.Jobs, cfg.RabbitMQ.IngestQueue)
		if err := a.Worker.Start(ctx); err != nil {
			return fmt.Errorf("start ingest worker failed: %w", err)
		}
	}
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Worker != nil {
		a.Worker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Postgres != nil {
		sqlDB, err := a.Postgres.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
