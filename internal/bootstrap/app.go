package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"ragstack/internal/app"
	"ragstack/internal/cache"
	"ragstack/internal/config"
	"ragstack/internal/filestore"
	"ragstack/internal/ingest"
	"ragstack/internal/logging"
	"ragstack/internal/model"
	mysqlClient "ragstack/internal/platform/mysql"
	rabbitmqClient "ragstack/internal/platform/rabbitmq"
	redisClient "ragstack/internal/platform/redis"
	"ragstack/internal/repository"
	"ragstack/internal/vectorstore"
	"ragstack/internal/worker"
)

type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	MySQL        *gorm.DB
	Redis        *redis.Client
	MQConn       *amqp.Connection
	Vectors      *vectorstore.Client
	Files        *filestore.Store
	AI           *app.AIAdapter
	AnswerCache  *cache.AnswerCache
	IngestWorker *worker.IngestWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	logger := logging.New()
	slog.SetDefault(logger)

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(&model.User{}, &model.RAGInstance{}, &model.Document{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	vectors, err := vectorstore.New(vectorstore.Config{
		Host:   cfg.Qdrant.Host,
		Port:   cfg.Qdrant.Port,
		APIKey: cfg.Qdrant.APIKey,
		UseTLS: cfg.Qdrant.UseTLS,
	})
	if err != nil {
		return nil, err
	}

	files, err := filestore.New(cfg.Storage.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("init file store failed: %w", err)
	}

	aiAdapter := app.NewAIAdapter(cfg.LLM)
	answerCache := cache.NewAnswerCache(
		redisCli,
		time.Duration(cfg.Redis.AnswerCacheTTLSeconds)*time.Second,
	)

	instanceRepo := repository.NewRAGInstanceRepository(mysqlDB)
	documentRepo := repository.NewDocumentRepository(mysqlDB)

	embedLimiter := rate.NewLimiter(rate.Limit(cfg.RAG.EmbedRatePerSecond), cfg.RAG.EmbedRatePerSecond)
	ingestPipeline := ingest.NewPipeline(
		instanceRepo,
		documentRepo,
		files,
		aiAdapter,
		vectors,
		embedLimiter,
		ingest.Config{
			EmbedBatchSize:    cfg.RAG.EmbedBatchSize,
			MaxConcurrentDocs: cfg.RAG.MaxConcurrentDocs,
			ReconcileAttempts: cfg.RAG.ReconcileAttempts,
			ReconcileBackoff:  time.Duration(cfg.RAG.ReconcileBackoffMillis) * time.Millisecond,
		},
		logger,
	)

	ingestWorker := worker.NewIngestWorker(mqConn, ingestPipeline, answerCache, cfg.RabbitMQ.IngestQueue, logger)
	if err := ingestWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start ingest worker failed: %w", err)
	}

	return &App{
		Config:       cfg,
		Logger:       logger,
		MySQL:        mysqlDB,
		Redis:        redisCli,
		MQConn:       mqConn,
		Vectors:      vectors,
		Files:        files,
		AI:           aiAdapter,
		AnswerCache:  answerCache,
		IngestWorker: ingestWorker,
		StartedAt:    time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Vectors != nil {
		if err := a.Vectors.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
