// Package app собирает зависимости сервиса и управляет их жизненным циклом.
package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jimlawless/whereami"

	config "github.com/DRSN-tech/visual-search/internal/cfg"
	"github.com/DRSN-tech/visual-search/internal/centroid"
	"github.com/DRSN-tech/visual-search/internal/clip"
	"github.com/DRSN-tech/visual-search/internal/colors"
	"github.com/DRSN-tech/visual-search/internal/infrastructure/inference"
	"github.com/DRSN-tech/visual-search/internal/infrastructure/kafka"
	s3Repo "github.com/DRSN-tech/visual-search/internal/repository/minio"
	"github.com/DRSN-tech/visual-search/internal/repository/pgdb"
	qdrantRepo "github.com/DRSN-tech/visual-search/internal/repository/qdrant"
	redisRepo "github.com/DRSN-tech/visual-search/internal/repository/redis"
	"github.com/DRSN-tech/visual-search/internal/usecase"
	"github.com/DRSN-tech/visual-search/pkg/clients"
	"github.com/DRSN-tech/visual-search/pkg/closer"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/jitter"
	"github.com/DRSN-tech/visual-search/pkg/logger"
	"github.com/DRSN-tech/visual-search/pkg/postgres"
)

// idleThresholdKey — ключ system_config с порогом выгрузки модели в секундах.
const idleThresholdKey = "clip_model_idle_timeout_seconds"

// App — воркер обработки изображений. Поиск отдаётся наружу как
// использование Search(); HTTP/gRPC-доставка живёт в отдельном сервисе.
type App struct {
	cfg    *config.Config
	logger logger.Logger
	closer *closer.Closer

	manager      *clip.Manager
	searchUC     usecase.SearchUC
	processUC    usecase.ProcessUC
	imageRepo    *pgdb.ImageRepo
	outboxWorker *kafka.OutboxWorker

	wg sync.WaitGroup
}

func NewApp(cfg *config.Config, log logger.Logger) (*App, error) {
	cl := closer.NewCloser(5 * time.Second)

	db, err := initPGDB(log, cfg)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	cl.Add(func(ctx context.Context) error {
		db.Close()
		return nil
	})

	catalogRepo := pgdb.NewCatalogRepo(db.Pool)
	categoryRepo := pgdb.NewCategoryRepo(db.Pool)
	imageRepo := pgdb.NewImageRepo(db.Pool)
	colorMappingRepo := pgdb.NewColorMappingRepo(db.Pool)
	outboxRepo := pgdb.NewOutboxEventRepo(db.Pool)

	minioClient, err := clients.NewMinIOClient(cfg.Minio)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	minioCtx, minioCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = clients.EnsureBucket(minioCtx, minioClient, cfg.Minio.BucketName)
	minioCancel()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	blobRepo := s3Repo.NewBlobRepo(minioClient, cfg.Minio)

	qdrantClient, err := clients.NewQdrantClient(cfg.Qdrant)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	cl.Add(func(ctx context.Context) error {
		return qdrantClient.Client.Close()
	})

	qdrantCtx, qdrantCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = clients.EnsureCollection(qdrantCtx, qdrantClient)
	qdrantCancel()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	embeddingRepo := qdrantRepo.NewEmbeddingRepo(qdrantClient.Client, cfg.Qdrant)

	redisClient := clients.NewRedisClient(cfg.Redis)
	redisCtx, redisCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = redisClient.Ping(redisCtx)
	redisCancel()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	cl.Add(func(ctx context.Context) error {
		return redisClient.Client.Close()
	})
	queryCache := redisRepo.NewQueryCacheRepo(redisClient, cfg.Redis, log)

	inferenceClient := inference.NewClient(inference.Config{
		BaseURL:       cfg.Inference.BaseURL,
		Timeout:       cfg.Inference.Timeout,
		MaxConcurrent: cfg.Inference.MaxConcurrent,
	})

	thresholds := clip.NewThresholdCache(func(ctx context.Context) (time.Duration, error) {
		seconds, err := catalogRepo.SystemConfigSeconds(ctx, idleThresholdKey)
		if err != nil {
			return 0, err
		}
		return time.Duration(seconds) * time.Second, nil
	})

	manager := clip.NewManager(inferenceClient, cfg.Clip.ModelID, thresholds, log)
	cl.Add(func(ctx context.Context) error {
		return manager.Stop(ctx)
	})

	generator := clip.NewGenerator(manager, log)

	normalizer := colors.NewNormalizer(inferenceClient, &colorEmbedder{generator: generator}, log)
	learning := colors.NewLearning(colorMappingRepo, normalizer, log)

	centroids := centroid.NewCache(categoryRepo, imageRepo, embeddingRepo, log)

	searchUC := usecase.NewSearchUC(
		generator,
		centroids,
		catalogRepo,
		categoryRepo,
		embeddingRepo,
		queryCache,
		log,
	)

	processUC := usecase.NewProcessUC(
		imageRepo,
		blobRepo,
		catalogRepo,
		categoryRepo,
		embeddingRepo,
		outboxRepo,
		centroids,
		learning,
		generator,
		db.Pool,
		cfg.Clip.ModelID,
		log,
	)

	producer, err := kafka.NewProducer(log, cfg.Kafka)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	cl.Add(func(ctx context.Context) error {
		return producer.Close()
	})

	if err := producer.EnsureTopic(10 * time.Second); err != nil {
		// outbox добьёт события, когда брокер поднимется
		log.Warnf("ensure kafka topic: %v", err)
	}

	outboxWorker := kafka.NewOutboxWorker(outboxRepo, log, producer, db.Dsn)
	cl.Add(func(ctx context.Context) error {
		outboxWorker.Stop()
		return nil
	})

	return &App{
		cfg:          cfg,
		logger:       log,
		closer:       cl,
		manager:      manager,
		searchUC:     searchUC,
		processUC:    processUC,
		imageRepo:    imageRepo,
		outboxWorker: outboxWorker,
	}, nil
}

// Search отдаёт поисковый usecase встраивающему процессу.
func (a *App) Search() usecase.SearchUC {
	return a.searchUC
}

// Run запускает фоновые циклы и блокируется до сигнала остановки.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.manager.Start()
	a.outboxWorker.Start(ctx)

	a.wg.Add(1)
	go a.pollPendingImages(ctx)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	<-shutdown
	a.logger.Infof("Received shutdown signal, stopping gracefully...")

	cancel()
	a.wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := a.closer.Close(shutdownCtx); err != nil {
		a.logger.Errorf(err, "shutdown finished with errors")
		return err
	}

	a.logger.Infof("Application shutdown complete")
	return nil
}

// pollPendingImages периодически обрабатывает необработанные изображения.
// Интервал джиттерится, чтобы реплики воркера не ходили в базу синхронно.
func (a *App) pollPendingImages(ctx context.Context) {
	defer a.wg.Done()

	for {
		timer := time.NewTimer(jitter.Duration(a.cfg.Worker.PollInterval, jitter.DefaultJitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		clientIDs, err := a.imageRepo.ClientsWithPendingImages(ctx)
		if err != nil {
			a.logger.Warnf("list clients with pending images: %v", err)
			continue
		}

		for _, clientID := range clientIDs {
			res, err := a.processUC.ProcessPendingImages(ctx, &usecase.ProcessPendingReq{
				ClientID: clientID,
				Industry: a.cfg.Worker.Industry,
				Limit:    a.cfg.Worker.BatchSize,
			})
			if err != nil {
				a.logger.Warnf("process pending images for client %d: %v", clientID, err)
				continue
			}
			if res.Processed > 0 || res.Failed > 0 {
				a.logger.Infof(
					"client %d: processed %d, failed %d, refreshed %d categories",
					clientID, res.Processed, res.Failed, len(res.TouchedCategories),
				)
			}
		}
	}
}

// colorEmbedder адаптирует генератор эмбеддингов к сравнению цветов.
type colorEmbedder struct {
	generator *clip.Generator
}

func (c *colorEmbedder) EmbedColor(ctx context.Context, text string) ([]float32, error) {
	vector, _, err := c.generator.FromText(ctx, text)
	return vector, err
}

func initPGDB(log logger.Logger, cfg *config.Config) (*postgres.PgDatabase, error) {
	db, err := postgres.Connect(cfg.Db)
	if err != nil {
		log.Errorf(err, "failed to connect to database")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if err := db.RunMigrations(log); err != nil {
		log.Errorf(err, "failed to run migrations")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if err := db.Ping(); err != nil {
		log.Errorf(err, "failed to ping database")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return db, nil
}
