package usecase

import (
	"context"
	"time"

	transaction "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/DRSN-tech/visual-search/internal/clip"
	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
)

const defaultProcessBatchSize = 20

// ProcessUseCase реализует пакетную обработку загруженных изображений:
// байты из blob-хранилища, контекстный эмбеддинг, запись вектора,
// атомарная фиксация статуса с outbox-событием и пересчёт центроидов.
type ProcessUseCase struct {
	imageRepo     ImageRepository
	blobRepo      BlobRepository
	catalogRepo   CatalogRepository
	categoryRepo  CategoryRepository
	embeddingRepo EmbeddingRepository
	outboxRepo    OutboxRepository
	centroids     CentroidCache
	colorLearner  ColorLearner
	generator     EmbeddingGenerator
	dbPool        transaction.Transactional
	modelID       string
	logger        logger.Logger
}

func NewProcessUC(
	imageRepo ImageRepository,
	blobRepo BlobRepository,
	catalogRepo CatalogRepository,
	categoryRepo CategoryRepository,
	embeddingRepo EmbeddingRepository,
	outboxRepo OutboxRepository,
	centroids CentroidCache,
	colorLearner ColorLearner,
	generator EmbeddingGenerator,
	dbPool transaction.Transactional,
	modelID string,
	logger logger.Logger,
) *ProcessUseCase {
	return &ProcessUseCase{
		imageRepo:     imageRepo,
		blobRepo:      blobRepo,
		catalogRepo:   catalogRepo,
		categoryRepo:  categoryRepo,
		embeddingRepo: embeddingRepo,
		outboxRepo:    outboxRepo,
		centroids:     centroids,
		colorLearner:  colorLearner,
		generator:     generator,
		dbPool:        dbPool,
		modelID:       modelID,
		logger:        logger,
	}
}

// ProcessPendingImages обрабатывает пачку pending-изображений клиента.
// Отказ одного изображения помечает его failed и не прерывает пакет.
func (p *ProcessUseCase) ProcessPendingImages(ctx context.Context, req *ProcessPendingReq) (*ProcessPendingRes, error) {
	const op = "ProcessUseCase.ProcessPendingImages"

	if req.ClientID == 0 {
		return nil, e.Wrap(op, e.ErrClientRequired)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultProcessBatchSize
	}

	images, err := p.imageRepo.PendingImages(ctx, req.ClientID, limit)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	res := &ProcessPendingRes{}
	touched := make(map[int64]struct{})

	for _, image := range images {
		claimed, err := p.imageRepo.MarkProcessing(ctx, image.ID)
		if err != nil {
			p.logger.Warnf("claim image %d: %v", image.ID, err)
			continue
		}
		if !claimed {
			continue // изображение забрал другой воркер
		}

		categoryID, err := p.processImage(ctx, req, image)
		if err != nil {
			res.Failed++
			p.logger.Warnf("image %d failed: %v", image.ID, err)
			if markErr := p.imageRepo.MarkFailed(ctx, image.ID, err.Error()); markErr != nil {
				p.logger.Warnf("mark image %d failed: %v", image.ID, markErr)
			}
			continue
		}

		res.Processed++
		touched[categoryID] = struct{}{}
	}

	for categoryID := range touched {
		res.TouchedCategories = append(res.TouchedCategories, categoryID)
	}
	if len(res.TouchedCategories) > 0 {
		// проактивный пересчёт, чтобы следующий поиск не платил за центроиды
		p.centroids.Refresh(ctx, req.ClientID, res.TouchedCategories)
	}

	return res, nil
}

// processImage обрабатывает одно изображение и возвращает категорию продукта.
func (p *ProcessUseCase) processImage(ctx context.Context, req *ProcessPendingReq, image *domain.Image) (int64, error) {
	const op = "ProcessUseCase.processImage"

	data, err := p.blobRepo.FetchBytes(ctx, image.ObjectKey)
	if err != nil {
		return 0, e.Wrap(op, err)
	}

	product, err := p.catalogRepo.Product(ctx, req.ClientID, image.ProductID)
	if err != nil {
		return 0, e.Wrap(op, err)
	}

	promptCtx := p.promptContext(ctx, req, product)

	vector, metadata, err := p.generator.FromImage(ctx, data, promptCtx)
	if err != nil {
		return 0, e.Wrap(op, err)
	}

	embeddingID := uuid.NewString()
	payload := domain.NewPayload(req.ClientID, product.ID, product.CategoryID, image.ObjectKey, p.modelID)
	payload["method"] = metadata.Method
	payload["confidence"] = metadata.Confidence

	if err := p.embeddingRepo.Upsert(ctx, []domain.Embedding{
		*domain.NewEmbedding(embeddingID, vector, payload),
	}); err != nil {
		return 0, e.Wrap(op, err)
	}

	if err := p.commitImage(ctx, req.ClientID, image, product, embeddingID, metadata.Confidence); err != nil {
		// вектор без зафиксированного статуса — мусор, убираем сразу
		if delErr := p.embeddingRepo.Delete(ctx, []string{embeddingID}); delErr != nil {
			p.logger.Warnf("cleanup embedding %s: %v", embeddingID, delErr)
		}
		return 0, e.Wrap(op, err)
	}

	p.learnColor(ctx, req.ClientID, product)

	return product.CategoryID, nil
}

// commitImage атомарно фиксирует статус изображения и outbox-событие.
func (p *ProcessUseCase) commitImage(ctx context.Context, clientID int64, image *domain.Image, product *domain.Product, embeddingID string, confidence float64) error {
	const op = "ProcessUseCase.commitImage"

	ctx, tx, err := transaction.NewTransaction(ctx, pgx.TxOptions{}, p.dbPool)
	if err != nil {
		return e.Wrap(op, err)
	}
	defer func() {
		if err != nil && tx.IsActive() {
			tx.Rollback(ctx)
		}
	}()
	ctx = context.WithValue(ctx, "tx", tx.Transaction())

	if err = p.imageRepo.MarkCompleted(ctx, image.ID, embeddingID); err != nil {
		return e.Wrap(op, err)
	}

	eventID := uuid.NewString()
	payload, err := marshalEmbeddingsUpdated(&EmbeddingsUpdatedPayload{
		EventID:     eventID,
		OccurredAt:  time.Now().UTC().UnixNano(),
		ClientID:    clientID,
		ProductID:   product.ID,
		ImageID:     image.ID,
		EmbeddingID: embeddingID,
		ModelID:     p.modelID,
		Confidence:  confidence,
	})
	if err != nil {
		return e.Wrap(op, err)
	}

	if _, err = p.outboxRepo.Create(ctx, NewOutboxEvent(eventID, EventTypeEmbeddingsUpdated, product.ID, payload)); err != nil {
		return e.Wrap(op, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return e.Wrap(op, err)
	}

	return nil
}

// promptContext собирает контекст каталога для контекстных промптов.
// Недоступность категории деградирует до базового эмбеддинга.
func (p *ProcessUseCase) promptContext(ctx context.Context, req *ProcessPendingReq, product *domain.Product) *clip.PromptContext {
	category, err := p.categoryRepo.Category(ctx, req.ClientID, product.CategoryID)
	if err != nil {
		p.logger.Warnf("category %d for product %d: %v", product.CategoryID, product.ID, err)
		return nil
	}

	name := category.NameEn
	if name == "" {
		name = category.Name
	}

	return &clip.PromptContext{
		Industry:            req.Industry,
		CategoryName:        name,
		CategoryPrompt:      category.ClipPrompt,
		ConfidenceThreshold: category.ConfidenceThreshold,
		Tags:                product.TagList(),
	}
}

func (p *ProcessUseCase) learnColor(ctx context.Context, clientID int64, product *domain.Product) {
	color, ok := product.AttributeValue("color")
	if !ok {
		return
	}

	if _, err := p.colorLearner.ProcessColor(ctx, clientID, color); err != nil {
		p.logger.Warnf("learn color %q for product %d: %v", color, product.ID, err)
	}
}
