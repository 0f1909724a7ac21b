// Package centroid вычисляет и кэширует центроиды категорий —
// средние эмбеддинги обработанных изображений категории.
package centroid

import (
	"context"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
)

// CategoryStore читает категории и сохраняет вычисленные центроиды.
type CategoryStore interface {
	Category(ctx context.Context, clientID, categoryID int64) (*domain.Category, error)
	SaveCentroid(ctx context.Context, clientID, categoryID int64, centroid []float32, imageCount int64) error
}

// ImageCounter считает обработанные изображения категории.
type ImageCounter interface {
	CompletedImageCount(ctx context.Context, clientID, categoryID int64) (int64, error)
}

// VectorSource отдаёт эмбеддинги обработанных изображений категории.
type VectorSource interface {
	VectorsByCategory(ctx context.Context, clientID, categoryID int64) ([][]float32, error)
}

// Cache лениво пересчитывает центроиды. Свежесть определяется по числу
// обработанных изображений: пока счётчик совпадает с сохранённым при
// последнем вычислении, кэшированный центроид считается актуальным.
type Cache struct {
	categories CategoryStore
	images     ImageCounter
	vectors    VectorSource
	logger     logger.Logger
}

func NewCache(categories CategoryStore, images ImageCounter, vectors VectorSource, logger logger.Logger) *Cache {
	return &Cache{
		categories: categories,
		images:     images,
		vectors:    vectors,
		logger:     logger,
	}
}

// Get возвращает актуальный центроид категории, пересчитывая его при
// устаревании. Для категории без обработанных изображений возвращает nil.
// Ошибка пересчёта не трогает сохранённый центроид.
func (c *Cache) Get(ctx context.Context, clientID, categoryID int64) ([]float32, error) {
	const op = "centroid.Cache.Get"

	category, err := c.categories.Category(ctx, clientID, categoryID)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	completed, err := c.images.CompletedImageCount(ctx, clientID, categoryID)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if completed == 0 {
		return nil, nil
	}

	if category.HasCentroid() && category.CentroidImageCount == completed {
		return category.Centroid, nil
	}

	return c.recompute(ctx, clientID, categoryID, completed)
}

// Refresh принудительно пересчитывает центроиды перечисленных категорий;
// вызывается после пакетной обработки изображений. Ошибка одной категории
// логируется и не прерывает остальные.
func (c *Cache) Refresh(ctx context.Context, clientID int64, categoryIDs []int64) {
	for _, categoryID := range categoryIDs {
		completed, err := c.images.CompletedImageCount(ctx, clientID, categoryID)
		if err != nil {
			c.logger.Warnf("centroid refresh, category %d: %v", categoryID, err)
			continue
		}
		if completed == 0 {
			continue
		}
		if _, err := c.recompute(ctx, clientID, categoryID, completed); err != nil {
			c.logger.Warnf("centroid refresh, category %d: %v", categoryID, err)
		}
	}
}

func (c *Cache) recompute(ctx context.Context, clientID, categoryID, completed int64) ([]float32, error) {
	const op = "centroid.Cache.recompute"

	vectors, err := c.vectors.VectorsByCategory(ctx, clientID, categoryID)
	if err != nil {
		return nil, e.Wrap(op, e.WrapSentinel(e.ErrCentroidComputation, err))
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	centroid, err := Compute(vectors)
	if err != nil {
		return nil, e.Wrap(op, e.WrapSentinel(e.ErrCentroidComputation, err))
	}

	if err := c.categories.SaveCentroid(ctx, clientID, categoryID, centroid, completed); err != nil {
		return nil, e.Wrap(op, e.WrapSentinel(e.ErrCentroidComputation, err))
	}

	c.logger.Debugf("centroid recomputed: client=%d category=%d images=%d", clientID, categoryID, completed)
	return centroid, nil
}

// Compute — чистая функция центроида: каждый вектор нормализуется,
// берётся среднее и результат снова приводится к единичной длине.
// Детерминирована для одного и того же набора векторов.
func Compute(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, e.ErrEmptyVector
	}

	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, e.ErrEmptyVector
		}
		normalized[i] = domain.Normalize(v)
	}

	mean, err := domain.MeanVector(normalized)
	if err != nil {
		return nil, err
	}
	return domain.Normalize(mean), nil
}
