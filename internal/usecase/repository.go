package usecase

import (
	"context"

	"github.com/DRSN-tech/visual-search/internal/domain"
)

type CatalogRepository interface {
	ProductsInCategories(ctx context.Context, clientID int64, categoryIDs []int64) ([]*domain.Product, error)
	Product(ctx context.Context, clientID, productID int64) (*domain.Product, error)
	WeightConfig(ctx context.Context, clientID int64) (*domain.WeightConfig, error)
	SystemConfigSeconds(ctx context.Context, key string) (int64, error)
}

type CategoryRepository interface {
	Category(ctx context.Context, clientID, categoryID int64) (*domain.Category, error)
	ActiveCategories(ctx context.Context, clientID int64) ([]*domain.Category, error)
	SaveCentroid(ctx context.Context, clientID, categoryID int64, centroid []float32, imageCount int64) error
}

type ImageRepository interface {
	PendingImages(ctx context.Context, clientID int64, limit int) ([]*domain.Image, error)
	CompletedImageCount(ctx context.Context, clientID, categoryID int64) (int64, error)
	MarkProcessing(ctx context.Context, imageID int64) (bool, error)
	MarkCompleted(ctx context.Context, imageID int64, embeddingID string) error
	MarkFailed(ctx context.Context, imageID int64, message string) error
}

type EmbeddingRepository interface {
	Upsert(ctx context.Context, vectors []domain.Embedding) error
	VectorsByCategory(ctx context.Context, clientID, categoryID int64) ([][]float32, error)
	CandidatesByCategories(ctx context.Context, clientID int64, categoryIDs []int64) ([]Candidate, error)
	Delete(ctx context.Context, ids []string) error
}

// QueryCacheRepository кэширует эмбеддинги текстовых запросов.
// Промах или недоступность кэша не фатальны для поиска.
type QueryCacheRepository interface {
	GetQueryEmbedding(ctx context.Context, query string) ([]float32, bool)
	SetQueryEmbedding(ctx context.Context, query string, vector []float32)
}

// BlobRepository достаёт байты изображений из объектного хранилища.
// Сетевые ошибки отдаются вызывающему без ретраев.
type BlobRepository interface {
	FetchBytes(ctx context.Context, objectKey string) ([]byte, error)
}

type OutboxRepository interface {
	Create(ctx context.Context, event *OutboxEvent) (*OutboxEvent, error)
	GetAndMarkAsProcessing(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkAsProcessed(ctx context.Context, id int64) error
}

type ColorMappingRepository interface {
	Mapping(ctx context.Context, clientID int64, rawColor string) (*domain.ColorMapping, error)
	SaveMapping(ctx context.Context, mapping *domain.ColorMapping) (*domain.ColorMapping, error)
	IncrementUsage(ctx context.Context, clientID int64, rawColor string) (*domain.ColorMapping, error)
	GroupColors(ctx context.Context, clientID int64) (map[string][]string, error)
}
