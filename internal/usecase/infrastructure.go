package usecase

import (
	"context"

	"github.com/DRSN-tech/visual-search/internal/clip"
	"github.com/DRSN-tech/visual-search/internal/domain"
)

// EmbeddingGenerator строит эмбеддинги изображений и текста.
type EmbeddingGenerator interface {
	FromImage(ctx context.Context, data []byte, pc *clip.PromptContext) ([]float32, *clip.Metadata, error)
	FromText(ctx context.Context, text string) ([]float32, *clip.Metadata, error)
}

// CentroidCache отдаёт актуальные центроиды категорий.
type CentroidCache interface {
	Get(ctx context.Context, clientID, categoryID int64) ([]float32, error)
	Refresh(ctx context.Context, clientID int64, categoryIDs []int64)
}

// ColorLearner ведёт клиентский словарь цветов.
type ColorLearner interface {
	ProcessColor(ctx context.Context, clientID int64, rawColor string) (*domain.ColorMapping, error)
}

// MessageProducer пишет готовые события в Kafka.
type MessageProducer interface {
	WriteRawMessage(ctx context.Context, req *WriteRawMessageReq) error
}
