package usecase

import (
	"encoding/json"
	"time"

	"github.com/DRSN-tech/visual-search/internal/domain"
)

// SEARCH USECASE

// SearchByImageReq — визуальный поиск по изображению-запросу.
type SearchByImageReq struct {
	ClientID int64
	Image    []byte
	// DetectedAttributes — атрибуты, распознанные на изображении запроса
	// внешним классификатором ("color" -> "NEGRO").
	DetectedAttributes map[string]string
	Limit              int
}

// SearchByTextReq — поиск по текстовому запросу.
type SearchByTextReq struct {
	ClientID           int64
	Query              string
	DetectedAttributes map[string]string
	Limit              int
}

// SearchRes — итоговая выдача с покомпонентными оценками.
type SearchRes struct {
	Results []SearchResult
	// ShortlistedCategories — категории, прошедшие отбор по центроидам.
	ShortlistedCategories []int64
}

// SearchResult — один продукт выдачи с разбивкой итоговой оценки по слоям.
type SearchResult struct {
	Product *domain.Product

	VisualScore   float64
	MetadataScore float64
	BusinessScore float64

	VisualContribution   float64
	MetadataContribution float64
	BusinessContribution float64

	FinalScore float64
}

// Candidate — точка из векторного хранилища: эмбеддинг изображения
// с привязкой к продукту.
type Candidate struct {
	EmbeddingID string
	ProductID   int64
	CategoryID  int64
	Vector      []float32
}

// PROCESS USECASE

// ProcessPendingReq — запрос пакетной обработки загруженных изображений клиента.
type ProcessPendingReq struct {
	ClientID int64
	// Industry — индустрия клиента для контекстных промптов ("textil").
	Industry string
	Limit    int
}

// ProcessPendingRes — итог пакетной обработки.
type ProcessPendingRes struct {
	Processed int
	Failed    int
	// TouchedCategories — категории, чьи центроиды пересчитаны после пакета.
	TouchedCategories []int64
}

// OUTBOX

type OutboxStatus string

const (
	Pending    OutboxStatus = "pending"
	Processing OutboxStatus = "processing"
	Processed  OutboxStatus = "processed"
)

const EventTypeEmbeddingsUpdated = "embeddings.updated"

// OutboxEvent — событие для надёжной доставки в Kafka через таблицу outbox.
type OutboxEvent struct {
	ID          int64
	EventID     string
	EventType   string
	ProductID   int64
	Payload     []byte
	Status      OutboxStatus
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// EmbeddingsUpdatedPayload — JSON-тело события embeddings.updated.
type EmbeddingsUpdatedPayload struct {
	EventID     string  `json:"event_id"`
	OccurredAt  int64   `json:"occurred_at"` // unix nano
	ClientID    int64   `json:"client_id"`
	ProductID   int64   `json:"product_id"`
	ImageID     int64   `json:"image_id"`
	EmbeddingID string  `json:"embedding_id"`
	ModelID     string  `json:"model_id"`
	Confidence  float64 `json:"confidence"`
}

// WriteRawMessageReq — готовое к отправке в Kafka сообщение.
type WriteRawMessageReq struct {
	ProductID int64
	Payload   []byte
}

// MAPPERS

func NewOutboxEvent(eventID, eventType string, productID int64, payload []byte) *OutboxEvent {
	return &OutboxEvent{
		EventID:   eventID,
		EventType: eventType,
		ProductID: productID,
		Payload:   payload,
		Status:    Pending,
	}
}

func NewWriteRawMessageReq(productID int64, payload []byte) *WriteRawMessageReq {
	return &WriteRawMessageReq{
		ProductID: productID,
		Payload:   payload,
	}
}

func marshalEmbeddingsUpdated(payload *EmbeddingsUpdatedPayload) ([]byte, error) {
	return json.Marshal(payload)
}
