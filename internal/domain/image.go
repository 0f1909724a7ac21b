package domain

import "time"

// ImageStatus — каноническое состояние обработки изображения.
// Исходная система держала два частично дублирующих поля статуса;
// здесь единственный источник истины — этот enum.
type ImageStatus string

const (
	ImagePending    ImageStatus = "pending"
	ImageProcessing ImageStatus = "processing"
	ImageCompleted  ImageStatus = "completed"
	ImageFailed     ImageStatus = "failed"
)

// Image описывает изображение продукта.
// Эмбеддинг живёт в векторном хранилище; здесь только ссылка через EmbeddingID.
type Image struct {
	ID        int64
	ClientID  int64
	ProductID int64
	ObjectKey string // ключ объекта в blob-хранилище
	MimeType  string

	Status       ImageStatus
	ErrorMessage string // заполняется только при Status == ImageFailed
	EmbeddingID  string // uuid точки в векторном хранилище

	IsPrimary bool
	CreatedAt time.Time
	UpdatedAt *time.Time
}

func NewImage(clientID, productID int64, objectKey, mimeType string) *Image {
	return &Image{
		ClientID:  clientID,
		ProductID: productID,
		ObjectKey: objectKey,
		MimeType:  mimeType,
		Status:    ImagePending,
	}
}
