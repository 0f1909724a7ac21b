package domain

import "time"

// Category описывает категорию продукта с полями для визуального поиска
type Category struct {
	ID       int64
	ClientID int64
	Name     string
	// NameEn — английское имя категории: модель обучена на английских промптах.
	NameEn              string
	ClipPrompt          string  // готовый промпт категории, настраивается клиентом
	ConfidenceThreshold float64 // порог уверенности категории, default 0.75

	// Centroid — нормализованный центроид эмбеддингов обработанных изображений.
	// nil, пока центроид ни разу не вычислялся или в категории нет изображений.
	Centroid           []float32
	CentroidImageCount int64
	CentroidUpdatedAt  *time.Time

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt *time.Time
}

func NewCategory(clientID int64, name string) *Category {
	return &Category{
		ClientID:            clientID,
		Name:                name,
		ConfidenceThreshold: 0.75,
		IsActive:            true,
	}
}

// HasCentroid сообщает, есть ли у категории вычисленный центроид.
func (c *Category) HasCentroid() bool {
	return len(c.Centroid) > 0
}
