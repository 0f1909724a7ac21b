package domain

import (
	"math"
	"time"

	"github.com/DRSN-tech/visual-search/pkg/e"
)

// EmbeddingDim — размерность векторов модели (CLIP ViT-B/16).
const EmbeddingDim = 512

// normTolerance — допустимое отклонение нормы сохранённого вектора от 1.0.
const normTolerance = 1e-4

// Payload описывает дополнительную информацию вектора
type Payload map[string]any

// Embedding представляет эмбеддинг одного изображения/запроса
type Embedding struct {
	ID      string
	Vector  []float32
	Payload Payload
}

func NewEmbedding(id string, vector []float32, payload Payload) *Embedding {
	return &Embedding{
		ID:      id,
		Vector:  vector,
		Payload: payload,
	}
}

func NewPayload(clientID, productID, categoryID int64, imagePath string, modelVersion string) Payload {
	return Payload{
		"client_id":     clientID,
		"product_id":    productID,
		"category_id":   categoryID,
		"image_path":    imagePath,
		"created_at":    time.Now().UTC().UnixNano(),
		"model_version": modelVersion,
	}
}

// Norm возвращает евклидову норму вектора.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize возвращает копию вектора, приведённую к единичной длине.
// Нулевой вектор возвращается без изменений.
func Normalize(v []float32) []float32 {
	norm := Norm(v)
	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// IsUnit сообщает, является ли вектор единичным в пределах допуска хранения.
func IsUnit(v []float32) bool {
	return math.Abs(Norm(v)-1.0) <= normTolerance
}

// Cosine возвращает косинусную близость двух векторов одинаковой размерности.
// Для уже нормализованных векторов совпадает со скалярным произведением.
func Cosine(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, e.ErrEmptyVector
	}
	if len(a) != len(b) {
		return 0, e.ErrDimensionMismatch
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, e.ErrEmptyVector
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// MeanVector возвращает арифметическое среднее векторов.
// Все векторы должны иметь одинаковую размерность.
func MeanVector(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, e.ErrEmptyVector
	}

	dim := len(vectors[0])
	sum := make([]float64, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, e.ErrDimensionMismatch
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
	}

	out := make([]float32, dim)
	for i, s := range sum {
		out[i] = float32(s / float64(len(vectors)))
	}
	return out, nil
}

// WeightedMean возвращает взвешенное среднее векторов; веса нормализуются внутри.
func WeightedMean(vectors [][]float32, weights []float64) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, e.ErrEmptyVector
	}
	if len(vectors) != len(weights) {
		return nil, e.ErrDimensionMismatch
	}

	var total float64
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return nil, e.ErrEmptyVector
	}

	dim := len(vectors[0])
	sum := make([]float64, dim)
	for k, v := range vectors {
		if len(v) != dim {
			return nil, e.ErrDimensionMismatch
		}
		w := weights[k] / total
		for i, x := range v {
			sum[i] += w * float64(x)
		}
	}

	out := make([]float32, dim)
	for i, s := range sum {
		out[i] = float32(s)
	}
	return out, nil
}
