package domain

import (
	"fmt"
	"math"

	"github.com/DRSN-tech/visual-search/pkg/e"
)

// weightSumTolerance — допуск на сумму трёх весов слоёв.
const weightSumTolerance = 0.01

// WeightConfig — конфигурация весов трёх слоёв ранжирования для одного клиента.
// Инвариант: каждый вес в [0,1], сумма равна 1.0 ± 0.01. Конфигурация с
// нарушенным инвариантом отклоняется, а не корректируется.
type WeightConfig struct {
	ClientID       int64
	VisualWeight   float64
	MetadataWeight float64
	BusinessWeight float64

	// AttributeWeights — переопределения весов отдельных атрибутов
	// (ключи вида "color", "brand"). Пустая карта — использовать дефолты.
	AttributeWeights map[string]float64

	SimilarityThreshold float64 // минимальная визуальная близость результата
	MaxResults          int
}

// NewWeightConfig валидирует и создаёт конфигурацию весов.
func NewWeightConfig(clientID int64, visual, metadata, business float64) (*WeightConfig, error) {
	cfg := &WeightConfig{
		ClientID:            clientID,
		VisualWeight:        visual,
		MetadataWeight:      metadata,
		BusinessWeight:      business,
		SimilarityThreshold: 0.1,
		MaxResults:          10,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет инвариант весов. Вызывается при создании и при каждом обновлении.
func (w *WeightConfig) Validate() error {
	for name, v := range map[string]float64{
		"visual":   w.VisualWeight,
		"metadata": w.MetadataWeight,
		"business": w.BusinessWeight,
	} {
		if v < 0 || v > 1 {
			return e.WrapSentinel(e.ErrInvalidWeightConfig,
				fmt.Errorf("%s weight %.3f out of [0,1]", name, v))
		}
	}

	total := w.VisualWeight + w.MetadataWeight + w.BusinessWeight
	if math.Abs(total-1.0) > weightSumTolerance {
		return e.WrapSentinel(e.ErrInvalidWeightConfig,
			fmt.Errorf("weights sum to %.3f, want 1.0±%.2f (visual=%.2f, metadata=%.2f, business=%.2f)",
				total, weightSumTolerance, w.VisualWeight, w.MetadataWeight, w.BusinessWeight))
	}

	return nil
}
