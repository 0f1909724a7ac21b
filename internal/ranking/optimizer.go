// Package ranking объединяет сырую визуальную близость с метаданными
// и бизнес-сигналами в итоговый порядок результатов поиска.
package ranking

import (
	"sort"
	"strings"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
)

// Веса факторов business score. Stock оценивается всегда; featured и
// discount — только когда продукт моделирует соответствующее понятие.
const (
	stockFactorWeight    = 0.4
	featuredFactorWeight = 0.3
	discountFactorWeight = 0.3
)

// defaultAttributeWeight применяется к атрибутам, не перечисленным ни в
// дефолтах, ни в клиентских переопределениях.
const defaultAttributeWeight = 0.5

// defaultAttributeWeights — относительная значимость детектированных
// атрибутов при сравнении с продуктом.
var defaultAttributeWeights = map[string]float64{
	"color":    1.0,
	"brand":    1.0,
	"pattern":  0.8,
	"material": 0.7,
	"style":    0.6,
}

// colorGenderForms сводит грамматический род испанских названий цветов:
// один и тот же цвет пишется по-разному в зависимости от рода существительного.
var colorGenderForms = map[string]string{
	"NEGRA":     "NEGRO",
	"BLANCA":    "BLANCO",
	"ROJA":      "ROJO",
	"AMARILLA":  "AMARILLO",
	"MORADA":    "MORADO",
	"DORADA":    "DORADO",
	"PLATEADA":  "PLATEADO",
	"BRONCEADA": "BRONCEADO",
}

// RawResult — кандидат из визуального поиска до доранжирования.
type RawResult struct {
	Product     *domain.Product
	VisualScore float64
}

// RankedResult хранит итоговую оценку и вклад каждого слоя
// для последующего разбора качества выдачи.
type RankedResult struct {
	Product *domain.Product

	VisualScore   float64
	MetadataScore float64
	BusinessScore float64

	VisualContribution   float64
	MetadataContribution float64
	BusinessContribution float64

	FinalScore float64
}

// Optimizer доранжирует кандидатов по конфигурации весов клиента.
// Конфигурация валидируется один раз при создании, не на каждый вызов.
type Optimizer struct {
	cfg    *domain.WeightConfig
	logger logger.Logger
}

func NewOptimizer(cfg *domain.WeightConfig, logger logger.Logger) (*Optimizer, error) {
	const op = "ranking.NewOptimizer"

	if cfg == nil {
		return nil, e.Wrap(op, e.ErrInvalidWeightConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, e.Wrap(op, err)
	}

	return &Optimizer{cfg: cfg, logger: logger}, nil
}

// Rank считает итоговую оценку каждого кандидата и сортирует по убыванию.
// Сортировка стабильна: равные оценки сохраняют входной порядок.
// Пустой вход возвращает пустой список с предупреждением, не ошибку.
func (o *Optimizer) Rank(raw []RawResult, detected map[string]string) []RankedResult {
	if len(raw) == 0 {
		o.logger.Warnf("rank called with empty candidate list")
		return []RankedResult{}
	}

	ranked := make([]RankedResult, 0, len(raw))
	for _, r := range raw {
		metadata := o.MetadataScore(r.Product, detected)
		business := o.BusinessScore(r.Product)

		result := RankedResult{
			Product:              r.Product,
			VisualScore:          r.VisualScore,
			MetadataScore:        metadata,
			BusinessScore:        business,
			VisualContribution:   r.VisualScore * o.cfg.VisualWeight,
			MetadataContribution: metadata * o.cfg.MetadataWeight,
			BusinessContribution: business * o.cfg.BusinessWeight,
		}
		result.FinalScore = result.VisualContribution + result.MetadataContribution + result.BusinessContribution
		if result.FinalScore > 1.0 {
			result.FinalScore = 1.0
		}

		ranked = append(ranked, result)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinalScore > ranked[j].FinalScore
	})

	return ranked
}

// MetadataScore — доля совпавших детектированных атрибутов с учётом их весов.
// Атрибут участвует в знаменателе, только если продукт имеет для него значение;
// без сопоставимых значений оценка 0.
func (o *Optimizer) MetadataScore(product *domain.Product, detected map[string]string) float64 {
	if product == nil || len(detected) == 0 {
		return 0
	}

	var matched, possible float64
	for key, detectedValue := range detected {
		productValue, ok := product.AttributeValue(key)
		if !ok {
			continue
		}

		weight := o.attributeWeight(key)
		possible += weight

		if attributeEqual(key, detectedValue, productValue) {
			matched += weight
		}
	}

	if possible == 0 {
		return 0
	}
	return matched / possible
}

// BusinessScore — взвешенная сумма коммерческих сигналов, нормированная
// суммой фактически оценённых весов: каталог без понятия featured
// не штрафуется за его отсутствие.
func (o *Optimizer) BusinessScore(product *domain.Product) float64 {
	if product == nil {
		return 0
	}

	var score, evaluated float64

	evaluated += stockFactorWeight
	if product.Stock > 0 {
		score += stockFactorWeight
	}

	if product.Featured != nil {
		evaluated += featuredFactorWeight
		if *product.Featured {
			score += featuredFactorWeight
		}
	}

	if product.Discount != nil {
		evaluated += discountFactorWeight
		if product.Discount.IsPositive() {
			score += discountFactorWeight
		}
	}

	return score / evaluated
}

func (o *Optimizer) attributeWeight(key string) float64 {
	key = strings.ToLower(key)
	if w, ok := o.cfg.AttributeWeights[key]; ok {
		return w
	}
	if w, ok := defaultAttributeWeights[key]; ok {
		return w
	}
	return defaultAttributeWeight
}

func attributeEqual(key, detected, actual string) bool {
	detected = strings.ToUpper(strings.TrimSpace(detected))
	actual = strings.ToUpper(strings.TrimSpace(actual))

	if strings.EqualFold(key, "color") {
		detected = normalizeColorGender(detected)
		actual = normalizeColorGender(actual)
	}

	return detected == actual
}

func normalizeColorGender(color string) string {
	if masculine, ok := colorGenderForms[color]; ok {
		return masculine
	}
	return color
}
