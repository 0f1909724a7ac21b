package clip

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
	"github.com/DRSN-tech/visual-search/pkg/logger"
)

const (
	// Веса слияния: базовый эмбеддинг без промпта против контекстных.
	baseFusionWeight       = 1.5
	contextualFusionWeight = 1.0
	// contextualBoost применяется к контекстным весам, когда порог
	// уверенности категории выше boostThreshold.
	contextualBoost = 1.2
	boostThreshold  = 0.8

	methodContextual = "contextual_fusion"
	methodSimple     = "simple"
	methodText       = "text"

	promptImageOnly = "image_only"
)

// Metadata описывает, как был получен эмбеддинг.
type Metadata struct {
	Method      string   `json:"method"`
	Industry    string   `json:"industry,omitempty"`
	Category    string   `json:"category,omitempty"`
	PromptsUsed []string `json:"prompts_used"`
	NumFused    int      `json:"num_fused"`
	// Confidence — средняя попарная косинусная близость слитых эмбеддингов;
	// 1.0 для единственного эмбеддинга.
	Confidence float64 `json:"confidence"`
}

// Generator строит эмбеддинги изображений с учётом контекста каталога.
type Generator struct {
	manager *Manager
	logger  logger.Logger
}

func NewGenerator(manager *Manager, logger logger.Logger) *Generator {
	return &Generator{manager: manager, logger: logger}
}

// FromImage строит эмбеддинг изображения. При наличии контекста категории
// базовый эмбеддинг сливается с контекстными; отказ отдельного контекстного
// прохода логируется и пропускается, отказ базового — фатален для вызова.
func (g *Generator) FromImage(ctx context.Context, data []byte, pc *PromptContext) ([]float32, *Metadata, error) {
	const op = "clip.Generator.FromImage"

	if len(data) == 0 {
		return nil, nil, e.Wrap(op, e.WrapSentinel(e.ErrEmbeddingGeneration, e.ErrNoImageData))
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, nil, e.Wrap(op, e.WrapSentinel(e.ErrEmbeddingGeneration, e.WrapSentinel(e.ErrImageDecode, err)))
	}

	session, err := g.manager.Acquire(ctx)
	if err != nil {
		return nil, nil, e.Wrap(op, err)
	}

	base, err := session.EmbedImage(ctx, data, "")
	if err != nil {
		return nil, nil, e.Wrap(op, e.WrapSentinel(e.ErrEmbeddingGeneration, err))
	}

	vectors := [][]float32{domain.Normalize(base)}
	used := []string{promptImageOnly}

	var prompts []string
	if pc != nil {
		prompts = buildPrompts(pc)
	}
	for _, prompt := range prompts {
		vec, err := session.EmbedImage(ctx, data, prompt)
		if err != nil {
			g.logger.Warnf("contextual pass skipped, prompt %q: %v", prompt, err)
			continue
		}
		vectors = append(vectors, domain.Normalize(vec))
		used = append(used, prompt)
	}

	fused, err := g.fuse(vectors, pc)
	if err != nil {
		return nil, nil, e.Wrap(op, e.WrapSentinel(e.ErrEmbeddingGeneration, err))
	}

	md := &Metadata{
		Method:      methodSimple,
		PromptsUsed: used,
		NumFused:    len(vectors),
		Confidence:  fusionConfidence(vectors),
	}
	if len(vectors) > 1 {
		md.Method = methodContextual
	}
	if pc != nil {
		md.Industry = pc.Industry
		md.Category = pc.CategoryName
	}

	return fused, md, nil
}

// FromText строит эмбеддинг текстового запроса.
func (g *Generator) FromText(ctx context.Context, text string) ([]float32, *Metadata, error) {
	const op = "clip.Generator.FromText"

	if text == "" {
		return nil, nil, e.Wrap(op, e.ErrEmptyQuery)
	}

	session, err := g.manager.Acquire(ctx)
	if err != nil {
		return nil, nil, e.Wrap(op, err)
	}

	vec, err := session.EmbedText(ctx, text)
	if err != nil {
		return nil, nil, e.Wrap(op, e.WrapSentinel(e.ErrEmbeddingGeneration, err))
	}

	md := &Metadata{
		Method:      methodText,
		PromptsUsed: []string{text},
		NumFused:    1,
		Confidence:  1.0,
	}
	return domain.Normalize(vec), md, nil
}

// fuse считает взвешенное среднее эмбеддингов и нормализует результат.
func (g *Generator) fuse(vectors [][]float32, pc *PromptContext) ([]float32, error) {
	if len(vectors) == 1 {
		return vectors[0], nil
	}

	weights := make([]float64, len(vectors))
	weights[0] = baseFusionWeight
	ctxWeight := contextualFusionWeight
	if pc != nil && pc.ConfidenceThreshold > boostThreshold {
		ctxWeight *= contextualBoost
	}
	for i := 1; i < len(weights); i++ {
		weights[i] = ctxWeight
	}

	fused, err := domain.WeightedMean(vectors, weights)
	if err != nil {
		return nil, err
	}
	return domain.Normalize(fused), nil
}

// fusionConfidence — средняя попарная косинусная близость входных эмбеддингов.
func fusionConfidence(vectors [][]float32) float64 {
	if len(vectors) < 2 {
		return 1.0
	}

	var sum float64
	var pairs int
	for i := 0; i < len(vectors); i++ {
		for j := i + 1; j < len(vectors); j++ {
			cos, err := domain.Cosine(vectors[i], vectors[j])
			if err != nil {
				continue
			}
			sum += cos
			pairs++
		}
	}
	if pairs == 0 {
		return 1.0
	}
	return sum / float64(pairs)
}
