package clip

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
)

func testImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestGenerator(backend *fakeBackend) *Generator {
	m, _ := newTestManager(backend)
	return NewGenerator(m, nopLogger{})
}

func TestGenerator_RejectsUndecodableImage(t *testing.T) {
	g := newTestGenerator(&fakeBackend{})

	_, _, err := g.FromImage(context.Background(), []byte("not an image"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, e.ErrEmbeddingGeneration)
	assert.ErrorIs(t, err, e.ErrImageDecode)

	_, _, err = g.FromImage(context.Background(), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, e.ErrNoImageData)
}

func TestGenerator_SimpleWithoutContext(t *testing.T) {
	backend := &fakeBackend{}
	g := newTestGenerator(backend)

	vec, md, err := g.FromImage(context.Background(), testImage(t), nil)
	require.NoError(t, err)

	assert.True(t, domain.IsUnit(vec))
	assert.Equal(t, methodSimple, md.Method)
	assert.Equal(t, []string{promptImageOnly}, md.PromptsUsed)
	assert.Equal(t, 1, md.NumFused)
	assert.Equal(t, 1.0, md.Confidence)
}

func TestGenerator_ContextualFusion(t *testing.T) {
	backend := &fakeBackend{}
	g := newTestGenerator(backend)

	// базовый и контекстные проходы возвращают разные векторы
	_, err := g.manager.Acquire(context.Background())
	require.NoError(t, err)
	backend.last.embedImage = func(prompt string) ([]float32, error) {
		if prompt == "" {
			return []float32{1, 0, 0}, nil
		}
		return []float32{0.8, 0.6, 0}, nil
	}

	pc := &PromptContext{
		Industry:            "textil",
		CategoryName:        "Vestidos",
		CategoryPrompt:      "an elegant dress on a mannequin",
		ConfidenceThreshold: 0.75,
		Tags:                []string{"verano", "casual"},
	}

	vec, md, err := g.FromImage(context.Background(), testImage(t), pc)
	require.NoError(t, err)

	assert.True(t, domain.IsUnit(vec))
	assert.Equal(t, methodContextual, md.Method)
	assert.Equal(t, 4, md.NumFused) // база + 3 контекстных
	assert.Equal(t, promptImageOnly, md.PromptsUsed[0])
	assert.Len(t, md.PromptsUsed, 4)
	assert.Greater(t, md.Confidence, 0.0)
	assert.LessOrEqual(t, md.Confidence, 1.0)

	// базовый вектор весит больше: результат ближе к (1,0,0), чем к (0.8,0.6,0)
	assert.Greater(t, vec[0], vec[1])
}

func TestGenerator_ContextualPassFailureIsSkipped(t *testing.T) {
	backend := &fakeBackend{}
	g := newTestGenerator(backend)

	_, err := g.manager.Acquire(context.Background())
	require.NoError(t, err)
	backend.last.embedImage = func(prompt string) ([]float32, error) {
		if prompt == "" {
			return []float32{0, 0, 1}, nil
		}
		return nil, errors.New("inference timeout")
	}

	pc := &PromptContext{Industry: "calzado", CategoryName: "Botas"}

	vec, md, err := g.FromImage(context.Background(), testImage(t), pc)
	require.NoError(t, err)

	assert.Equal(t, methodSimple, md.Method)
	assert.Equal(t, 1, md.NumFused)
	assert.True(t, domain.IsUnit(vec))
}

func TestGenerator_BaseFailureIsFatal(t *testing.T) {
	backend := &fakeBackend{}
	g := newTestGenerator(backend)

	_, err := g.manager.Acquire(context.Background())
	require.NoError(t, err)
	backend.last.embedImage = func(string) ([]float32, error) {
		return nil, errors.New("inference down")
	}

	_, _, err = g.FromImage(context.Background(), testImage(t), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, e.ErrEmbeddingGeneration)
}

func TestGenerator_FromText(t *testing.T) {
	backend := &fakeBackend{}
	g := newTestGenerator(backend)

	vec, md, err := g.FromText(context.Background(), "vestido rojo de verano")
	require.NoError(t, err)

	assert.True(t, domain.IsUnit(vec))
	assert.Equal(t, methodText, md.Method)
	assert.Equal(t, 1.0, md.Confidence)

	_, _, err = g.FromText(context.Background(), "")
	assert.ErrorIs(t, err, e.ErrEmptyQuery)
}

func TestBuildPrompts(t *testing.T) {
	t.Run("caps at three prompts", func(t *testing.T) {
		prompts := buildPrompts(&PromptContext{
			Industry:       "textil",
			CategoryName:   "Camisas",
			CategoryPrompt: "a shirt on white background",
			Tags:           []string{"manga larga"},
		})
		require.Len(t, prompts, maxContextualPrompts)
		assert.Equal(t, "a high quality photo of camisas clothing", prompts[0])
		assert.Equal(t, "a shirt on white background", prompts[2])
	})

	t.Run("unknown industry falls back to general", func(t *testing.T) {
		prompts := buildPrompts(&PromptContext{Industry: "joyeria", CategoryName: "Anillos"})
		require.Len(t, prompts, 2)
		assert.Equal(t, "a product photo of anillos", prompts[0])
	})

	t.Run("tags prompt truncates to three tags", func(t *testing.T) {
		prompts := buildPrompts(&PromptContext{
			CategoryName: "Faldas",
			Tags:         []string{"corta", "negra", "formal", "invierno"},
		})
		require.Len(t, prompts, 3)
		assert.Equal(t, "a faldas that is corta, negra, formal", prompts[2])
	})

	t.Run("empty category yields nothing", func(t *testing.T) {
		assert.Empty(t, buildPrompts(&PromptContext{Industry: "textil"}))
	})
}
