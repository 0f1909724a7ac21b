package colors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debugf(format string, args ...any)            {}
func (nopLogger) Infof(format string, args ...any)             {}
func (nopLogger) Warnf(format string, args ...any)             {}
func (nopLogger) Errorf(err error, format string, args ...any) {}

type fakeSemantic struct {
	calls   int
	results map[string]string
	err     error
}

func (s *fakeSemantic) NormalizeColor(_ context.Context, cleaned string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.results[cleaned], nil
}

type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) EmbedColor(_ context.Context, text string) ([]float32, error) {
	v, ok := f.vectors[text]
	if !ok {
		return nil, errors.New("unknown text")
	}
	return v, nil
}

func TestClean(t *testing.T) {
	assert.Equal(t, "azul marino", Clean("  Azul Marino "))
	assert.Equal(t, "marron chocolate", Clean("Marrón CHOCOLATE"))
	assert.Equal(t, "rosa palo", Clean("rosa-palo (claro)"))
	assert.Equal(t, "", Clean("  123 ##"))
	assert.Equal(t, "", Clean(""))
}

func TestNormalize_Table(t *testing.T) {
	n := NewNormalizer(nil, nil, nopLogger{})
	ctx := context.Background()

	cases := map[string]string{
		"Azul marino":      "AZUL",
		"jean gastado":     "AZUL",
		"Negra":            "NEGRO",
		"marrón chocolate": "MARRON",
		"Crema":            "BEIGE",
		"violeta oscuro":   "MORADO",
		"fucsia":           "ROSA",
		"petróleo":         "TURQUESA",
		"oro viejo":        "DORADO",
		"plata":            "PLATEADO",
		"mostaza":          "AMARILLO",
		"vino tinto":       "ROJO",
	}
	for raw, want := range cases {
		got, err := n.Normalize(ctx, raw)
		require.NoError(t, err)
		assert.Equal(t, want, got, "raw=%q", raw)
	}
}

func TestNormalize_EmptyAndShort(t *testing.T) {
	semantic := &fakeSemantic{results: map[string]string{}}
	n := NewNormalizer(semantic, nil, nopLogger{})
	ctx := context.Background()

	got, err := n.Normalize(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, got)

	// короче трёх символов — фолбэк не вызывается
	got, err = n.Normalize(ctx, "xy")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, semantic.calls)
}

func TestNormalize_SemanticFallbackIsCached(t *testing.T) {
	semantic := &fakeSemantic{results: map[string]string{"coral vibrante": "coral"}}
	n := NewNormalizer(semantic, nil, nopLogger{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := n.Normalize(ctx, "Coral Vibrante")
		require.NoError(t, err)
		assert.Equal(t, "CORAL", got)
	}
	assert.Equal(t, 1, semantic.calls)
}

func TestNormalize_SemanticFailurePropagates(t *testing.T) {
	semantic := &fakeSemantic{err: errors.New("llm timeout")}
	n := NewNormalizer(semantic, nil, nopLogger{})

	_, err := n.Normalize(context.Background(), "color inventado")
	require.Error(t, err)

	// ошибка не кэшируется: следующий вызов пробует снова
	semantic.err = nil
	semantic.results = map[string]string{"color inventado": "VERDE"}
	got, err := n.Normalize(context.Background(), "color inventado")
	require.NoError(t, err)
	assert.Equal(t, "VERDE", got)
}

func TestAreSimilar(t *testing.T) {
	n := NewNormalizer(nil, nil, nopLogger{})
	ctx := context.Background()

	t.Run("case-fold identity", func(t *testing.T) {
		ok, err := n.AreSimilar(ctx, "Rojo", " rojo ")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("same canonical color", func(t *testing.T) {
		ok, err := n.AreSimilar(ctx, "azul marino", "celeste")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("shared perceptual group", func(t *testing.T) {
		ok, err := n.AreSimilar(ctx, "beige", "marrón chocolate")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("different groups", func(t *testing.T) {
		ok, err := n.AreSimilar(ctx, "beige", "negro")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("embedding fallback decides", func(t *testing.T) {
		embedder := &fakeEmbedder{vectors: map[string][]float32{
			"salmon claro": {1, 0.1, 0},
			"salmonado":    {1, 0.12, 0},
			"esmeralda":    {0, 0, 1},
		}}
		n := NewNormalizer(nil, embedder, nopLogger{})

		ok, err := n.AreSimilar(ctx, "salmon claro", "salmonado")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = n.AreSimilar(ctx, "salmon claro", "esmeralda")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestGroupOf(t *testing.T) {
	assert.Equal(t, "BEIGE", GroupOf("MARRON"))
	assert.Equal(t, "BEIGE", GroupOf("BEIGE"))
	assert.Equal(t, "AZUL", GroupOf("TURQUESA"))
	assert.Equal(t, "", GroupOf("NEGRO"))
}
