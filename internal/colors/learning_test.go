package colors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DRSN-tech/visual-search/internal/domain"
	"github.com/DRSN-tech/visual-search/pkg/e"
)

type memMappingStore struct {
	mappings map[int64]map[string]*domain.ColorMapping
}

func newMemMappingStore() *memMappingStore {
	return &memMappingStore{mappings: make(map[int64]map[string]*domain.ColorMapping)}
}

func (s *memMappingStore) Mapping(_ context.Context, clientID int64, rawColor string) (*domain.ColorMapping, error) {
	m, ok := s.mappings[clientID][rawColor]
	if !ok {
		return nil, e.ErrColorMappingNotFound
	}
	return m, nil
}

func (s *memMappingStore) SaveMapping(_ context.Context, mapping *domain.ColorMapping) (*domain.ColorMapping, error) {
	if s.mappings[mapping.ClientID] == nil {
		s.mappings[mapping.ClientID] = make(map[string]*domain.ColorMapping)
	}
	mapping.CreatedAt = time.Now()
	s.mappings[mapping.ClientID][mapping.RawColor] = mapping
	return mapping, nil
}

func (s *memMappingStore) IncrementUsage(_ context.Context, clientID int64, rawColor string) (*domain.ColorMapping, error) {
	m, ok := s.mappings[clientID][rawColor]
	if !ok {
		return nil, e.ErrColorMappingNotFound
	}
	m.UsageCount++
	m.LastUsedAt = time.Now()
	return m, nil
}

func (s *memMappingStore) GroupColors(_ context.Context, clientID int64) (map[string][]string, error) {
	groups := make(map[string][]string)
	for _, m := range s.mappings[clientID] {
		groups[m.SimilarityGroup] = append(groups[m.SimilarityGroup], m.NormalizedColor)
	}
	return groups, nil
}

func newTestLearning(store MappingStore, semantic SemanticNormalizer, embedder TextEmbedder) *Learning {
	n := NewNormalizer(semantic, embedder, nopLogger{})
	return NewLearning(store, n, nopLogger{})
}

func TestLearning_FirstEncounterCreatesMapping(t *testing.T) {
	store := newMemMappingStore()
	l := newTestLearning(store, nil, nil)

	m, err := l.ProcessColor(context.Background(), 1, "Azul marino")
	require.NoError(t, err)

	assert.Equal(t, "AZUL", m.NormalizedColor)
	assert.Equal(t, "AZUL", m.SimilarityGroup) // жёсткая группа {AZUL, TURQUESA}
	assert.EqualValues(t, 1, m.UsageCount)
	assert.Equal(t, 1.0, m.Confidence)
}

func TestLearning_RepeatEncounterIncrementsUsage(t *testing.T) {
	store := newMemMappingStore()
	l := newTestLearning(store, nil, nil)
	ctx := context.Background()

	_, err := l.ProcessColor(ctx, 1, "mostaza")
	require.NoError(t, err)

	m, err := l.ProcessColor(ctx, 1, "mostaza")
	require.NoError(t, err)
	assert.EqualValues(t, 2, m.UsageCount)
}

func TestLearning_SemanticColorJoinsSimilarClientGroup(t *testing.T) {
	store := newMemMappingStore()
	semantic := &fakeSemantic{results: map[string]string{
		"coral vibrante": "coral",
		"coral suave":    "coralino",
	}}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"coral":    {1, 0.2, 0},
		"coralino": {1, 0.22, 0},
	}}
	l := newTestLearning(store, semantic, embedder)
	ctx := context.Background()

	first, err := l.ProcessColor(ctx, 1, "coral vibrante")
	require.NoError(t, err)
	assert.Equal(t, "CORAL", first.NormalizedColor)
	assert.Equal(t, "CORAL", first.SimilarityGroup) // своя новая группа
	assert.Equal(t, 0.0, first.Confidence)

	second, err := l.ProcessColor(ctx, 1, "coral suave")
	require.NoError(t, err)
	assert.Equal(t, "CORALINO", second.NormalizedColor)
	assert.Equal(t, "CORAL", second.SimilarityGroup) // присоединился к группе клиента
}

func TestLearning_GroupingIsScopedPerClient(t *testing.T) {
	store := newMemMappingStore()
	semantic := &fakeSemantic{results: map[string]string{"terracota": "terracota"}}
	l := newTestLearning(store, semantic, nil)
	ctx := context.Background()

	a, err := l.ProcessColor(ctx, 1, "terracota")
	require.NoError(t, err)
	b, err := l.ProcessColor(ctx, 2, "terracota")
	require.NoError(t, err)

	// один и тот же сырой цвет, но записи независимы по клиентам
	assert.Equal(t, a.NormalizedColor, b.NormalizedColor)
	require.Len(t, store.mappings[int64(1)], 1)
	require.Len(t, store.mappings[int64(2)], 1)
}

func TestLearning_EmptyColorRejected(t *testing.T) {
	l := newTestLearning(newMemMappingStore(), nil, nil)

	_, err := l.ProcessColor(context.Background(), 1, "   ")
	assert.ErrorIs(t, err, e.ErrEmptyQuery)
}
