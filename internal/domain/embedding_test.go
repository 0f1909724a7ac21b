package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DRSN-tech/visual-search/pkg/e"
)

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})

	assert.InDelta(t, 1.0, Norm(v), 1e-6)
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)
}

func TestNormalizeZeroVector(t *testing.T) {
	v := Normalize([]float32{0, 0, 0})

	assert.Equal(t, []float32{0, 0, 0}, v)
}

func TestIsUnit(t *testing.T) {
	assert.True(t, IsUnit([]float32{1, 0, 0}))
	assert.True(t, IsUnit(Normalize([]float32{0.3, -1.7, 2.2})))
	assert.False(t, IsUnit([]float32{1, 1}))
	assert.False(t, IsUnit([]float32{0, 0}))
}

func TestCosine(t *testing.T) {
	cos, err := Cosine([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cos, 1e-6)

	cos, err = Cosine([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, cos, 1e-6)

	cos, err = Cosine([]float32{2, 0}, []float32{5, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cos, 1e-6, "близость не зависит от длины векторов")
}

func TestCosineErrors(t *testing.T) {
	_, err := Cosine(nil, []float32{1})
	assert.ErrorIs(t, err, e.ErrEmptyVector)

	_, err = Cosine([]float32{1, 2}, []float32{1})
	assert.ErrorIs(t, err, e.ErrDimensionMismatch)

	_, err = Cosine([]float32{0, 0}, []float32{1, 0})
	assert.ErrorIs(t, err, e.ErrEmptyVector)
}

func TestMeanVector(t *testing.T) {
	mean, err := MeanVector([][]float32{
		{1, 0},
		{0, 1},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, float64(mean[0]), 1e-6)
	assert.InDelta(t, 0.5, float64(mean[1]), 1e-6)

	_, err = MeanVector(nil)
	assert.ErrorIs(t, err, e.ErrEmptyVector)

	_, err = MeanVector([][]float32{{1, 0}, {1}})
	assert.ErrorIs(t, err, e.ErrDimensionMismatch)
}

func TestWeightedMean(t *testing.T) {
	// веса нормализуются внутри: (3,1) эквивалентно (0.75,0.25)
	mean, err := WeightedMean([][]float32{
		{1, 0},
		{0, 1},
	}, []float64{3, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, float64(mean[0]), 1e-6)
	assert.InDelta(t, 0.25, float64(mean[1]), 1e-6)
}

func TestWeightedMeanErrors(t *testing.T) {
	_, err := WeightedMean(nil, nil)
	assert.ErrorIs(t, err, e.ErrEmptyVector)

	_, err = WeightedMean([][]float32{{1}}, []float64{1, 2})
	assert.ErrorIs(t, err, e.ErrDimensionMismatch)

	_, err = WeightedMean([][]float32{{1}}, []float64{0})
	assert.ErrorIs(t, err, e.ErrEmptyVector)
}
