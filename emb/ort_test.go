package emb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"
)

func TestTruncateKeepsTrailingSeparator(t *testing.T) {
	en := encoded{
		ids:   []int{101, 7, 8, 9, 102},
		mask:  []int{1, 1, 1, 1, 1},
		types: []int{0, 0, 0, 0, 0},
	}
	got := truncate(en, 3)
	assert.Equal(t, []int{101, 7, 102}, got.ids)
	assert.Equal(t, []int{1, 1, 1}, got.mask)
	assert.Len(t, got.types, 3)

	assert.Equal(t, en, truncate(en, 5))
}

func TestPoolMean(t *testing.T) {
	data := []float32{
		1, 0,
		0, 1,
		9, 9, // padding
	}
	out, err := pool(ort.NewShape(1, 3, 2), data, []int64{1, 1, 0}, 1, 3, PoolingMean)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDeltaSlice(t, []float32{0.70710677, 0.70710677}, out[0], 1e-6)
}

func TestPoolCLS(t *testing.T) {
	data := []float32{
		3, 4,
		9, 9,
	}
	out, err := pool(ort.NewShape(1, 2, 2), data, []int64{1, 1}, 1, 2, PoolingCLS)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, out[0], 1e-6)
}

func TestPoolSentenceEmbeddingOutput(t *testing.T) {
	out, err := pool(ort.NewShape(2, 2), []float32{3, 4, 0, 2}, nil, 2, 0, PoolingMean)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, out[0], 1e-6)
	assert.InDeltaSlice(t, []float32{0, 1}, out[1], 1e-6)
}

func TestPoolRejectsUnexpectedShapes(t *testing.T) {
	_, err := pool(ort.NewShape(2, 3), make([]float32, 6), nil, 1, 0, PoolingMean)
	assert.Error(t, err)
	_, err = pool(ort.NewShape(1, 2, 2), make([]float32, 3), []int64{1, 1}, 1, 2, PoolingMean)
	assert.Error(t, err)
	_, err = pool(ort.NewShape(1, 1, 1, 1), make([]float32, 1), []int64{1}, 1, 1, PoolingMean)
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []float32{0, 0}, normalize([]float32{0, 0}))
	assert.InDeltaSlice(t, []float32{0.6, -0.8}, normalize([]float32{3, -4}), 1e-6)
}
