package safetensors

import (
	"path"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	filePath := path.Join(t.TempDir(), "model.safetensors")
	saved := map[string]*tensors.Tensor{
		"classifier.weight": tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3),
		"classifier.bias":   tensors.FromFlatDataAndDimensions([]float32{-1, 0.5}, 2),
		"steps":             tensors.FromFlatDataAndDimensions([]int64{1200}, 1),
	}
	require.NoError(t, Save(filePath, saved))

	loaded, err := Load(filePath)
	require.NoError(t, err)
	require.Len(t, loaded, 3)

	weight := loaded["classifier.weight"]
	require.NotNil(t, weight)
	assert.Equal(t, []int{2, 3}, weight.Shape().Dimensions)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, tensors.MustCopyFlatData[float32](weight))

	bias := loaded["classifier.bias"]
	require.NotNil(t, bias)
	assert.Equal(t, []float32{-1, 0.5}, tensors.MustCopyFlatData[float32](bias))

	steps := loaded["steps"]
	require.NotNil(t, steps)
	assert.Equal(t, []int64{1200}, tensors.MustCopyFlatData[int64](steps))
}

func TestReadHeader(t *testing.T) {
	filePath := path.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, Save(filePath, map[string]*tensors.Tensor{
		"w": tensors.FromFlatDataAndDimensions([]float64{1, 2, 3, 4}, 4),
	}))

	header, dataOffset, err := ReadHeader(filePath)
	require.NoError(t, err)
	assert.Greater(t, dataOffset, int64(8))
	require.Contains(t, header.Tensors, "w")
	meta := header.Tensors["w"]
	assert.Equal(t, "F64", meta.Dtype)
	assert.Equal(t, []int{4}, meta.Shape)
	assert.Equal(t, int64(32), meta.SizeBytes())
	assert.Equal(t, int64(4), meta.NumElements())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(path.Join(t.TempDir(), "nope.safetensors"))
	require.Error(t, err)
}
