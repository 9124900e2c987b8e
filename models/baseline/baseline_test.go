package baseline

import (
	"context"
	"path"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verseml/poetics/trainers"
)

// separableDataset builds a two-class set where class i only ever uses token i.
func separableDataset(n int) trainers.EncodedDataset {
	var ds trainers.EncodedDataset
	for i := 0; i < n; i++ {
		label := i % 2
		ds = append(ds, trainers.EncodedExample{InputIDs: []int{label, label, label}, Label: label})
	}
	return ds
}

func testArgs(t *testing.T, epochs int) *trainers.TrainingArguments {
	t.Helper()
	args := trainers.NewTrainingArguments("alliteration", t.TempDir(), false)
	args.NumTrainEpochs = epochs
	args.LearningRate = 0.5
	args.SaveTotalLimit = 2
	return args
}

func TestNewValidation(t *testing.T) {
	_, err := New(0, 3)
	require.Error(t, err)
	_, err = New(10, 1)
	require.Error(t, err)

	c, err := New(10, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(33), c.NumParameters())
}

func TestFitLearnsSeparableData(t *testing.T) {
	c, err := New(4, 2)
	require.NoError(t, err)

	train := separableDataset(20)
	args := testArgs(t, 5)
	require.NoError(t, c.Fit(context.Background(), args, train, train, ""))

	logits, err := c.Predict(context.Background(), train)
	require.NoError(t, err)
	flat := tensors.MustCopyFlatData[float32](logits)
	require.Len(t, flat, len(train)*2)
	for i, ex := range train {
		row := flat[i*2 : i*2+2]
		winner := 0
		if row[1] > row[0] {
			winner = 1
		}
		assert.Equal(t, ex.Label, winner, "example %d", i)
	}
}

func TestFitWritesAndPrunesCheckpoints(t *testing.T) {
	c, err := New(4, 2)
	require.NoError(t, err)

	args := testArgs(t, 5)
	require.NoError(t, c.Fit(context.Background(), args, separableDataset(10), nil, ""))

	// SaveTotalLimit is 2, so only the last two epoch checkpoints survive.
	assert.Equal(t, []string{
		path.Join(args.OutputDir, "checkpoint-4"),
		path.Join(args.OutputDir, "checkpoint-5"),
	}, trainers.ListCheckpoints(args.OutputDir))

	last := trainers.LastCheckpoint(args.OutputDir)
	var state trainers.TrainerState
	require.NoError(t, trainers.ReadJSON(path.Join(last, trainers.StateFileName), &state))
	assert.Equal(t, 5, state.Epoch)
}

func TestFitResume(t *testing.T) {
	train := separableDataset(10)

	first, err := New(4, 2)
	require.NoError(t, err)
	args := testArgs(t, 3)
	require.NoError(t, first.Fit(context.Background(), args, train, nil, ""))

	// Resuming from the final checkpoint with the same epoch budget is a no-op:
	// the epoch counter is already at NumTrainEpochs.
	resumed, err := New(4, 2)
	require.NoError(t, err)
	before := trainers.ListCheckpoints(args.OutputDir)
	require.NoError(t, resumed.Fit(context.Background(), args, train, nil, trainers.LastCheckpoint(args.OutputDir)))
	assert.Equal(t, before, trainers.ListCheckpoints(args.OutputDir))

	// With a raised budget the resumed run continues counting epochs upward.
	args.NumTrainEpochs = 4
	require.NoError(t, resumed.Fit(context.Background(), args, train, nil, trainers.LastCheckpoint(args.OutputDir)))
	assert.Equal(t, path.Join(args.OutputDir, "checkpoint-4"), trainers.LastCheckpoint(args.OutputDir))
}

func TestFitCancellation(t *testing.T) {
	c, err := New(4, 2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.Fit(ctx, testArgs(t, 3), separableDataset(10), nil, "")
	require.ErrorIs(t, err, context.Canceled)
}

func TestWeightsRoundTrip(t *testing.T) {
	c, err := New(3, 2)
	require.NoError(t, err)
	require.NoError(t, c.Fit(context.Background(), testArgs(t, 2), separableDataset(10), nil, ""))

	restored, err := New(3, 2)
	require.NoError(t, err)
	require.NoError(t, restored.LoadWeights(c.Weights()))
	assert.Equal(t, c.weight, restored.weight)
	assert.Equal(t, c.bias, restored.bias)
}

func TestLoadWeightsShapeMismatch(t *testing.T) {
	c, err := New(3, 2)
	require.NoError(t, err)

	err = c.LoadWeights(map[string]*tensors.Tensor{
		"classifier.weight": tensors.FromFlatDataAndDimensions(make([]float32, 4), 2, 2),
		"classifier.bias":   tensors.FromFlatDataAndDimensions(make([]float32, 2), 2),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classifier.weight")

	err = c.LoadWeights(map[string]*tensors.Tensor{
		"classifier.bias": tensors.FromFlatDataAndDimensions(make([]float32, 2), 2),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classifier.weight")
}

func TestScheduledRate(t *testing.T) {
	// Linear warmup over the first 10 steps.
	assert.InDelta(t, 0.1, scheduledRate(1.0, 0, 10, 100), 1e-9)
	assert.InDelta(t, 1.0, scheduledRate(1.0, 9, 10, 100), 1e-9)
	// Cosine decay afterwards, reaching zero at the end.
	assert.InDelta(t, 0.5, scheduledRate(1.0, 55, 10, 100), 1e-9)
	assert.InDelta(t, 0.0, scheduledRate(1.0, 100, 10, 100), 1e-9)
}
