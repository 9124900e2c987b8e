package trainers

import (
	"context"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// EncodedExample is one tokenized corpus entry as fed to a model.
type EncodedExample struct {
	InputIDs []int
	Label    int
	Language string
}

// EncodedDataset is an ordered collection of tokenized examples.
type EncodedDataset []EncodedExample

// ByLanguage returns the subset of examples in the given language.
func (ds EncodedDataset) ByLanguage(language string) EncodedDataset {
	var out EncodedDataset
	for _, ex := range ds {
		if ex.Language == language {
			out = append(out, ex)
		}
	}
	return out
}

// Labels returns the label of every example, in order.
func (ds EncodedDataset) Labels() []int {
	out := make([]int, len(ds))
	for i, ex := range ds {
		out[i] = ex.Label
	}
	return out
}

// Model is the contract an external training backend has to fulfill. The
// trainer never looks inside: forward/backward computation, the optimizer and
// the step loop all live behind Fit, and inference behind Predict.
type Model interface {
	// Fit runs the backend's training loop. It is expected to write
	// "checkpoint-<step>" directories under args.OutputDir as it goes. A
	// non-empty resumeFrom names a checkpoint directory to continue from.
	Fit(ctx context.Context, args *TrainingArguments, train, eval EncodedDataset, resumeFrom string) error

	// Predict returns the classification logits for every example, as a
	// tensor of shape [len(ds), numLabels].
	Predict(ctx context.Context, ds EncodedDataset) (*tensors.Tensor, error)

	// Weights returns the model parameters as named tensors.
	Weights() map[string]*tensors.Tensor

	// LoadWeights replaces the model parameters with the named tensors.
	LoadWeights(weights map[string]*tensors.Tensor) error

	// NumParameters returns the total parameter count.
	NumParameters() int64
}

// ModelBuilder constructs a fresh model, e.g. for a new grid-search trial.
type ModelBuilder func(numLabels int) (Model, error)
