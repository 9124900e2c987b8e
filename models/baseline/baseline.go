// Package baseline implements a bag-of-tokens multinomial logistic regression
// that satisfies the trainers.Model contract. It exists so the toolkit can be
// exercised end to end without an external training backend; it is not meant
// to be competitive with a fine-tuned transformer.
package baseline

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path"
	"strconv"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/verseml/poetics/safetensors"
	"github.com/verseml/poetics/trainers"
)

// Classifier is a linear classifier over normalized token counts. Token ids
// beyond the feature dimension are folded back with a modulo.
type Classifier struct {
	featureDim int
	numLabels  int

	// weight is row-major [numLabels, featureDim]; bias is [numLabels].
	weight []float32
	bias   []float32
}

var _ trainers.Model = &Classifier{}

// New creates an untrained classifier. featureDim is typically the tokenizer's
// vocabulary size.
func New(featureDim, numLabels int) (*Classifier, error) {
	if featureDim <= 0 || numLabels <= 1 {
		return nil, errors.Errorf("invalid classifier dimensions: featureDim=%d, numLabels=%d", featureDim, numLabels)
	}
	return &Classifier{
		featureDim: featureDim,
		numLabels:  numLabels,
		weight:     make([]float32, numLabels*featureDim),
		bias:       make([]float32, numLabels),
	}, nil
}

// Builder returns a trainers.ModelBuilder closing over the feature dimension.
func Builder(featureDim int) trainers.ModelBuilder {
	return func(numLabels int) (trainers.Model, error) {
		return New(featureDim, numLabels)
	}
}

// features maps token ids to a normalized bag-of-tokens vector.
func (c *Classifier) features(inputIDs []int) []float32 {
	x := make([]float32, c.featureDim)
	if len(inputIDs) == 0 {
		return x
	}
	inv := float32(1) / float32(len(inputIDs))
	for _, id := range inputIDs {
		if id < 0 {
			id = -id
		}
		x[id%c.featureDim] += inv
	}
	return x
}

// logits computes the raw class scores for one feature vector.
func (c *Classifier) logits(x []float32) []float32 {
	out := make([]float32, c.numLabels)
	for label := 0; label < c.numLabels; label++ {
		row := c.weight[label*c.featureDim : (label+1)*c.featureDim]
		sum := c.bias[label]
		for i, v := range x {
			if v != 0 {
				sum += row[i] * v
			}
		}
		out[label] = sum
	}
	return out
}

func softmax(logits []float32) []float32 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	probs := make([]float32, len(logits))
	var sum float32
	for i, v := range logits {
		probs[i] = float32(math.Exp(float64(v - maxLogit)))
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// Fit trains with plain SGD and softmax cross-entropy, one checkpoint
// directory per epoch. resumeFrom restarts from a previously saved
// checkpoint's weights and epoch counter.
func (c *Classifier) Fit(ctx context.Context, args *trainers.TrainingArguments, train, eval trainers.EncodedDataset, resumeFrom string) error {
	if len(train) == 0 {
		return errors.New("empty training set")
	}

	startEpoch := 0
	if resumeFrom != "" {
		state, err := c.loadCheckpoint(resumeFrom)
		if err != nil {
			return err
		}
		startEpoch = state.Epoch
		klog.Infof("Resumed at epoch %d from %s", startEpoch, resumeFrom)
	}

	totalSteps := args.NumTrainEpochs * len(train)
	warmupSteps := int(args.WarmupRatio * float64(totalSteps))
	step := startEpoch * len(train)

	rng := rand.New(rand.NewSource(args.Seed))
	order := rng.Perm(len(train))

	for epoch := startEpoch + 1; epoch <= args.NumTrainEpochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		var epochLoss float64
		for _, idx := range order {
			if err := ctx.Err(); err != nil {
				return err
			}
			ex := train[idx]
			x := c.features(ex.InputIDs)
			probs := softmax(c.logits(x))
			epochLoss += -math.Log(math.Max(float64(probs[ex.Label]), 1e-12))

			lr := float32(scheduledRate(args.LearningRate, step, warmupSteps, totalSteps))
			decay := float32(args.WeightDecay)
			for label := 0; label < c.numLabels; label++ {
				grad := probs[label]
				if label == ex.Label {
					grad -= 1
				}
				row := c.weight[label*c.featureDim : (label+1)*c.featureDim]
				for i, v := range x {
					if v != 0 {
						row[i] -= lr * (grad*v + decay*row[i])
					}
				}
				c.bias[label] -= lr * grad
			}

			step++
			if args.LoggingSteps > 0 && step%args.LoggingSteps == 0 {
				klog.V(1).Infof("step %d/%d: loss=%.4f", step, totalSteps, epochLoss/float64(step-startEpoch*len(train)))
			}
		}
		klog.Infof("Epoch %d/%d: train_loss=%.4f, eval_accuracy=%.4f",
			epoch, args.NumTrainEpochs, epochLoss/float64(len(train)), c.accuracy(eval))

		if err := c.saveCheckpoint(args, epoch); err != nil {
			return err
		}
	}
	return nil
}

func (c *Classifier) accuracy(ds trainers.EncodedDataset) float64 {
	if len(ds) == 0 {
		return 0
	}
	correct := 0
	for _, ex := range ds {
		logits := c.logits(c.features(ex.InputIDs))
		best := 0
		for i, v := range logits {
			if v > logits[best] {
				best = i
			}
		}
		if best == ex.Label {
			correct++
		}
	}
	return float64(correct) / float64(len(ds))
}

// scheduledRate is linear warmup followed by cosine decay to zero.
func scheduledRate(base float64, step, warmupSteps, totalSteps int) float64 {
	if warmupSteps > 0 && step < warmupSteps {
		return base * float64(step+1) / float64(warmupSteps)
	}
	if totalSteps <= warmupSteps {
		return base
	}
	progress := float64(step-warmupSteps) / float64(totalSteps-warmupSteps)
	if progress > 1 {
		progress = 1
	}
	return base * 0.5 * (1 + math.Cos(math.Pi*progress))
}

// saveCheckpoint writes a "checkpoint-<epoch>" directory and prunes old ones
// down to args.SaveTotalLimit.
func (c *Classifier) saveCheckpoint(args *trainers.TrainingArguments, epoch int) error {
	dir := path.Join(args.OutputDir, "checkpoint-"+strconv.Itoa(epoch))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create checkpoint directory %q", dir)
	}
	if err := safetensors.Save(path.Join(dir, trainers.WeightsFileName), c.Weights()); err != nil {
		return err
	}
	state := &trainers.TrainerState{Epoch: epoch}
	if err := trainers.WriteJSON(path.Join(dir, trainers.StateFileName), state); err != nil {
		return err
	}

	if args.SaveTotalLimit > 0 {
		checkpoints := trainers.ListCheckpoints(args.OutputDir)
		for len(checkpoints) > args.SaveTotalLimit {
			if err := os.RemoveAll(checkpoints[0]); err != nil {
				return errors.Wrapf(err, "failed to prune checkpoint %q", checkpoints[0])
			}
			checkpoints = checkpoints[1:]
		}
	}
	return nil
}

// loadCheckpoint restores weights and returns the saved trainer state.
func (c *Classifier) loadCheckpoint(dir string) (*trainers.TrainerState, error) {
	weights, err := safetensors.Load(path.Join(dir, trainers.WeightsFileName))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load checkpoint weights from %q", dir)
	}
	if err := c.LoadWeights(weights); err != nil {
		return nil, errors.Wrapf(err, "checkpoint %q", dir)
	}
	state := &trainers.TrainerState{}
	if err := trainers.ReadJSON(path.Join(dir, trainers.StateFileName), state); err != nil {
		return nil, err
	}
	return state, nil
}

// Predict implements trainers.Model.
func (c *Classifier) Predict(ctx context.Context, ds trainers.EncodedDataset) (*tensors.Tensor, error) {
	flat := make([]float32, len(ds)*c.numLabels)
	for i, ex := range ds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		copy(flat[i*c.numLabels:], c.logits(c.features(ex.InputIDs)))
	}
	return tensors.FromFlatDataAndDimensions(flat, len(ds), c.numLabels), nil
}

// Weights implements trainers.Model.
func (c *Classifier) Weights() map[string]*tensors.Tensor {
	return map[string]*tensors.Tensor{
		"classifier.weight": tensors.FromFlatDataAndDimensions(append([]float32(nil), c.weight...), c.numLabels, c.featureDim),
		"classifier.bias":   tensors.FromFlatDataAndDimensions(append([]float32(nil), c.bias...), c.numLabels),
	}
}

// LoadWeights implements trainers.Model.
func (c *Classifier) LoadWeights(weights map[string]*tensors.Tensor) error {
	w, ok := weights["classifier.weight"]
	if !ok {
		return errors.New(`missing "classifier.weight" tensor`)
	}
	b, ok := weights["classifier.bias"]
	if !ok {
		return errors.New(`missing "classifier.bias" tensor`)
	}
	wDims, bDims := w.Shape().Dimensions, b.Shape().Dimensions
	if len(wDims) != 2 || wDims[0] != c.numLabels || wDims[1] != c.featureDim {
		return errors.Errorf("classifier.weight has shape %v, want [%d %d]", wDims, c.numLabels, c.featureDim)
	}
	if len(bDims) != 1 || bDims[0] != c.numLabels {
		return errors.Errorf("classifier.bias has shape %v, want [%d]", bDims, c.numLabels)
	}
	weight, err := tensors.CopyFlatData[float32](w)
	if err != nil {
		return err
	}
	bias, err := tensors.CopyFlatData[float32](b)
	if err != nil {
		return err
	}
	c.weight = weight
	c.bias = bias
	return nil
}

// NumParameters implements trainers.Model.
func (c *Classifier) NumParameters() int64 {
	return int64(len(c.weight) + len(c.bias))
}
