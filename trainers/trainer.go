package trainers

import (
	"context"
	"math/rand"
	"os"
	"path"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/verseml/poetics/datasets"
	"github.com/verseml/poetics/internal/files"
	"github.com/verseml/poetics/metrics"
	"github.com/verseml/poetics/poetry"
	"github.com/verseml/poetics/safetensors"
	"github.com/verseml/poetics/tokenizers/api"
)

// PoetryClassificationTrainer fine-tunes a sequence classifier on one poetry
// task. It owns the train/eval/test splits (derived once, at construction),
// the checkpoint-resume bookkeeping and the per-language test evaluation.
type PoetryClassificationTrainer struct {
	task      string
	labels    []string
	tokenizer api.Tokenizer
	p2t       *poetry.Poetry2Tokens
	args      *TrainingArguments
	builder   ModelBuilder
	model     Model
	metricSet []metrics.Metric

	trainSet, evalSet, testSet EncodedDataset

	runID string
}

// New builds a trainer for the given task: it derives the stratified
// train (90%) / eval (5%) / test (5%) splits from the corpus and tokenizes
// them once. The splits are held for the trainer's lifetime.
func New(builder ModelBuilder, tokenizer api.Tokenizer, corpus datasets.Dataset, task string, args *TrainingArguments) (*PoetryClassificationTrainer, error) {
	if err := args.Validate(); err != nil {
		return nil, err
	}
	labels := poetry.LabelsForTask(task)
	if labels == nil {
		return nil, errors.Errorf("unknown task %q", task)
	}
	p2t, err := poetry.New(tokenizer)
	if err != nil {
		return nil, err
	}

	splits, err := corpus.Split(args.Seed)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to split %s corpus", task)
	}

	t := &PoetryClassificationTrainer{
		task:      task,
		labels:    labels,
		tokenizer: tokenizer,
		p2t:       p2t,
		args:      args,
		builder:   builder,
		metricSet: metrics.Standard(),
		trainSet:  encode(tokenizer, splits.Train),
		evalSet:   encode(tokenizer, splits.Eval),
		testSet:   encode(tokenizer, splits.Test),
		runID:     uuid.NewString(),
	}

	if len(t.trainSet) > 0 {
		rng := rand.New(rand.NewSource(args.Seed))
		idx := rng.Intn(len(t.trainSet))
		sample := t.trainSet[idx].InputIDs
		klog.Infof("Sample %d of the training set: %v", idx, sample)
		klog.Infof("Sample %d of the training set (detokenized): %q", idx, tokenizer.Decode(sample))
	}
	return t, nil
}

// encode tokenizes a dataset split, cleaning each sentence first. Sentence
// pairs are joined by the tokenizer's end-of-sentence token when it has one.
func encode(tokenizer api.Tokenizer, ds datasets.Dataset) EncodedDataset {
	var sep []int
	if eos, err := tokenizer.SpecialTokenID(api.TokEndOfSentence); err == nil {
		sep = []int{eos}
	}
	out := make(EncodedDataset, 0, len(ds))
	for _, ex := range ds {
		ids := tokenizer.Encode(datasets.CleanSentence(ex.Text, ex.Language))
		if ex.Text2 != "" {
			ids = append(ids, sep...)
			ids = append(ids, tokenizer.Encode(datasets.CleanSentence(ex.Text2, ex.Language))...)
		}
		out = append(out, EncodedExample{InputIDs: ids, Label: ex.Label, Language: ex.Language})
	}
	return out
}

// Task returns the task this trainer was built for.
func (t *PoetryClassificationTrainer) Task() string { return t.task }

// Model returns the current model, or nil before the first Train call.
func (t *PoetryClassificationTrainer) Model() Model { return t.model }

// Args returns the training arguments.
func (t *PoetryClassificationTrainer) Args() *TrainingArguments { return t.args }

// NumParameters returns the current model's parameter count, 0 if none.
func (t *PoetryClassificationTrainer) NumParameters() int64 {
	if t.model == nil {
		return 0
	}
	return t.model.NumParameters()
}

// Train runs training with checkpoint resumption:
//
//   - output directory absent, or OverwriteOutputDir set: fresh run;
//   - output directory present with a config.json: training already finished,
//     the final weights are loaded and no training step is performed;
//   - output directory present with checkpoint-<step> subdirectories but no
//     config.json: training resumes from the highest-numbered checkpoint.
func (t *PoetryClassificationTrainer) Train(ctx context.Context) error {
	return t.runTraining(ctx, t.args)
}

// runTraining applies the resume state machine against args.OutputDir. Grid
// search uses it with per-trial argument sets.
func (t *PoetryClassificationTrainer) runTraining(ctx context.Context, args *TrainingArguments) error {
	resumeFrom := ""
	if !args.OverwriteOutputDir && files.IsDir(args.OutputDir) {
		if files.Exists(path.Join(args.OutputDir, ConfigFileName)) {
			klog.Infof("Output directory (%s) exists already and is not empty. Skipping training.", args.OutputDir)
			return t.loadFinalModel(args.OutputDir)
		}
		if last := LastCheckpoint(args.OutputDir); last != "" {
			klog.Infof("Checkpoint detected, resuming training at %s. To avoid this behavior, change "+
				"the output directory or set OverwriteOutputDir to train from scratch.", last)
			resumeFrom = last
		}
	}

	if err := t.ensureModel(); err != nil {
		return err
	}
	if err := os.MkdirAll(args.OutputDir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create output directory %q", args.OutputDir)
	}
	if err := t.model.Fit(ctx, args, t.trainSet, t.evalSet, resumeFrom); err != nil {
		return errors.Wrapf(err, "training failed for task %s", t.task)
	}
	return t.saveModel(args.OutputDir)
}

func (t *PoetryClassificationTrainer) ensureModel() error {
	if t.model != nil {
		return nil
	}
	model, err := t.builder(len(t.labels))
	if err != nil {
		return errors.Wrap(err, "model builder failed")
	}
	t.model = model
	return nil
}

// saveModel writes final weights, config.json and trainer_state.json into dir.
// The config.json doubles as the training-completed marker.
func (t *PoetryClassificationTrainer) saveModel(dir string) error {
	if err := safetensors.Save(path.Join(dir, WeightsFileName), t.model.Weights()); err != nil {
		return err
	}
	id2label := make(map[string]string, len(t.labels))
	label2id := make(map[string]int, len(t.labels))
	for i, label := range t.labels {
		id2label[strconv.Itoa(i)] = label
		label2id[label] = i
	}
	config := &ModelConfig{
		Task:        t.task,
		NumLabels:   len(t.labels),
		ID2Label:    id2label,
		Label2ID:    label2id,
		LabelTokens: t.p2t.Labels2Tokens(t.task),
	}
	if err := WriteJSON(path.Join(dir, ConfigFileName), config); err != nil {
		return err
	}
	state := &TrainerState{
		RunID:       t.runID,
		Task:        t.task,
		Epoch:       t.args.NumTrainEpochs,
		CompletedAt: time.Now().UTC(),
	}
	return WriteJSON(path.Join(dir, StateFileName), state)
}

// loadFinalModel loads the final weights saved under dir into a (possibly
// fresh) model, without any training step.
func (t *PoetryClassificationTrainer) loadFinalModel(dir string) error {
	if err := t.ensureModel(); err != nil {
		return err
	}
	weights, err := safetensors.Load(path.Join(dir, WeightsFileName))
	if err != nil {
		return errors.Wrapf(err, "failed to load final model weights from %q", dir)
	}
	return errors.Wrapf(t.model.LoadWeights(weights), "failed to restore model weights from %q", dir)
}

// Evaluate computes the metric set over ds; keys are prefixed like
// "eval_f1". A "<prefix>_samples" entry carries the slice size.
func (t *PoetryClassificationTrainer) Evaluate(ctx context.Context, ds EncodedDataset, prefix string) (map[string]float64, error) {
	if t.model == nil {
		return nil, errors.New("no model: call Train (or GridSearch) first")
	}
	preds, err := t.predictions(ctx, ds)
	if err != nil {
		return nil, err
	}
	computed, err := metrics.Compute(t.metricSet, preds, ds.Labels())
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(computed)+1)
	for k, v := range computed {
		out[prefix+"_"+k] = v
	}
	out[prefix+"_samples"] = float64(len(ds))
	return out, nil
}

// predictions runs the model over ds and arg-maxes each logits row.
func (t *PoetryClassificationTrainer) predictions(ctx context.Context, ds EncodedDataset) ([]int, error) {
	logits, err := t.model.Predict(ctx, ds)
	if err != nil {
		return nil, errors.Wrap(err, "prediction failed")
	}
	dims := logits.Shape().Dimensions
	if len(dims) != 2 || dims[0] != len(ds) {
		return nil, errors.Errorf("unexpected logits shape %v for %d examples", dims, len(ds))
	}
	return argmaxRows(logits, dims[0], dims[1]), nil
}

// Test evaluates the held-out test split plus one slice per language present,
// logging every slice and, when saveMetrics is set, writing
// "<slice>_results.json" files ("test", "test-de", "test-en", ...) under the
// output directory. It returns the metrics per slice name.
func (t *PoetryClassificationTrainer) Test(ctx context.Context, saveMetrics bool) (map[string]map[string]float64, error) {
	klog.Info("Testing model.")
	slices := []struct {
		name string
		ds   EncodedDataset
	}{{"test", t.testSet}}
	for _, language := range testLanguages(t.testSet) {
		slices = append(slices, struct {
			name string
			ds   EncodedDataset
		}{"test-" + language, t.testSet.ByLanguage(language)})
	}

	results := make(map[string]map[string]float64, len(slices))
	for _, slice := range slices {
		m, err := t.Evaluate(ctx, slice.ds, "test")
		if err != nil {
			return nil, errors.Wrapf(err, "evaluation of slice %q failed", slice.name)
		}
		t.LogMetrics(slice.name, m)
		if saveMetrics {
			if err := t.SaveMetrics(slice.name, m); err != nil {
				return nil, err
			}
		}
		results[slice.name] = m
	}
	return results, nil
}

// testLanguages returns the distinct languages of ds in sorted order.
func testLanguages(ds EncodedDataset) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ex := range ds {
		if ex.Language != "" && !seen[ex.Language] {
			seen[ex.Language] = true
			out = append(out, ex.Language)
		}
	}
	sort.Strings(out)
	return out
}

// LogMetrics logs one metric slice, keys sorted.
func (t *PoetryClassificationTrainer) LogMetrics(name string, m map[string]float64) {
	klog.Infof("***** %s metrics *****", name)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		klog.Infof("  %s = %.4f", k, m[k])
	}
}

// SaveMetrics writes the metric slice as "<name>_results.json" in the output directory.
func (t *PoetryClassificationTrainer) SaveMetrics(name string, m map[string]float64) error {
	return WriteJSON(path.Join(t.args.OutputDir, name+"_results.json"), m)
}
