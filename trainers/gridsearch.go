package trainers

import (
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/verseml/poetics/safetensors"
)

// SearchSpace maps a hyperparameter name to the values to try. The cartesian
// product over all entries defines the trials.
type SearchSpace map[string][]float64

// DefaultSearchSpace is the published learning-rate sweep.
func DefaultSearchSpace() SearchSpace {
	return SearchSpace{"learning_rate": {1e-6, 5e-6, 1e-5, 5e-5, 1e-4}}
}

// Trial is the outcome of one grid-search combination.
type Trial struct {
	Run       int
	Params    map[string]float64
	Objective float64
	OutputDir string
}

// GridSearch trains one trial per combination of the search space under
// "run-<n>" subdirectories of the output directory, maximizing eval_f1, and
// leaves the trainer holding the best trial's model (weights reloaded from
// that trial's last checkpoint). Each trial goes through the same
// checkpoint-resume state machine as Train, so an interrupted search can be
// rerun and picks up where it stopped.
func (t *PoetryClassificationTrainer) GridSearch(ctx context.Context, space SearchSpace) (*Trial, error) {
	if len(space) == 0 {
		return nil, errors.New("grid search: empty search space")
	}
	combos := enumerate(space)
	klog.Infof("Grid search over %d trials.", len(combos))

	var best *Trial
	for n, params := range combos {
		args := t.args.clone()
		args.OutputDir = path.Join(t.args.OutputDir, fmt.Sprintf("run-%d", n))
		for name, value := range params {
			if err := applyHyperparameter(args, name, value); err != nil {
				return nil, err
			}
		}

		t.model = nil // fresh model per trial
		klog.Infof("Trial %d: %v", n, params)
		if err := t.runTraining(ctx, args); err != nil {
			return nil, errors.Wrapf(err, "grid-search trial %d failed", n)
		}
		evalMetrics, err := t.Evaluate(ctx, t.evalSet, "eval")
		if err != nil {
			return nil, errors.Wrapf(err, "grid-search trial %d evaluation failed", n)
		}
		objective := evalMetrics["eval_f1"]
		klog.Infof("Trial %d: eval_f1=%.4f", n, objective)
		if best == nil || objective > best.Objective {
			best = &Trial{Run: n, Params: params, Objective: objective, OutputDir: args.OutputDir}
		}
	}

	if err := t.loadTrial(best); err != nil {
		return nil, err
	}
	klog.Infof("Best trial: run-%d with eval_f1=%.4f (%v)", best.Run, best.Objective, best.Params)
	return best, nil
}

// loadTrial reloads the model weights of a finished trial from its last
// checkpoint (falling back to the trial's final weights) into a fresh model.
func (t *PoetryClassificationTrainer) loadTrial(trial *Trial) error {
	dir := LastCheckpoint(trial.OutputDir)
	if dir == "" {
		dir = trial.OutputDir
	}
	weights, err := safetensors.Load(path.Join(dir, WeightsFileName))
	if err != nil {
		return errors.Wrapf(err, "failed to load weights of trial run-%d", trial.Run)
	}
	t.model = nil
	if err := t.ensureModel(); err != nil {
		return err
	}
	if err := t.model.LoadWeights(weights); err != nil {
		return errors.Wrapf(err, "failed to restore weights of trial run-%d", trial.Run)
	}
	state := &TrainerState{
		RunID:       t.runID,
		Task:        t.task,
		BestMetric:  trial.Objective,
		TrialParams: trial.Params,
	}
	return WriteJSON(path.Join(t.args.OutputDir, StateFileName), state)
}

// applyHyperparameter maps a search-space name onto its TrainingArguments field.
func applyHyperparameter(args *TrainingArguments, name string, value float64) error {
	switch name {
	case "learning_rate":
		args.LearningRate = value
	case "weight_decay":
		args.WeightDecay = value
	case "warmup_ratio":
		args.WarmupRatio = value
	case "num_train_epochs":
		args.NumTrainEpochs = int(value)
	default:
		return errors.Errorf("grid search: unknown hyperparameter %q", name)
	}
	return nil
}

// enumerate expands the search space into the full list of combinations, in a
// deterministic order (names sorted, values in declaration order).
func enumerate(space SearchSpace) []map[string]float64 {
	names := make([]string, 0, len(space))
	for name := range space {
		names = append(names, name)
	}
	sort.Strings(names)

	combos := []map[string]float64{{}}
	for _, name := range names {
		var next []map[string]float64
		for _, combo := range combos {
			for _, value := range space[name] {
				extended := make(map[string]float64, len(combo)+1)
				for k, v := range combo {
					extended[k] = v
				}
				extended[name] = value
				next = append(next, extended)
			}
		}
		combos = next
	}
	return combos
}
