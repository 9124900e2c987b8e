package trainers_test

import (
	"context"
	"fmt"
	"os"
	"path"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verseml/poetics/datasets"
	"github.com/verseml/poetics/tokenizers/api"
	"github.com/verseml/poetics/trainers"
)

// wordTokenizer assigns each whitespace-separated word a stable id. It carries
// 30 reserved placeholder tokens for the label mapping.
type wordTokenizer struct {
	vocab    map[string]int
	idToWord map[int]string
	extra    []string
}

func newWordTokenizer() *wordTokenizer {
	wt := &wordTokenizer{vocab: map[string]int{}, idToWord: map[int]string{}}
	register := func(word string) {
		if _, ok := wt.vocab[word]; ok {
			return
		}
		id := len(wt.vocab)
		wt.vocab[word] = id
		wt.idToWord[id] = word
	}
	register("</s>")
	for i := 0; i < 30; i++ {
		token := fmt.Sprintf("<extra_id_%d>", i)
		register(token)
		wt.extra = append(wt.extra, token)
	}
	return wt
}

func (wt *wordTokenizer) Encode(text string) []int {
	var ids []int
	word := ""
	flush := func() {
		if word == "" {
			return
		}
		if _, ok := wt.vocab[word]; !ok {
			id := len(wt.vocab)
			wt.vocab[word] = id
			wt.idToWord[id] = word
		}
		ids = append(ids, wt.vocab[word])
		word = ""
	}
	for _, r := range text {
		if r == ' ' {
			flush()
			continue
		}
		word += string(r)
	}
	flush()
	return ids
}

func (wt *wordTokenizer) Decode(ids []int) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += " "
		}
		out += wt.idToWord[id]
	}
	return out
}

func (wt *wordTokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	if token == api.TokEndOfSentence {
		return wt.vocab["</s>"], nil
	}
	return 0, errors.Errorf("special token %s not registered", token)
}

func (wt *wordTokenizer) TokenToID(token string) (int, bool) {
	id, ok := wt.vocab[token]
	return id, ok
}

func (wt *wordTokenizer) AdditionalSpecialTokens() []string { return wt.extra }

var _ api.Tokenizer = &wordTokenizer{}

// oracleModel is a backend stub whose predictions are always correct. It
// records how Fit was called.
type oracleModel struct {
	numLabels  int
	fitCalls   int
	lastResume string
	lastRate   float64
	weights    map[string]*tensors.Tensor
}

func newOracleModel(numLabels int) *oracleModel {
	return &oracleModel{
		numLabels: numLabels,
		weights: map[string]*tensors.Tensor{
			"oracle.bias": tensors.FromFlatDataAndDimensions(make([]float32, numLabels), numLabels),
		},
	}
}

func (m *oracleModel) Fit(ctx context.Context, args *trainers.TrainingArguments, train, eval trainers.EncodedDataset, resumeFrom string) error {
	m.fitCalls++
	m.lastResume = resumeFrom
	m.lastRate = args.LearningRate
	return ctx.Err()
}

func (m *oracleModel) Predict(ctx context.Context, ds trainers.EncodedDataset) (*tensors.Tensor, error) {
	logits := make([]float32, len(ds)*m.numLabels)
	for i, ex := range ds {
		logits[i*m.numLabels+ex.Label] = 1
	}
	return tensors.FromFlatDataAndDimensions(logits, len(ds), m.numLabels), nil
}

func (m *oracleModel) Weights() map[string]*tensors.Tensor { return m.weights }

func (m *oracleModel) LoadWeights(weights map[string]*tensors.Tensor) error {
	if _, ok := weights["oracle.bias"]; !ok {
		return errors.New("oracle.bias missing from weights")
	}
	m.weights = weights
	return nil
}

func (m *oracleModel) NumParameters() int64 { return int64(m.numLabels) }

var _ trainers.Model = &oracleModel{}

// trackingBuilder keeps every model it built, so tests can inspect models
// created behind the trainer's back (fresh grid-search trials, skip paths).
type trackingBuilder struct {
	built []*oracleModel
}

func (b *trackingBuilder) build(numLabels int) (trainers.Model, error) {
	m := newOracleModel(numLabels)
	b.built = append(b.built, m)
	return m, nil
}

// alliterationCorpus builds a three-class corpus with n examples per class.
// Class 0 is German, the rest English, so the test split always carries both
// languages.
func alliterationCorpus(n int) datasets.Dataset {
	var ds datasets.Dataset
	for label := 0; label < 3; label++ {
		language := "en"
		if label == 0 {
			language = "de"
		}
		for i := 0; i < n; i++ {
			ds = append(ds, datasets.Example{
				Text:     fmt.Sprintf("verse %d of class %d", i, label),
				Language: language,
				Label:    label,
			})
		}
	}
	return ds
}

func newTestTrainer(t *testing.T, outputDir string) (*trainers.PoetryClassificationTrainer, *trackingBuilder) {
	t.Helper()
	builder := &trackingBuilder{}
	args := trainers.NewTrainingArguments("alliteration", outputDir, true)
	trainer, err := trainers.New(builder.build, newWordTokenizer(), alliterationCorpus(40), "alliteration", args)
	require.NoError(t, err)
	return trainer, builder
}

func TestTrainFreshRun(t *testing.T) {
	outputDir := path.Join(t.TempDir(), "out")
	trainer, builder := newTestTrainer(t, outputDir)

	require.NoError(t, trainer.Train(context.Background()))

	require.Len(t, builder.built, 1)
	assert.Equal(t, 1, builder.built[0].fitCalls)
	assert.Equal(t, "", builder.built[0].lastResume)

	for _, name := range []string{trainers.ConfigFileName, trainers.WeightsFileName, trainers.StateFileName} {
		assert.FileExists(t, path.Join(outputDir, name))
	}

	var config trainers.ModelConfig
	require.NoError(t, trainers.ReadJSON(path.Join(outputDir, trainers.ConfigFileName), &config))
	assert.Equal(t, "alliteration", config.Task)
	assert.Equal(t, 3, config.NumLabels)
	assert.Equal(t, "low", config.ID2Label["0"])
	assert.Equal(t, 2, config.Label2ID["high"])
	// Labels occupy the first reserved slots, in declaration order.
	assert.Equal(t, "<extra_id_0>", config.LabelTokens["low"])
	assert.Equal(t, "<extra_id_2>", config.LabelTokens["high"])
}

func TestTrainSkipsWhenAlreadyTrained(t *testing.T) {
	outputDir := path.Join(t.TempDir(), "out")
	first, _ := newTestTrainer(t, outputDir)
	require.NoError(t, first.Train(context.Background()))

	// A second run against the same output directory must load the final
	// weights without a single training step.
	second, builder := newTestTrainer(t, outputDir)
	require.NoError(t, second.Train(context.Background()))

	require.Len(t, builder.built, 1)
	assert.Equal(t, 0, builder.built[0].fitCalls)
	assert.NotNil(t, builder.built[0].weights["oracle.bias"])
}

func TestTrainResumesFromLastCheckpoint(t *testing.T) {
	outputDir := path.Join(t.TempDir(), "out")
	require.NoError(t, os.MkdirAll(path.Join(outputDir, "checkpoint-5"), 0755))
	require.NoError(t, os.MkdirAll(path.Join(outputDir, "checkpoint-12"), 0755))

	trainer, builder := newTestTrainer(t, outputDir)
	require.NoError(t, trainer.Train(context.Background()))

	require.Len(t, builder.built, 1)
	assert.Equal(t, 1, builder.built[0].fitCalls)
	assert.Equal(t, path.Join(outputDir, "checkpoint-12"), builder.built[0].lastResume)
}

func TestTrainOverwriteStartsFresh(t *testing.T) {
	outputDir := path.Join(t.TempDir(), "out")
	first, _ := newTestTrainer(t, outputDir)
	require.NoError(t, first.Train(context.Background()))

	second, builder := newTestTrainer(t, outputDir)
	second.Args().OverwriteOutputDir = true
	require.NoError(t, second.Train(context.Background()))

	require.Len(t, builder.built, 1)
	assert.Equal(t, 1, builder.built[0].fitCalls)
	assert.Equal(t, "", builder.built[0].lastResume)
}

func TestTestEvaluatesPerLanguageSlices(t *testing.T) {
	outputDir := path.Join(t.TempDir(), "out")
	trainer, _ := newTestTrainer(t, outputDir)
	require.NoError(t, trainer.Train(context.Background()))

	results, err := trainer.Test(context.Background(), true)
	require.NoError(t, err)

	require.Len(t, results, 3)
	for _, name := range []string{"test", "test-de", "test-en"} {
		require.Contains(t, results, name)
		m := results[name]
		assert.Equal(t, 1.0, m["test_accuracy"], "slice %s", name)
		assert.Equal(t, 1.0, m["test_f1"], "slice %s", name)
		assert.Greater(t, m["test_samples"], 0.0, "slice %s", name)
		assert.FileExists(t, path.Join(outputDir, name+"_results.json"))
	}
	total := results["test-de"]["test_samples"] + results["test-en"]["test_samples"]
	assert.Equal(t, results["test"]["test_samples"], total)
}

func TestGridSearch(t *testing.T) {
	outputDir := path.Join(t.TempDir(), "out")
	trainer, builder := newTestTrainer(t, outputDir)

	best, err := trainer.GridSearch(context.Background(), trainers.SearchSpace{
		"learning_rate": {1e-6, 1e-4},
	})
	require.NoError(t, err)

	// Two trial models plus the fresh model the best weights are loaded into.
	require.Len(t, builder.built, 3)
	assert.Equal(t, 1e-6, builder.built[0].lastRate)
	assert.Equal(t, 1e-4, builder.built[1].lastRate)
	assert.Equal(t, 0, builder.built[2].fitCalls)

	// Predictions are perfect for every trial, so the first one wins.
	assert.Equal(t, 0, best.Run)
	assert.Equal(t, 1.0, best.Objective)
	assert.Equal(t, map[string]float64{"learning_rate": 1e-6}, best.Params)
	assert.Equal(t, path.Join(outputDir, "run-0"), best.OutputDir)

	for _, run := range []string{"run-0", "run-1"} {
		assert.FileExists(t, path.Join(outputDir, run, trainers.ConfigFileName))
		assert.FileExists(t, path.Join(outputDir, run, trainers.WeightsFileName))
	}

	var state trainers.TrainerState
	require.NoError(t, trainers.ReadJSON(path.Join(outputDir, trainers.StateFileName), &state))
	assert.Equal(t, best.Params, state.TrialParams)
	assert.Equal(t, best.Objective, state.BestMetric)
}

func TestGridSearchResumesFinishedTrials(t *testing.T) {
	outputDir := path.Join(t.TempDir(), "out")
	space := trainers.SearchSpace{"learning_rate": {1e-6, 1e-4}}

	first, _ := newTestTrainer(t, outputDir)
	_, err := first.GridSearch(context.Background(), space)
	require.NoError(t, err)

	// Rerunning the search finds every trial finished and never trains.
	second, builder := newTestTrainer(t, outputDir)
	_, err = second.GridSearch(context.Background(), space)
	require.NoError(t, err)
	for _, m := range builder.built {
		assert.Equal(t, 0, m.fitCalls)
	}
}

func TestEvaluateWithoutModel(t *testing.T) {
	trainer, _ := newTestTrainer(t, path.Join(t.TempDir(), "out"))
	_, err := trainer.Evaluate(context.Background(), nil, "eval")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model")
}

func TestNewRejectsUnknownTask(t *testing.T) {
	builder := &trackingBuilder{}
	args := trainers.NewTrainingArguments("sonnet", t.TempDir(), true)
	_, err := trainers.New(builder.build, newWordTokenizer(), alliterationCorpus(40), "sonnet", args)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task")
}
