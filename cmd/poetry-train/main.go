// poetry-train fine-tunes and evaluates a poetry sequence classifier on one of
// the three tasks (meter, rhyme, alliteration).
//
// The corpus is a parquet file, given either as a local path or fetched from a
// HuggingFace dataset repository; the tokenizer is a tokenizer.json file, local
// or fetched from a model repository.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"k8s.io/klog/v2"

	"github.com/verseml/poetics/datasets"
	"github.com/verseml/poetics/hub"
	"github.com/verseml/poetics/internal/files"
	"github.com/verseml/poetics/models/baseline"
	"github.com/verseml/poetics/tokenizers/hftokenizer"
	"github.com/verseml/poetics/trainers"
)

var (
	flagTask      = flag.String("task", "meter", "Task to train: meter, rhyme or alliteration.")
	flagData      = flag.String("data", "", "Corpus parquet file: a local path, or a HuggingFace dataset repository id (\"owner/name\") holding <task>.parquet.")
	flagTokenizer = flag.String("tokenizer", "", "tokenizer.json file: a local path, or a HuggingFace model repository id.")
	flagOutput    = flag.String("output_dir", "", "Directory for checkpoints, final weights and metric files.")
	flagOverwrite = flag.Bool("overwrite_output_dir", false, "Train from scratch even if the output directory holds checkpoints or a finished model.")
	flagTestRun   = flag.Bool("test_run", false, "Single-epoch run, for smoke testing.")
	flagGrid      = flag.Bool("grid_search", false, "Run the learning-rate grid search instead of a single training run.")
	flagAuthToken = flag.String("auth_token", "", "HuggingFace token, for gated repositories.")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	sliceStyle  = lipgloss.NewStyle().Bold(true)
	metricStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagData == "" || *flagTokenizer == "" || *flagOutput == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		klog.Exitf("poetry-train: %+v", err)
	}
}

func run(ctx context.Context) error {
	dataPath, err := resolveFile(ctx, *flagData, *flagTask+".parquet", hub.RepoTypeDataset)
	if err != nil {
		return err
	}
	tokenizerPath, err := resolveFile(ctx, *flagTokenizer, "tokenizer.json", hub.RepoTypeModel)
	if err != nil {
		return err
	}

	tokenizer, err := hftokenizer.NewFromFile(nil, tokenizerPath)
	if err != nil {
		return err
	}
	corpus, err := datasets.Load(dataPath, *flagTask)
	if err != nil {
		return err
	}
	klog.Infof("Loaded %d %s examples (languages: %v)", len(corpus), *flagTask, corpus.Languages())

	args := trainers.NewTrainingArguments(*flagTask, *flagOutput, *flagTestRun)
	args.OverwriteOutputDir = *flagOverwrite

	trainer, err := trainers.New(baseline.Builder(tokenizer.VocabSize()), tokenizer, corpus, *flagTask, args)
	if err != nil {
		return err
	}

	if *flagGrid {
		best, err := trainer.GridSearch(ctx, trainers.DefaultSearchSpace())
		if err != nil {
			return err
		}
		klog.Infof("Grid search done: best run-%d (eval_f1=%.4f)", best.Run, best.Objective)
	} else if err := trainer.Train(ctx); err != nil {
		return err
	}
	klog.Infof("Model has %d parameters.", trainer.NumParameters())

	results, err := trainer.Test(ctx, true)
	if err != nil {
		return err
	}
	printResults(*flagTask, results)
	return nil
}

// resolveFile returns spec itself when it's an existing local file, otherwise
// treats spec as a hub repository id and downloads fileName from it.
func resolveFile(ctx context.Context, spec, fileName string, repoType hub.RepoType) (string, error) {
	if files.Exists(spec) {
		return spec, nil
	}
	repo := hub.New(spec).WithAuth(*flagAuthToken)
	if repoType == hub.RepoTypeDataset {
		repo = hub.NewDataset(spec).WithAuth(*flagAuthToken)
	}
	return repo.DownloadFileWithContext(ctx, fileName)
}

func printResults(task string, results map[string]map[string]float64) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("Results (%s)", task)))
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s\n", sliceStyle.Render(name))
		m := results[name]
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("    %s %.4f\n", metricStyle.Render(fmt.Sprintf("%-16s", k)), m[k])
		}
	}
}
