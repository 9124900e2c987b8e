// Package datasets loads the poetry training corpora and derives the
// train/eval/test splits used by the trainers.
//
// A corpus is a parquet file with one row per example: the verse text (and an
// optional second text for sentence-pair tasks), the language of the example
// and its label as a string from the task's closed label set.
package datasets

import (
	"bytes"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"

	"github.com/verseml/poetics/poetry"
)

// Example is a single labeled corpus entry. Label is an index into the task's
// label set, not the label string.
type Example struct {
	Text     string
	Text2    string // second sentence for pair tasks, empty otherwise
	Language string
	Label    int
}

// Dataset is an ordered collection of labeled examples.
type Dataset []Example

// row is the on-disk parquet schema of a corpus file.
type row struct {
	Text     string `parquet:"text"`
	Text2    string `parquet:"text2,optional"`
	Language string `parquet:"language"`
	Label    string `parquet:"label"`
}

// Load reads the corpus for the given task ("meter", "rhyme" or
// "alliteration") from a parquet file, mapping label strings to indices in the
// task's label set. Rows with labels outside the set are rejected.
func Load(path, task string) (Dataset, error) {
	labels := poetry.LabelsForTask(task)
	if labels == nil {
		return nil, errors.Errorf("unknown task %q", task)
	}
	label2idx := make(map[string]int, len(labels))
	for i, l := range labels {
		label2idx[l] = i
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open corpus file %q", path)
	}
	defer f.Close()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap corpus file %q", path)
	}
	defer m.Unmap()

	rows, err := parquet.Read[row](bytes.NewReader(m), int64(len(m)))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read parquet corpus %q", path)
	}

	ds := make(Dataset, 0, len(rows))
	for i, r := range rows {
		idx, ok := label2idx[r.Label]
		if !ok {
			return nil, errors.Errorf("row %d of %q: label %q is not a %s label", i, path, r.Label, task)
		}
		ds = append(ds, Example{
			Text:     r.Text,
			Text2:    r.Text2,
			Language: r.Language,
			Label:    idx,
		})
	}
	return ds, nil
}

// Filter returns the subset of examples for which keep returns true.
func (ds Dataset) Filter(keep func(Example) bool) Dataset {
	var out Dataset
	for _, ex := range ds {
		if keep(ex) {
			out = append(out, ex)
		}
	}
	return out
}

// ByLanguage returns the subset of examples in the given language.
func (ds Dataset) ByLanguage(language string) Dataset {
	return ds.Filter(func(ex Example) bool { return ex.Language == language })
}

// Labels returns the label index of every example, in order.
func (ds Dataset) Labels() []int {
	out := make([]int, len(ds))
	for i, ex := range ds {
		out[i] = ex.Label
	}
	return out
}

// Languages returns the distinct languages present, in first-seen order.
func (ds Dataset) Languages() []string {
	seen := make(map[string]bool)
	var out []string
	for _, ex := range ds {
		if !seen[ex.Language] {
			seen[ex.Language] = true
			out = append(out, ex.Language)
		}
	}
	return out
}
