// Package metrics computes the classification metrics reported after
// evaluation: accuracy and macro-averaged precision, recall and F1.
package metrics

import "github.com/pkg/errors"

// Metric computes one or more named scores from integer predictions and
// references of equal length.
type Metric interface {
	Name() string
	Compute(predictions, references []int) map[string]float64
}

// Standard returns the metric set used for poetry classification: macro
// precision, macro recall, macro F1 and accuracy.
func Standard() []Metric {
	return []Metric{Precision{}, Recall{}, F1{}, Accuracy{}}
}

// Compute evaluates every metric and merges the results into a single map.
func Compute(ms []Metric, predictions, references []int) (map[string]float64, error) {
	if len(predictions) != len(references) {
		return nil, errors.Errorf(
			"predictions and references length mismatch: %d vs %d", len(predictions), len(references))
	}
	out := make(map[string]float64)
	for _, m := range ms {
		for k, v := range m.Compute(predictions, references) {
			out[k] = v
		}
	}
	return out, nil
}

// Accuracy is the fraction of exactly matching predictions.
type Accuracy struct{}

func (Accuracy) Name() string { return "accuracy" }

func (Accuracy) Compute(predictions, references []int) map[string]float64 {
	if len(references) == 0 {
		return map[string]float64{"accuracy": 0}
	}
	correct := 0
	for i, p := range predictions {
		if p == references[i] {
			correct++
		}
	}
	return map[string]float64{"accuracy": float64(correct) / float64(len(references))}
}

// Precision is macro-averaged precision with zero division mapped to 0.
type Precision struct{}

func (Precision) Name() string { return "precision" }

func (Precision) Compute(predictions, references []int) map[string]float64 {
	counts := tally(predictions, references)
	var sum float64
	for _, c := range counts {
		if predicted := c.truePos + c.falsePos; predicted > 0 {
			sum += float64(c.truePos) / float64(predicted)
		}
	}
	return map[string]float64{"precision": sum / float64(max(len(counts), 1))}
}

// Recall is macro-averaged recall with zero division mapped to 0.
type Recall struct{}

func (Recall) Name() string { return "recall" }

func (Recall) Compute(predictions, references []int) map[string]float64 {
	counts := tally(predictions, references)
	var sum float64
	for _, c := range counts {
		if actual := c.truePos + c.falseNeg; actual > 0 {
			sum += float64(c.truePos) / float64(actual)
		}
	}
	return map[string]float64{"recall": sum / float64(max(len(counts), 1))}
}

// F1 is the macro-averaged harmonic mean of per-class precision and recall.
type F1 struct{}

func (F1) Name() string { return "f1" }

func (F1) Compute(predictions, references []int) map[string]float64 {
	counts := tally(predictions, references)
	var sum float64
	for _, c := range counts {
		var precision, recall float64
		if predicted := c.truePos + c.falsePos; predicted > 0 {
			precision = float64(c.truePos) / float64(predicted)
		}
		if actual := c.truePos + c.falseNeg; actual > 0 {
			recall = float64(c.truePos) / float64(actual)
		}
		if precision+recall > 0 {
			sum += 2 * precision * recall / (precision + recall)
		}
	}
	return map[string]float64{"f1": sum / float64(max(len(counts), 1))}
}

type classCounts struct {
	truePos, falsePos, falseNeg int
}

// tally accumulates per-class confusion counts over every class that appears
// in either predictions or references.
func tally(predictions, references []int) map[int]*classCounts {
	counts := make(map[int]*classCounts)
	class := func(label int) *classCounts {
		c, ok := counts[label]
		if !ok {
			c = &classCounts{}
			counts[label] = c
		}
		return c
	}
	for i, p := range predictions {
		r := references[i]
		if p == r {
			class(p).truePos++
			continue
		}
		class(p).falsePos++
		class(r).falseNeg++
	}
	return counts
}
