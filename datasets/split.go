package datasets

import (
	"math/rand"
	"sort"

	"github.com/pkg/errors"
)

// TrainTestSplit partitions the dataset into a train part and a test part of
// approximately testSize fraction, stratified by label: every label class
// contributes the same fraction to the test part. The shuffle inside each
// class is deterministic for a given seed.
func (ds Dataset) TrainTestSplit(testSize float64, seed int64) (train, test Dataset, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, errors.Errorf("testSize must be in (0, 1), got %g", testSize)
	}

	// Group example indices per label class.
	byLabel := make(map[int][]int)
	for i, ex := range ds {
		byLabel[ex.Label] = append(byLabel[ex.Label], i)
	}
	labels := make([]int, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	rng := rand.New(rand.NewSource(seed))
	var trainIdx, testIdx []int
	for _, label := range labels {
		indices := byLabel[label]
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
		// At least one example per class goes to test when the class has 2+.
		n := int(float64(len(indices)) * testSize)
		if n == 0 && len(indices) > 1 {
			n = 1
		}
		testIdx = append(testIdx, indices[:n]...)
		trainIdx = append(trainIdx, indices[n:]...)
	}

	// Restore corpus order within each part so splitting is independent of
	// map iteration order.
	sort.Ints(trainIdx)
	sort.Ints(testIdx)
	return ds.take(trainIdx), ds.take(testIdx), nil
}

// Splits holds the three fixed dataset parts used by a trainer.
type Splits struct {
	Train Dataset
	Eval  Dataset
	Test  Dataset
}

// Split derives the standard train (90%) / eval (5%) / test (5%) partition,
// stratified by label.
func (ds Dataset) Split(seed int64) (*Splits, error) {
	train, holdout, err := ds.TrainTestSplit(0.1, seed)
	if err != nil {
		return nil, err
	}
	eval, test, err := holdout.TrainTestSplit(0.5, seed)
	if err != nil {
		return nil, err
	}
	return &Splits{Train: train, Eval: eval, Test: test}, nil
}

func (ds Dataset) take(indices []int) Dataset {
	out := make(Dataset, len(indices))
	for i, idx := range indices {
		out[i] = ds[idx]
	}
	return out
}
