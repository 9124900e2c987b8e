package trainers

import "github.com/gomlx/gomlx/pkg/core/tensors"

// argmaxRows returns the index of the largest value in each row of a
// [rows, cols] float32 logits tensor.
func argmaxRows(logits *tensors.Tensor, rows, cols int) []int {
	flat := tensors.MustCopyFlatData[float32](logits)
	out := make([]int, rows)
	for r := 0; r < rows; r++ {
		row := flat[r*cols : (r+1)*cols]
		best := 0
		for c, v := range row {
			if v > row[best] {
				best = c
			}
		}
		out[r] = best
	}
	return out
}
