package embedding

// MeanPool averages token vectors from a flattened [seq, dim] hidden state, counting
// only positions where mask is non-zero. Returns a zero vector when the mask is empty.
func MeanPool(hidden []float32, mask []int64, dim int) []float32 {
	out := make([]float32, dim)
	var count float32
	for pos, m := range mask {
		if m == 0 {
			continue
		}
		base := pos * dim
		if base+dim > len(hidden) {
			break
		}
		for j := 0; j < dim; j++ {
			out[j] += hidden[base+j]
		}
		count++
	}
	if count == 0 {
		return out
	}
	for j := range out {
		out[j] /= count
	}
	return out
}
