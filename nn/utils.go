package nn

// MaxAbsDiff returns the largest absolute element-wise difference
// between two equally sized slices.
func MaxAbsDiff(a, b []float32) float64 {
	maxDiff := 0.0
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > maxDiff {
			maxDiff = diff
		}
	}
	return maxDiff
}

// ArgMax returns the index of the largest value in v, -1 when empty.
func ArgMax(v []float32) int {
	if len(v) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
