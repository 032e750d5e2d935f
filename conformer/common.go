package conformer

import (
	"github.com/openfluke/chorale/nn"
)

// IgnoreID is the sentinel padding token for label batches. It never
// appears before an example's true length.
const IgnoreID = -1

// LabelLength returns the true length of a padded label row: the
// number of tokens before the first ignoreID.
func LabelLength(row []int, ignoreID int) int {
	for i, v := range row {
		if v == ignoreID {
			return i
		}
	}
	return len(row)
}

// AddSOSEOS builds decoder input and target rows from padded labels:
// input = [sos] + labels[:len], target = labels[:len] + [eos], both
// right-padded with ignoreID to a common width of maxLen+1.
func AddSOSEOS(ys [][]int, sos, eos, ignoreID int) (ysIn, ysOut [][]int) {
	maxLen := 0
	for _, row := range ys {
		if l := LabelLength(row, ignoreID); l > maxLen {
			maxLen = l
		}
	}
	width := maxLen + 1
	ysIn = make([][]int, len(ys))
	ysOut = make([][]int, len(ys))
	for b, row := range ys {
		l := LabelLength(row, ignoreID)
		in := make([]int, width)
		out := make([]int, width)
		in[0] = sos
		copy(in[1:], row[:l])
		copy(out, row[:l])
		out[l] = eos
		for i := l + 1; i < width; i++ {
			in[i] = ignoreID
			out[i] = ignoreID
		}
		ysIn[b] = in
		ysOut[b] = out
	}
	return ysIn, ysOut
}

// ReversePadList reverses each row's first lengths[b] tokens
// independently, leaving trailing pad positions untouched. A whole-
// tensor reversal would drag pad tokens to the front of short rows.
func ReversePadList(ys [][]int, lengths []int, pad int) [][]int {
	out := make([][]int, len(ys))
	for b, row := range ys {
		r := make([]int, len(row))
		for i := range r {
			r[i] = pad
		}
		l := lengths[b]
		for i := 0; i < l; i++ {
			r[i] = row[l-1-i]
		}
		copy(r[l:], row[l:])
		out[b] = r
	}
	return out
}

// Accuracy computes the fraction of non-ignored target positions where
// the arg-max prediction equals the target. logits is [batch, width,
// vocab]; target is the matching padded label batch.
func Accuracy(logits *nn.Tensor[float32], target [][]int, ignoreID int) float64 {
	width, vocab := logits.Shape[1], logits.Shape[2]
	correct, total := 0, 0
	for b, row := range target {
		for i, tok := range row {
			if tok == ignoreID || i >= width {
				continue
			}
			pred := nn.ArgMax(logits.Data[(b*width+i)*vocab : (b*width+i+1)*vocab])
			if pred == tok {
				correct++
			}
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}
