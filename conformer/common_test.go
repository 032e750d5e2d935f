package conformer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAddSOSEOSRoundTrip(t *testing.T) {
	ys := [][]int{
		{4, 7, 2, IgnoreID, IgnoreID},
		{9, IgnoreID, IgnoreID, IgnoreID, IgnoreID},
		{1, 2, 3, 4, 5},
	}
	sos, eos := 99, 99

	ysIn, ysOut := AddSOSEOS(ys, sos, eos, IgnoreID)

	for b := range ys {
		l := LabelLength(ys[b], IgnoreID)

		if ysIn[b][0] != sos {
			t.Errorf("row %d input does not start with sos: %v", b, ysIn[b])
		}
		if ysOut[b][l] != eos {
			t.Errorf("row %d target does not end with eos at %d: %v", b, l, ysOut[b])
		}

		// Stripping sos from the input and eos from the target must
		// recover the original unpadded labels.
		fromIn := ysIn[b][1 : l+1]
		fromOut := ysOut[b][:l]
		want := ys[b][:l]
		if diff := cmp.Diff(want, fromIn); diff != "" {
			t.Errorf("row %d input strip mismatch (-want +got):\n%s", b, diff)
		}
		if diff := cmp.Diff(want, fromOut); diff != "" {
			t.Errorf("row %d target strip mismatch (-want +got):\n%s", b, diff)
		}

		// Nothing but ignore ids after the true content.
		for i := l + 1; i < len(ysIn[b]); i++ {
			if ysIn[b][i] != IgnoreID || ysOut[b][i] != IgnoreID {
				t.Errorf("row %d leaks non-pad tokens into padding: in=%v out=%v", b, ysIn[b], ysOut[b])
			}
		}
	}
}

func TestReversePadListInvolution(t *testing.T) {
	ys := [][]int{
		{1, 2, 3, 4, 5},
		{6, 7, 8, IgnoreID, IgnoreID},
		{9, IgnoreID, IgnoreID, IgnoreID, IgnoreID},
	}
	lengths := []int{5, 3, 1}

	once := ReversePadList(ys, lengths, IgnoreID)
	twice := ReversePadList(once, lengths, IgnoreID)

	if diff := cmp.Diff(ys, twice); diff != "" {
		t.Errorf("double reversal is not the identity (-want +got):\n%s", diff)
	}
}

func TestReversePadListPerRow(t *testing.T) {
	ys := [][]int{
		{1, 2, 3, IgnoreID},
		{4, 5, IgnoreID, IgnoreID},
	}
	got := ReversePadList(ys, []int{3, 2}, IgnoreID)
	want := [][]int{
		{3, 2, 1, IgnoreID},
		{5, 4, IgnoreID, IgnoreID},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("per-row reversal wrong (-want +got):\n%s", diff)
	}
}

func TestLabelLength(t *testing.T) {
	if got := LabelLength([]int{1, 2, IgnoreID}, IgnoreID); got != 2 {
		t.Errorf("LabelLength = %d, want 2", got)
	}
	if got := LabelLength([]int{1, 2, 3}, IgnoreID); got != 3 {
		t.Errorf("unpadded row: LabelLength = %d, want 3", got)
	}
}
