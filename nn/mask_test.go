package nn

import (
	"errors"
	"testing"
)

// TestPadMaskLengthsRoundTrip checks that mask construction followed by
// length reduction returns the original lengths exactly.
func TestPadMaskLengthsRoundTrip(t *testing.T) {
	cases := [][]int{
		{5, 3},
		{1},
		{7, 7, 7},
		{1, 2, 3, 4, 5, 6},
	}
	for _, lengths := range cases {
		maxLen := 0
		for _, l := range lengths {
			if l > maxLen {
				maxLen = l
			}
		}
		mask, err := MakePadMask(lengths, maxLen)
		if err != nil {
			t.Fatalf("MakePadMask(%v): %v", lengths, err)
		}
		got, err := MaskLengths(mask)
		if err != nil {
			t.Fatalf("MaskLengths: %v", err)
		}
		for i := range lengths {
			if got[i] != lengths[i] {
				t.Errorf("lengths %v: round trip gave %v", lengths, got)
				break
			}
		}
	}
}

func TestMakePadMaskRejectsBadLengths(t *testing.T) {
	if _, err := MakePadMask([]int{3, 9}, 5); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("length beyond axis: want ErrInvalidLength, got %v", err)
	}
	if _, err := MakePadMask([]int{0}, 5); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("zero length: want ErrInvalidLength, got %v", err)
	}
}

func TestMaskLengthsRejectsWrongRank(t *testing.T) {
	m := NewMask(4, 4)
	if _, err := MaskLengths(m); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("2D mask: want ErrShapeMismatch, got %v", err)
	}
}

func TestSubsequentMask(t *testing.T) {
	m := SubsequentMask(3)
	want := []bool{
		true, false, false,
		true, true, false,
		true, true, true,
	}
	for i, w := range want {
		if m.Data[i] != w {
			t.Fatalf("subsequent mask mismatch at %d: %v", i, m.Data)
		}
	}
}

func TestChunkMask(t *testing.T) {
	// size 6, chunks of 2, one left chunk of context.
	m := ChunkMask(6, 2, 1)
	// Position 4 (chunk 2) sees chunk 1 and chunk 2, not chunk 0.
	row := m.Row(4)
	want := []bool{false, false, true, true, true, true}
	for j, w := range want {
		if row[j] != w {
			t.Fatalf("chunk mask row 4 = %v, want %v", row, want)
		}
	}

	// Full left context.
	m = ChunkMask(6, 2, -1)
	row = m.Row(4)
	for j := 0; j < 6; j++ {
		if !row[j] {
			t.Fatalf("full-left chunk mask row 4 = %v, want all true", row)
		}
	}

	// Never attends past the end of its own chunk.
	row = m.Row(1)
	if row[2] || row[3] {
		t.Errorf("position 1 must not see beyond chunk 0: %v", row)
	}
}
