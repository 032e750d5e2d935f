package nn

import (
	"math"
	"testing"
)

// TestTensorCreation verifies basic tensor operations
func TestTensorCreation(t *testing.T) {
	tensor := NewTensor[float32](3, 4)
	if tensor.Size() != 12 {
		t.Errorf("Expected size 12, got %d", tensor.Size())
	}
	if len(tensor.Shape) != 2 || tensor.Shape[0] != 3 || tensor.Shape[1] != 4 {
		t.Errorf("Expected shape [3, 4], got %v", tensor.Shape)
	}

	data := []float64{1, 2, 3, 4, 5, 6}
	tensor2 := NewTensorFromSlice(data, 2, 3)
	if tensor2.Size() != 6 {
		t.Errorf("Expected size 6, got %d", tensor2.Size())
	}
	if tensor2.Data[0] != 1 || tensor2.Data[5] != 6 {
		t.Errorf("Data not correctly initialized")
	}

	if NewTensorFromSlice([]float32{1, 2, 3}, 2, 2) != nil {
		t.Error("Mismatched slice length should return nil")
	}
}

// TestTensorClone verifies tensor cloning
func TestTensorClone(t *testing.T) {
	original := NewTensorFromSlice([]float32{1, 2, 3, 4}, 4)
	clone := original.Clone()

	original.Data[0] = 100

	if clone.Data[0] != 1 {
		t.Errorf("Clone was modified when original changed")
	}
}

// TestTensorReshape verifies tensor reshaping
func TestTensorReshape(t *testing.T) {
	tensor := NewTensorFromSlice([]float32{1, 2, 3, 4, 5, 6}, 6)
	reshaped := tensor.Reshape(2, 3)

	if reshaped == nil {
		t.Fatal("Reshape returned nil")
	}
	if len(reshaped.Shape) != 2 || reshaped.Shape[0] != 2 || reshaped.Shape[1] != 3 {
		t.Errorf("Expected shape [2, 3], got %v", reshaped.Shape)
	}

	// Invalid reshape should return nil
	invalid := tensor.Reshape(2, 2)
	if invalid != nil {
		t.Error("Invalid reshape should return nil")
	}
}

func TestConcatAndSlice2D(t *testing.T) {
	a := NewTensorFromSlice([]float32{1, 2, 3, 4}, 2, 2)
	b := NewTensorFromSlice([]float32{5, 6}, 1, 2)

	cat := Concat2D(a, b)
	if cat.Shape[0] != 3 || cat.Shape[1] != 2 {
		t.Fatalf("Expected shape [3, 2], got %v", cat.Shape)
	}
	if cat.Data[4] != 5 || cat.Data[5] != 6 {
		t.Errorf("Concat data wrong: %v", cat.Data)
	}

	empty := NewTensor[float32](0, 2)
	if got := Concat2D(empty, a); got.Shape[0] != 2 {
		t.Errorf("Concat with empty lhs should return rhs rows, got %v", got.Shape)
	}

	tail := Slice2D(cat, 1, 3)
	if tail.Shape[0] != 2 || tail.Data[0] != 3 || tail.Data[3] != 6 {
		t.Errorf("Slice2D wrong: shape %v data %v", tail.Shape, tail.Data)
	}
}

func TestMaxAbsDiff(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{1, 2.5, 2}
	if diff := MaxAbsDiff(a, b); math.Abs(diff-1.0) > 1e-9 {
		t.Errorf("Expected max diff 1.0, got %f", diff)
	}
}
