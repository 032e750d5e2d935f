package augment

import (
	"math"
	"math/rand"
	"testing"
)

func TestResampleScalesLength(t *testing.T) {
	buf := &AudioBuffer{SampleRate: 16000, Samples: [][]float32{make([]float32, 1600)}}

	buf.Resample(8000)
	if buf.SampleRate != 8000 {
		t.Fatalf("rate = %d, want 8000", buf.SampleRate)
	}
	if got := buf.NumSamples(); got != 800 {
		t.Errorf("samples = %d, want 800", got)
	}
}

func TestResamplePreservesConstantSignal(t *testing.T) {
	in := make([]float32, 400)
	for i := range in {
		in[i] = 0.25
	}
	buf := &AudioBuffer{SampleRate: 16000, Samples: [][]float32{in}}

	buf.Resample(11025)
	for i, v := range buf.Samples[0] {
		if math.Abs(float64(v)-0.25) > 1e-6 {
			t.Fatalf("sample %d = %g, want 0.25", i, v)
		}
	}
}

func TestResampleSameRateIsNoOp(t *testing.T) {
	in := []float32{1, 2, 3}
	buf := &AudioBuffer{SampleRate: 16000, Samples: [][]float32{in}}

	buf.Resample(16000)
	if buf.NumSamples() != 3 || buf.Samples[0][1] != 2 {
		t.Errorf("same-rate resample changed the buffer: %v", buf.Samples[0])
	}
}

func TestResampleAugmentorPicksCandidateRate(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	aug, err := NewResampleAugmentor(rng, []int{8000, 16000, 32000})
	if err != nil {
		t.Fatal(err)
	}

	seen := map[int]bool{}
	for i := 0; i < 50; i++ {
		buf := &AudioBuffer{SampleRate: 16000, Samples: [][]float32{make([]float32, 160)}}
		aug.Transform(buf)
		switch buf.SampleRate {
		case 8000, 16000, 32000:
			seen[buf.SampleRate] = true
		default:
			t.Fatalf("rate %d is not a candidate", buf.SampleRate)
		}
	}
	if len(seen) < 2 {
		t.Errorf("50 draws hit only %d distinct rates", len(seen))
	}
}

func TestNewResampleAugmentorRejectsEmptyRates(t *testing.T) {
	if _, err := NewResampleAugmentor(rand.New(rand.NewSource(1)), nil); err != ErrNoRates {
		t.Errorf("err = %v, want ErrNoRates", err)
	}
}
