// Package augment holds the audio augmentation collaborators applied
// before feature extraction. Each transform mutates the one buffer it
// is given, in place, keeping the same in-memory representation.
package augment

import (
	"errors"
	"math/rand"
)

// ErrNoRates is returned when an augmentor is built without candidate
// sample rates.
var ErrNoRates = errors.New("augment: no candidate sample rates")

// AudioBuffer is a decoded audio segment: one sample slice per channel
// at a common rate.
type AudioBuffer struct {
	SampleRate int
	Samples    [][]float32 // [ch][n]
}

// NumSamples returns the per-channel sample count.
func (a *AudioBuffer) NumSamples() int {
	if len(a.Samples) == 0 {
		return 0
	}
	return len(a.Samples[0])
}

// Resample converts the buffer to targetRate in place using linear
// interpolation, updating both waveform and rate.
func (a *AudioBuffer) Resample(targetRate int) {
	if targetRate == a.SampleRate || a.NumSamples() == 0 {
		a.SampleRate = targetRate
		return
	}
	ratio := float64(a.SampleRate) / float64(targetRate)
	outLen := int(float64(a.NumSamples()) / ratio)
	for ch, in := range a.Samples {
		out := make([]float32, outLen)
		for i := range out {
			pos := float64(i) * ratio
			lo := int(pos)
			hi := lo + 1
			if hi >= len(in) {
				out[i] = in[len(in)-1]
				continue
			}
			frac := float32(pos - float64(lo))
			out[i] = in[lo]*(1-frac) + in[hi]*frac
		}
		a.Samples[ch] = out
	}
	a.SampleRate = targetRate
}

// ResampleAugmentor resamples a segment to a rate drawn uniformly at
// random from a configured candidate list.
type ResampleAugmentor struct {
	rates []int
	rng   *rand.Rand
}

// NewResampleAugmentor builds the augmentor over the candidate rates.
func NewResampleAugmentor(rng *rand.Rand, rates []int) (*ResampleAugmentor, error) {
	if len(rates) == 0 {
		return nil, ErrNoRates
	}
	return &ResampleAugmentor{rates: append([]int(nil), rates...), rng: rng}, nil
}

// Transform resamples the segment in place to a randomly chosen
// candidate rate.
func (r *ResampleAugmentor) Transform(a *AudioBuffer) {
	a.Resample(r.rates[r.rng.Intn(len(r.rates))])
}
