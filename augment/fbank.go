package augment

import (
	"math"

	"github.com/openfluke/chorale/nn"
)

// FbankConfig sizes the log-mel filterbank frontend. Zero values take
// the usual speech defaults for the buffer's sample rate.
type FbankConfig struct {
	NumMels   int     // filterbank size, default 80
	WinMillis float64 // analysis window, default 25ms
	HopMillis float64 // frame shift, default 10ms
}

func (c FbankConfig) withDefaults() FbankConfig {
	if c.NumMels == 0 {
		c.NumMels = 80
	}
	if c.WinMillis == 0 {
		c.WinMillis = 25
	}
	if c.HopMillis == 0 {
		c.HopMillis = 10
	}
	return c
}

// Fbank converts the first channel of a buffer into log-mel filterbank
// features ([frames, numMels]): Hann-windowed DFT, power spectrum, mel
// triangle bank, natural log. Returns nil when the buffer is shorter
// than one analysis window.
func Fbank(a *AudioBuffer, cfg FbankConfig) *nn.Tensor[float32] {
	cfg = cfg.withDefaults()
	winSize := int(float64(a.SampleRate) * cfg.WinMillis / 1000)
	hop := int(float64(a.SampleRate) * cfg.HopMillis / 1000)
	if a.NumSamples() < winSize || winSize == 0 || hop == 0 {
		return nil
	}

	win := hannWindow(winSize)
	bank := melBank(cfg.NumMels, winSize, a.SampleRate)
	mono := a.Samples[0]
	numFrames := (a.NumSamples()-winSize)/hop + 1

	out := nn.NewTensor[float32](numFrames, cfg.NumMels)
	power := make([]float64, winSize/2+1)
	frame := make([]float64, winSize)
	for f := 0; f < numFrames; f++ {
		off := f * hop
		for i := 0; i < winSize; i++ {
			frame[i] = float64(mono[off+i]) * win[i]
		}
		powerSpectrum(frame, power)
		row := out.Row(f)
		for m, filter := range bank {
			var e float64
			for _, tap := range filter {
				e += power[tap.bin] * tap.weight
			}
			// Floor keeps silence finite.
			if e < 1e-10 {
				e = 1e-10
			}
			row[m] = float32(math.Log(e))
		}
	}
	return out
}

func hannWindow(n int) []float64 {
	win := make([]float64, n)
	for i := range win {
		win[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return win
}

// powerSpectrum fills power with |DFT(frame)|^2 for the non-negative
// frequency bins. Naive O(N^2) transform; the window sizes here are a
// few hundred samples.
func powerSpectrum(frame, power []float64) {
	n := len(frame)
	for k := range power {
		var re, im float64
		for i, v := range frame {
			angle := -2 * math.Pi * float64(k*i) / float64(n)
			re += v * math.Cos(angle)
			im += v * math.Sin(angle)
		}
		power[k] = re*re + im*im
	}
}

type melTap struct {
	bin    int
	weight float64
}

func hzToMel(hz float64) float64 { return 2595 * math.Log10(1+hz/700) }
func melToHz(m float64) float64  { return 700 * (math.Pow(10, m/2595) - 1) }

// melBank builds numMels triangular filters over the DFT bins of a
// winSize transform at the given rate.
func melBank(numMels, winSize, sampleRate int) [][]melTap {
	bins := winSize/2 + 1
	maxMel := hzToMel(float64(sampleRate) / 2)

	// Filter edge frequencies, evenly spaced on the mel scale.
	edges := make([]float64, numMels+2)
	for i := range edges {
		hz := melToHz(maxMel * float64(i) / float64(numMels+1))
		edges[i] = hz * float64(winSize) / float64(sampleRate)
	}

	bank := make([][]melTap, numMels)
	for m := 0; m < numMels; m++ {
		lo, mid, hi := edges[m], edges[m+1], edges[m+2]
		for b := int(lo); b <= int(hi) && b < bins; b++ {
			fb := float64(b)
			var w float64
			switch {
			case fb >= lo && fb <= mid && mid > lo:
				w = (fb - lo) / (mid - lo)
			case fb > mid && fb <= hi && hi > mid:
				w = (hi - fb) / (hi - mid)
			}
			if w > 0 {
				bank[m] = append(bank[m], melTap{bin: b, weight: w})
			}
		}
	}
	return bank
}
