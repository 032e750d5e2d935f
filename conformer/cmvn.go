package conformer

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"

	"github.com/openfluke/chorale/nn"
)

// GlobalCMVN applies frozen global mean/inverse-std normalization to
// every feature frame before any learned computation. The statistics
// are loaded once at model construction and never mutated.
type GlobalCMVN struct {
	Mean []float32
	IStd []float32
}

// NewGlobalCMVN wraps precomputed statistics. Both vectors must have
// the feature width.
func NewGlobalCMVN(mean, istd []float32) (*GlobalCMVN, error) {
	if len(mean) == 0 || len(mean) != len(istd) {
		return nil, configErrf("mean_istd", "mean width %d and istd width %d disagree", len(mean), len(istd))
	}
	return &GlobalCMVN{Mean: mean, IStd: istd}, nil
}

// IdentityCMVN returns pass-through statistics of the given width.
func IdentityCMVN(dim int) *GlobalCMVN {
	mean := make([]float32, dim)
	istd := make([]float32, dim)
	for i := range istd {
		istd[i] = 1
	}
	return &GlobalCMVN{Mean: mean, IStd: istd}
}

// Apply normalizes x ([rows, dim]) in place: (x - mean) * istd.
func (c *GlobalCMVN) Apply(x *nn.Tensor[float32]) {
	dim := len(c.Mean)
	rows := x.Shape[0]
	for r := 0; r < rows; r++ {
		row := x.Row(r)
		for d := 0; d < dim; d++ {
			row[d] = (row[d] - c.Mean[d]) * c.IStd[d]
		}
	}
}

type meanIStdJSON struct {
	Mean []float32 `json:"mean"`
	IStd []float32 `json:"istd"`
}

// LoadMeanIStd reads normalization statistics from disk. A .json file
// carries {"mean": [...], "istd": [...]}; a .pt file carries the same
// two entries as a pickled PyTorch dict of 1-D float tensors. The
// vectors must both have width inputDim.
func LoadMeanIStd(path string, inputDim int) (*GlobalCMVN, error) {
	var mean, istd []float32
	var err error
	switch filepath.Ext(path) {
	case ".pt", ".pth":
		mean, istd, err = loadMeanIStdTorch(path)
	default:
		mean, istd, err = loadMeanIStdJSON(path)
	}
	if err != nil {
		return nil, err
	}
	if len(mean) != inputDim || len(istd) != inputDim {
		return nil, configErrf("mean_istd", "stats width %d does not match input_dim %d", len(mean), inputDim)
	}
	return NewGlobalCMVN(mean, istd)
}

func loadMeanIStdJSON(path string) ([]float32, []float32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, configErrf("mean_istd", "read %s: %v", path, err)
	}
	var stats meanIStdJSON
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, nil, configErrf("mean_istd", "parse %s: %v", path, err)
	}
	if len(stats.Mean) == 0 || len(stats.IStd) == 0 {
		return nil, nil, configErrf("mean_istd", "%s is missing mean or istd", path)
	}
	return stats.Mean, stats.IStd, nil
}

func loadMeanIStdTorch(path string) ([]float32, []float32, error) {
	obj, err := pytorch.Load(path)
	if err != nil {
		return nil, nil, configErrf("mean_istd", "load %s: %v", path, err)
	}
	dict, ok := obj.(*types.Dict)
	if !ok {
		return nil, nil, configErrf("mean_istd", "%s: expected a dict of tensors", path)
	}
	mean, err := torchVector(dict, "mean", path)
	if err != nil {
		return nil, nil, err
	}
	istd, err := torchVector(dict, "istd", path)
	if err != nil {
		return nil, nil, err
	}
	return mean, istd, nil
}

func torchVector(dict *types.Dict, key, path string) ([]float32, error) {
	v, ok := dict.Get(key)
	if !ok {
		return nil, configErrf("mean_istd", "%s has no %q entry", path, key)
	}
	tensor, ok := v.(*pytorch.Tensor)
	if !ok {
		return nil, configErrf("mean_istd", "%s: %q is not a tensor", path, key)
	}
	storage, ok := tensor.Source.(*pytorch.FloatStorage)
	if !ok {
		return nil, configErrf("mean_istd", "%s: %q is not float storage", path, key)
	}
	n := 1
	for _, s := range tensor.Size {
		n *= s
	}
	out := make([]float32, n)
	copy(out, storage.Data[tensor.StorageOffset:tensor.StorageOffset+n])
	return out, nil
}
