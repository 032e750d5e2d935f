// Package export produces the deployable inference artifact: a
// self-contained bundle of configuration plus fp16-encoded weights
// that loads without any training code and exposes only the offline
// and chunk inference entry points.
package export

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"github.com/x448/float16"

	"github.com/openfluke/chorale/conformer"
	"github.com/openfluke/chorale/nn"
)

// FormatVersion identifies the bundle layout.
const FormatVersion = "1"

// TensorDef is one serialized weight tensor. Data is base64 of
// little-endian IEEE 754 half-precision values.
type TensorDef struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
	Data  string `json:"data"`
}

// Artifact is the on-disk bundle. Mean and IStd carry the frozen
// normalization statistics: like the weights they are model state, so
// loading never goes back to the training-side stats file.
type Artifact struct {
	Version     string            `json:"version"`
	Fingerprint string            `json:"fingerprint"`
	Config      *conformer.Config `json:"config"`
	Mean        []float32         `json:"mean"`
	IStd        []float32         `json:"istd"`
	Tensors     []TensorDef       `json:"tensors"`
}

// Marshal serializes a model into bundle bytes.
func Marshal(m *conformer.Model) ([]byte, error) {
	art := &Artifact{
		Version:     FormatVersion,
		Fingerprint: m.Fingerprint(),
		Config:      m.Config(),
		Mean:        m.CMVN().Mean,
		IStd:        m.CMVN().IStd,
	}
	m.VisitParams(func(name string, t *nn.Tensor[float32]) {
		art.Tensors = append(art.Tensors, TensorDef{
			Name:  name,
			Shape: t.Shape,
			Data:  base64.StdEncoding.EncodeToString(encodeF16(t.Data)),
		})
	})
	return json.Marshal(art)
}

// Save writes the bundle for a model to path.
func Save(m *conformer.Model, path string) error {
	raw, err := Marshal(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	return nil
}

// Inference is the loaded artifact. It exposes exactly the inference
// surface; the training entry points stay out of reach.
type Inference struct {
	model *conformer.Model
}

// Load reads a bundle from path and reconstructs the inference handle.
func Load(path string) (*Inference, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("export: read %s: %w", path, err)
	}
	return Unmarshal(raw)
}

// Unmarshal reconstructs an inference handle from bundle bytes.
func Unmarshal(raw []byte) (*Inference, error) {
	var art Artifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, fmt.Errorf("export: parse bundle: %w", err)
	}
	if art.Version != FormatVersion {
		return nil, fmt.Errorf("export: unsupported bundle version %q", art.Version)
	}

	cmvn, err := conformer.NewGlobalCMVN(art.Mean, art.IStd)
	if err != nil {
		return nil, fmt.Errorf("export: bundle stats: %w", err)
	}
	model, err := conformer.NewModelWithStats(art.Config, cmvn)
	if err != nil {
		return nil, fmt.Errorf("export: rebuild model: %w", err)
	}
	weights := make(map[string]TensorDef, len(art.Tensors))
	for _, td := range art.Tensors {
		weights[td.Name] = td
	}

	var restoreErr error
	model.VisitParams(func(name string, t *nn.Tensor[float32]) {
		if restoreErr != nil {
			return
		}
		td, ok := weights[name]
		if !ok {
			restoreErr = fmt.Errorf("export: bundle is missing tensor %q", name)
			return
		}
		raw, err := base64.StdEncoding.DecodeString(td.Data)
		if err != nil {
			restoreErr = fmt.Errorf("export: tensor %q: %w", name, err)
			return
		}
		if len(raw) != 2*len(t.Data) {
			restoreErr = fmt.Errorf("export: tensor %q holds %d values, model expects %d",
				name, len(raw)/2, len(t.Data))
			return
		}
		decodeF16(raw, t.Data)
	})
	if restoreErr != nil {
		return nil, restoreErr
	}
	return &Inference{model: model}, nil
}

// Fingerprint reports the loaded model's tensor geometry tag.
func (inf *Inference) Fingerprint() string { return inf.model.Fingerprint() }

// InferOffline runs full-sequence CTC posterior inference.
func (inf *Inference) InferOffline(speech *nn.Tensor[float32], speechLens []int) (*nn.Tensor[float32], []int, error) {
	return inf.model.InferOffline(speech, speechLens)
}

// InferChunk runs one streaming chunk; the caller threads the caches.
func (inf *Inference) InferChunk(chunk *nn.Tensor[float32], offset, requiredCacheSize int, att *conformer.AttCache, cnn *conformer.CNNCache) (*nn.Tensor[float32], *conformer.AttCache, *conformer.CNNCache, error) {
	return inf.model.InferChunk(chunk, offset, requiredCacheSize, att, cnn)
}

// NewSession opens a streaming session on the loaded model.
func (inf *Inference) NewSession(requiredCacheSize int) *conformer.StreamingSession {
	return conformer.NewStreamingSession(inf.model, requiredCacheSize)
}

func encodeF16(vals []float32) []byte {
	out := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(out[2*i:], float16.Fromfloat32(v).Bits())
	}
	return out
}

func decodeF16(raw []byte, dst []float32) {
	for i := range dst {
		dst[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[2*i:])).Float32()
	}
}
