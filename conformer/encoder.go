package conformer

import (
	"math/rand"

	"github.com/openfluke/chorale/nn"
)

// AttCache carries the per-layer projected key/value history of one
// streaming session. Entries have shape [heads, cachedT, 2*headDim].
// The zero value (or nil) starts a session. A cache belongs to exactly
// one session and must be threaded through calls in arrival order.
type AttCache struct {
	Fingerprint string
	Layers      []*nn.Tensor[float32]
}

// CNNCache carries the per-layer depthwise-convolution left context of
// one streaming session. Entries have shape [kernel-1, dModel].
type CNNCache struct {
	Fingerprint string
	Layers      []*nn.Tensor[float32]
}

// ConformerEncoder turns normalized features into a contextual
// representation. It runs in two modes over the same weights: full
// sequence (Forward) and incremental chunk (ForwardChunk).
type ConformerEncoder struct {
	cfg      EncoderConfig
	inputDim int

	cmvn   *GlobalCMVN
	embed  *Conv2dSubsampling4
	posEnc *nn.PositionalEncoding
	layers []*ConformerEncoderLayer

	useDynamicChunk     bool
	useDynamicLeftChunk bool
	causal              bool
	staticChunkSize     int

	fingerprint string
	rng         *rand.Rand
}

// NewConformerEncoder builds the encoder from a validated Config.
func NewConformerEncoder(c *Config, cmvn *GlobalCMVN, rng *rand.Rand) (*ConformerEncoder, error) {
	embed, err := NewConv2dSubsampling4(c.InputDim, c.Encoder.OutputSize, rng)
	if err != nil {
		return nil, err
	}
	e := &ConformerEncoder{
		cfg:                 c.Encoder,
		inputDim:            c.InputDim,
		cmvn:                cmvn,
		embed:               embed,
		posEnc:              nn.NewPositionalEncoding(c.Encoder.OutputSize),
		useDynamicChunk:     c.UseDynamicChunk,
		useDynamicLeftChunk: c.UseDynamicLeftChunk,
		causal:              c.Causal,
		staticChunkSize:     c.StaticChunkSize,
		fingerprint:         c.Fingerprint(),
		rng:                 rng,
	}
	for i := 0; i < c.Encoder.NumBlocks; i++ {
		e.layers = append(e.layers, NewConformerEncoderLayer(&c.Encoder, c.Causal, rng))
	}
	return e, nil
}

// OutputSize returns the encoder representation width.
func (e *ConformerEncoder) OutputSize() int { return e.cfg.OutputSize }

// Forward encodes a batch ([batch, tMax, inputDim]) with per-example
// valid lengths, returning the padded output ([batch, tMax', d]) and
// its validity mask ([batch, 1, tMax']). decodingChunkSize restricts
// the attention window for chunk-consistent decoding: <0 disables any
// restriction, 0 defers to the configured training behavior (dynamic
// or static chunking), >0 forces that chunk size with
// numDecodingLeftChunks of left context (<0 = unlimited).
func (e *ConformerEncoder) Forward(xs *nn.Tensor[float32], lens []int, decodingChunkSize, numDecodingLeftChunks int) (*nn.Tensor[float32], *nn.Mask, error) {
	batch, tMax, dim := xs.Shape[0], xs.Shape[1], xs.Shape[2]
	if dim != e.inputDim {
		return nil, nil, shapeErrf("encode", "feature width %d != input_dim %d", dim, e.inputDim)
	}
	if len(lens) != batch {
		return nil, nil, shapeErrf("encode", "batch %d but %d lengths", batch, len(lens))
	}
	outLens := make([]int, batch)
	tMaxOut := 0
	for b, l := range lens {
		if l <= 0 || l > tMax {
			return nil, nil, lengthErrf("encode", "example %d length %d outside (0, %d]", b, l, tMax)
		}
		if l < e.embed.MinInput() {
			return nil, nil, lengthErrf("encode", "example %d length %d below frontend minimum %d", b, l, e.embed.MinInput())
		}
		outLens[b] = e.embed.OutLen(l)
		if outLens[b] > tMaxOut {
			tMaxOut = outLens[b]
		}
	}

	chunkSize, leftChunks := e.chunkPolicy(tMaxOut, decodingChunkSize, numDecodingLeftChunks)

	out := nn.NewTensor[float32](batch, tMaxOut, e.cfg.OutputSize)
	for b := 0; b < batch; b++ {
		x := nn.Slice2D(xs.Reshape(batch*tMax, dim), b*tMax, b*tMax+lens[b])
		e.cmvn.Apply(x)
		h := e.embed.Forward(x)
		e.posEnc.Apply(h, 0)

		var mask *nn.Mask
		if chunkSize > 0 && chunkSize < outLens[b] {
			mask = nn.ChunkMask(outLens[b], chunkSize, leftChunks)
		}
		for _, layer := range e.layers {
			h = layer.Forward(h, mask)
		}
		copy(out.Data[b*tMaxOut*e.cfg.OutputSize:], h.Data)
	}

	mask, err := nn.MakePadMask(outLens, tMaxOut)
	if err != nil {
		return nil, nil, lengthErrf("encode", "%v", err)
	}
	return out, mask, nil
}

// chunkPolicy resolves the effective attention chunking for one batch.
// Zero chunk size means no restriction.
func (e *ConformerEncoder) chunkPolicy(tMaxOut, decodingChunkSize, numDecodingLeftChunks int) (int, int) {
	switch {
	case e.useDynamicChunk:
		if decodingChunkSize < 0 {
			return 0, -1
		}
		if decodingChunkSize > 0 {
			return decodingChunkSize, numDecodingLeftChunks
		}
		// Training: sample a chunk size to simulate streaming windows;
		// large draws fall back to full context.
		chunk := e.rng.Intn(tMaxOut) + 1
		if chunk > tMaxOut/2 {
			return 0, -1
		}
		chunk = chunk%25 + 1
		left := -1
		if e.useDynamicLeftChunk {
			maxLeft := (tMaxOut - 1) / chunk
			left = e.rng.Intn(maxLeft + 1)
		}
		return chunk, left
	case e.staticChunkSize > 0:
		return e.staticChunkSize, numDecodingLeftChunks
	default:
		return 0, -1
	}
}

// ForwardChunk encodes one bounded chunk of a streaming session.
// xs is [t, inputDim] raw frames including the frontend's context
// overlap; offset is the number of subsampled frames already emitted
// by this session; requiredCacheSize bounds the retained attention
// history (<0 unlimited, 0 none). The caller owns both caches and must
// pass the pair returned by the previous call.
func (e *ConformerEncoder) ForwardChunk(xs *nn.Tensor[float32], offset, requiredCacheSize int, att *AttCache, cnn *CNNCache) (*nn.Tensor[float32], *AttCache, *CNNCache, error) {
	t, dim := xs.Shape[0], xs.Shape[1]
	if dim != e.inputDim {
		return nil, nil, nil, shapeErrf("encode chunk", "feature width %d != input_dim %d", dim, e.inputDim)
	}
	if e.embed.OutLen(t) == 0 {
		return nil, nil, nil, lengthErrf("encode chunk", "chunk of %d frames is below the frontend minimum %d", t, e.embed.MinInput())
	}
	if att == nil {
		att = &AttCache{}
	}
	if cnn == nil {
		cnn = &CNNCache{}
	}
	if err := e.checkCache(att.Fingerprint, len(att.Layers)); err != nil {
		return nil, nil, nil, err
	}
	if err := e.checkCache(cnn.Fingerprint, len(cnn.Layers)); err != nil {
		return nil, nil, nil, err
	}

	x := xs.Clone()
	e.cmvn.Apply(x)
	h := e.embed.Forward(x)
	e.posEnc.Apply(h, offset)

	newAtt := &AttCache{Fingerprint: e.fingerprint, Layers: make([]*nn.Tensor[float32], len(e.layers))}
	newCnn := &CNNCache{Fingerprint: e.fingerprint, Layers: make([]*nn.Tensor[float32], len(e.layers))}
	for i, layer := range e.layers {
		var attIn, cnnIn *nn.Tensor[float32]
		if len(att.Layers) > 0 {
			attIn = att.Layers[i]
		}
		if len(cnn.Layers) > 0 {
			cnnIn = cnn.Layers[i]
		}
		var layerAtt, layerCnn *nn.Tensor[float32]
		h, layerAtt, layerCnn = layer.ForwardChunk(h, attIn, cnnIn)
		newAtt.Layers[i] = trimAttCache(layerAtt, requiredCacheSize)
		newCnn.Layers[i] = layerCnn
	}
	return h, newAtt, newCnn, nil
}

// checkCache rejects caches from another model configuration.
func (e *ConformerEncoder) checkCache(fingerprint string, layers int) error {
	if layers == 0 {
		return nil
	}
	if fingerprint != e.fingerprint {
		return shapeErrf("encode chunk", "cache fingerprint %q does not match model %q", fingerprint, e.fingerprint)
	}
	if layers != len(e.layers) {
		return shapeErrf("encode chunk", "cache has %d layers, model has %d", layers, len(e.layers))
	}
	return nil
}

// trimAttCache applies the sliding history window: keep the newest
// required rows per head, everything with required < 0, nothing with
// required == 0.
func trimAttCache(cache *nn.Tensor[float32], required int) *nn.Tensor[float32] {
	if required < 0 {
		return cache
	}
	heads, t, width := cache.Shape[0], cache.Shape[1], cache.Shape[2]
	keep := required
	if keep > t {
		keep = t
	}
	out := nn.NewTensor[float32](heads, keep, width)
	for h := 0; h < heads; h++ {
		src := cache.Data[(h*t+(t-keep))*width : (h*t+t)*width]
		copy(out.Data[h*keep*width:(h+1)*keep*width], src)
	}
	return out
}

// ForwardChunkByChunk drives a whole utterance ([t, inputDim]) through
// ForwardChunk the way a streaming client would: fixed decoding chunks
// with the frontend's context overlap, caches threaded in order. The
// concatenated output matches Forward under the same static chunk mask.
func (e *ConformerEncoder) ForwardChunkByChunk(xs *nn.Tensor[float32], decodingChunkSize, numDecodingLeftChunks int) (*nn.Tensor[float32], error) {
	if decodingChunkSize <= 0 {
		return nil, configErrf("decoding_chunk_size", "must be positive, got %d", decodingChunkSize)
	}
	t := xs.Shape[0]
	context := SubsamplingRight + 1
	stride := SubsamplingRate * decodingChunkSize
	window := (decodingChunkSize-1)*SubsamplingRate + context
	if t < window {
		return nil, lengthErrf("encode chunk", "utterance of %d frames is shorter than one window of %d", t, window)
	}
	requiredCacheSize := -1
	if numDecodingLeftChunks >= 0 {
		requiredCacheSize = decodingChunkSize * numDecodingLeftChunks
	}

	var att *AttCache
	var cnn *CNNCache
	var outputs []*nn.Tensor[float32]
	offset := 0
	for cur := 0; cur < t-context+1; cur += stride {
		end := cur + window
		if end > t {
			end = t
		}
		chunk := nn.Slice2D(xs, cur, end)
		out, newAtt, newCnn, err := e.ForwardChunk(chunk, offset, requiredCacheSize, att, cnn)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
		offset += out.Shape[0]
		att, cnn = newAtt, newCnn
	}

	total := nn.NewTensor[float32](0, e.cfg.OutputSize)
	for _, o := range outputs {
		total = nn.Concat2D(total, o)
	}
	return total, nil
}
