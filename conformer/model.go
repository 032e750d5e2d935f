package conformer

import (
	"math/rand"

	"github.com/openfluke/chorale/nn"
)

// LossBundle is the result of one training forward pass. LossAtt and
// LossCTC are nil when the corresponding branch was skipped.
type LossBundle struct {
	Loss    float32
	LossAtt *float32
	LossCTC *float32
	AccAtt  float64
}

// Model wires the encoder, bidirectional decoder, CTC head and loss
// blending into one forward contract. Training uses Forward; offline
// and streaming inference use InferOffline and InferChunk.
type Model struct {
	cfg *Config

	encoder      *ConformerEncoder
	decoder      *BiTransformerDecoder
	ctc          *CTC
	criterionAtt *LabelSmoothingLoss

	sos, eos      int
	vocabSize     int
	ignoreID      int
	ctcWeight     float32
	reverseWeight float32
}

// NewModel constructs a model from a configuration record. The
// normalization statistics are loaded once here and frozen. All
// parameter validation happens now; Forward assumes a valid model.
func NewModel(cfg *Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var cmvn *GlobalCMVN
	var err error
	if cfg.MeanIStdPath != "" {
		cmvn, err = LoadMeanIStd(cfg.MeanIStdPath, cfg.InputDim)
		if err != nil {
			return nil, err
		}
	} else {
		cmvn = IdentityCMVN(cfg.InputDim)
	}
	return newModel(cfg, cmvn)
}

// NewModelWithStats constructs a model around already-loaded
// normalization statistics, ignoring MeanIStdPath. Deployment bundles
// carry their own stats and rebuild through here, so loading never
// touches the training-side stats file.
func NewModelWithStats(cfg *Config, cmvn *GlobalCMVN) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cmvn == nil || len(cmvn.Mean) != cfg.InputDim {
		width := 0
		if cmvn != nil {
			width = len(cmvn.Mean)
		}
		return nil, configErrf("mean_istd", "stats width %d does not match input_dim %d", width, cfg.InputDim)
	}
	return newModel(cfg, cmvn)
}

func newModel(cfg *Config, cmvn *GlobalCMVN) (*Model, error) {
	rng := rand.New(rand.NewSource(cfg.Seed))
	encoder, err := NewConformerEncoder(cfg, cmvn, rng)
	if err != nil {
		return nil, err
	}

	m := &Model{
		cfg:           cfg,
		encoder:       encoder,
		ctc:           NewCTC(cfg.VocabSize, cfg.Encoder.OutputSize, rng),
		sos:           cfg.VocabSize - 1, // eos shares the sos id
		eos:           cfg.VocabSize - 1,
		vocabSize:     cfg.VocabSize,
		ignoreID:      cfg.IgnoreID,
		ctcWeight:     cfg.CTCWeight,
		reverseWeight: cfg.ReverseWeight,
	}
	if cfg.CTCWeight != 1.0 {
		m.decoder = NewBiTransformerDecoder(cfg.VocabSize, cfg.Encoder.OutputSize, &cfg.Decoder, rng)
		m.criterionAtt = NewLabelSmoothingLoss(cfg.VocabSize, cfg.IgnoreID, cfg.LSMWeight, cfg.LengthNormalizedLoss)
	}
	return m, nil
}

// NewOnlineModel builds the streaming preset: dynamic chunk training
// and causal convolutions. Structure is identical to the offline
// preset; only configuration flags differ.
func NewOnlineModel(cfg *Config) (*Model, error) {
	c := *cfg
	c.UseDynamicChunk = true
	c.UseDynamicLeftChunk = false
	c.Causal = true
	return NewModel(&c)
}

// NewOfflineModel builds the batch preset: no chunk restriction,
// non-causal convolutions.
func NewOfflineModel(cfg *Config) (*Model, error) {
	c := *cfg
	c.UseDynamicChunk = false
	c.UseDynamicLeftChunk = false
	c.Causal = false
	return NewModel(&c)
}

// Config returns the construction record.
func (m *Model) Config() *Config { return m.cfg }

// Fingerprint identifies this model's tensor geometry for cache
// tagging.
func (m *Model) Fingerprint() string { return m.encoder.fingerprint }

// CMVN returns the frozen normalization statistics.
func (m *Model) CMVN() *GlobalCMVN { return m.encoder.cmvn }

// Forward runs frontend + encoder + decoder + loss for one batch.
// speech is [batch, tMax, inputDim] with per-example valid lengths;
// text is the ignore-padded label batch with its length vector.
func (m *Model) Forward(speech *nn.Tensor[float32], speechLens []int, text [][]int, textLens []int) (*LossBundle, error) {
	batch := speech.Shape[0]
	if len(speechLens) != batch || len(text) != batch || len(textLens) != batch {
		return nil, shapeErrf("forward", "batch sizes disagree: speech %d, speech_lengths %d, text %d, text_lengths %d",
			batch, len(speechLens), len(text), len(textLens))
	}
	for b := 0; b < batch; b++ {
		if textLens[b] <= 0 || textLens[b] > len(text[b]) {
			return nil, lengthErrf("forward", "example %d text length %d outside (0, %d]", b, textLens[b], len(text[b]))
		}
	}

	encOut, encMask, err := m.encoder.Forward(speech, speechLens, 0, -1)
	if err != nil {
		return nil, err
	}
	encLens, err := nn.MaskLengths(encMask)
	if err != nil {
		return nil, err
	}

	bundle := &LossBundle{}

	if m.ctcWeight != 1.0 {
		lossAtt, accAtt, err := m.calcAttLoss(encOut, encLens, text, textLens)
		if err != nil {
			return nil, err
		}
		bundle.LossAtt = &lossAtt
		bundle.AccAtt = accAtt
	}

	if m.ctcWeight != 0.0 {
		lossCTC, err := m.ctc.Loss(encOut, encLens, text, textLens)
		if err != nil {
			return nil, err
		}
		bundle.LossCTC = &lossCTC
	}

	switch {
	case bundle.LossCTC == nil:
		bundle.Loss = *bundle.LossAtt
	case bundle.LossAtt == nil:
		bundle.Loss = *bundle.LossCTC
	default:
		bundle.Loss = m.ctcWeight**bundle.LossCTC + (1-m.ctcWeight)**bundle.LossAtt
	}
	return bundle, nil
}

// calcAttLoss computes the bidirectional attention loss: forward
// decoding always, reverse decoding blended in by reverseWeight and
// skipped entirely when that weight is zero.
func (m *Model) calcAttLoss(encOut *nn.Tensor[float32], encLens []int, text [][]int, textLens []int) (float32, float64, error) {
	ysIn, ysOut := AddSOSEOS(text, m.sos, m.eos, m.ignoreID)
	ysInLens := make([]int, len(textLens))
	for i, l := range textLens {
		ysInLens[i] = l + 1
	}

	rYs := ReversePadList(text, textLens, m.ignoreID)
	rYsIn, rYsOut := AddSOSEOS(rYs, m.sos, m.eos, m.ignoreID)

	decOut, rDecOut, err := m.decoder.Forward(encOut, encLens, ysIn, ysInLens, rYsIn, m.reverseWeight)
	if err != nil {
		return 0, 0, err
	}

	lossAtt, err := m.criterionAtt.Forward(decOut, ysOut)
	if err != nil {
		return 0, 0, err
	}
	var rLossAtt float32
	if m.reverseWeight > 0 {
		rLossAtt, err = m.criterionAtt.Forward(rDecOut, rYsOut)
		if err != nil {
			return 0, 0, err
		}
	}
	loss := lossAtt*(1-m.reverseWeight) + rLossAtt*m.reverseWeight
	acc := Accuracy(decOut, ysOut, m.ignoreID)
	return loss, acc, nil
}

// InferOffline encodes full utterances and returns per-frame CTC
// posteriors ([batch, tMax', vocab]) together with the valid output
// length of each example. Chunk restrictions are disabled regardless of
// the training configuration.
func (m *Model) InferOffline(speech *nn.Tensor[float32], speechLens []int) (*nn.Tensor[float32], []int, error) {
	encOut, encMask, err := m.encoder.Forward(speech, speechLens, -1, -1)
	if err != nil {
		return nil, nil, err
	}
	encLens, err := nn.MaskLengths(encMask)
	if err != nil {
		return nil, nil, err
	}
	return m.ctc.Softmax(encOut), encLens, nil
}

// InferChunk encodes one streaming chunk ([t, inputDim]) and returns
// its CTC posteriors ([t', vocab]) plus the updated cache pair. The
// caller owns the caches and must thread them through successive calls
// in arrival order; nil caches start a session.
func (m *Model) InferChunk(chunk *nn.Tensor[float32], offset, requiredCacheSize int, att *AttCache, cnn *CNNCache) (*nn.Tensor[float32], *AttCache, *CNNCache, error) {
	encOut, newAtt, newCnn, err := m.encoder.ForwardChunk(chunk, offset, requiredCacheSize, att, cnn)
	if err != nil {
		return nil, nil, nil, err
	}
	t, d := encOut.Shape[0], encOut.Shape[1]
	probs := m.ctc.Softmax(encOut.Reshape(1, t, d))
	return probs.Reshape(t, m.vocabSize), newAtt, newCnn, nil
}
