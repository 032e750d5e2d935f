package conformer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfluke/chorale/nn"
)

// testConfig returns a deliberately small geometry so full forwards
// stay cheap.
func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.InputDim = 8
	cfg.VocabSize = 12
	cfg.Encoder = EncoderConfig{
		OutputSize:      16,
		AttentionHeads:  2,
		LinearUnits:     32,
		NumBlocks:       2,
		CNNModuleKernel: 3,
		DropoutRate:     0.1,
	}
	cfg.Decoder = DecoderConfig{
		AttentionHeads: 2,
		LinearUnits:    32,
		NumBlocks:      1,
		RNumBlocks:     1,
		DropoutRate:    0.1,
	}
	cfg.Seed = 42
	return cfg
}

func randomFeats(rng *rand.Rand, rows, dim int) *nn.Tensor[float32] {
	x := nn.NewTensor[float32](rows, dim)
	for i := range x.Data {
		x.Data[i] = float32(rng.NormFloat64())
	}
	return x
}

func TestEncoderOutputLengthsFollowSubsampling(t *testing.T) {
	model, err := NewOfflineModel(testConfig())
	require.NoError(t, err)
	enc := model.encoder

	rng := rand.New(rand.NewSource(1))
	batch, tMax := 2, 23
	xs := nn.NewTensor[float32](batch, tMax, 8)
	for i := range xs.Data {
		xs.Data[i] = float32(rng.NormFloat64())
	}
	lens := []int{23, 15}

	out, mask, err := enc.Forward(xs, lens, 0, -1)
	require.NoError(t, err)

	outLens, err := nn.MaskLengths(mask)
	require.NoError(t, err)
	require.Equal(t, []int{enc.embed.OutLen(23), enc.embed.OutLen(15)}, outLens)
	require.Equal(t, []int{batch, outLens[0], 16}, out.Shape)
}

func TestEncoderRejectsShortUtterance(t *testing.T) {
	model, err := NewOfflineModel(testConfig())
	require.NoError(t, err)

	xs := nn.NewTensor[float32](1, 5, 8)
	_, _, err = model.encoder.Forward(xs, []int{5}, 0, -1)
	var lenErr *InvalidLengthError
	require.ErrorAs(t, err, &lenErr)
}

// Streaming must reproduce the full forward pass under the matching
// static chunk mask: same weights, causal convolutions, absolute
// positions carried by the offset.
func TestStreamingMatchesFullForward(t *testing.T) {
	model, err := NewOnlineModel(testConfig())
	require.NoError(t, err)
	enc := model.encoder

	rng := rand.New(rand.NewSource(4))
	frames, chunk := 35, 2
	xs := randomFeats(rng, frames, 8)

	for _, tc := range []struct {
		name       string
		leftChunks int
	}{
		{"unlimited_history", -1},
		{"one_left_chunk", 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			streamed, err := enc.ForwardChunkByChunk(xs, chunk, tc.leftChunks)
			require.NoError(t, err)

			full3d := xs.Clone().Reshape(1, frames, 8)
			full, mask, err := enc.Forward(full3d, []int{frames}, chunk, tc.leftChunks)
			require.NoError(t, err)

			fullLens, err := nn.MaskLengths(mask)
			require.NoError(t, err)
			require.Equal(t, fullLens[0], streamed.Shape[0])

			ref := nn.Slice2D(full.Reshape(fullLens[0], 16), 0, streamed.Shape[0])
			require.Less(t, nn.MaxAbsDiff(streamed.Data, ref.Data), 1e-4)
		})
	}
}

func TestStreamingCacheGrowsAndTrims(t *testing.T) {
	model, err := NewOnlineModel(testConfig())
	require.NoError(t, err)
	enc := model.encoder

	rng := rand.New(rand.NewSource(8))
	chunk := randomFeats(rng, 11, 8) // one decoding chunk of 2 outputs

	// Unlimited history keeps everything seen so far.
	_, att, _, err := enc.ForwardChunk(chunk, 0, -1, nil, nil)
	require.NoError(t, err)
	_, att, _, err = enc.ForwardChunk(chunk, 2, -1, att, nil)
	require.NoError(t, err)
	require.Equal(t, 4, att.Layers[0].Shape[1])

	// A bound of 2 rows keeps only the newest chunk.
	_, att, _, err = enc.ForwardChunk(chunk, 4, 2, att, nil)
	require.NoError(t, err)
	require.Equal(t, 2, att.Layers[0].Shape[1])

	// A bound of 0 drops the history entirely.
	_, att, _, err = enc.ForwardChunk(chunk, 6, 0, att, nil)
	require.NoError(t, err)
	require.Equal(t, 0, att.Layers[0].Shape[1])
}

func TestForwardChunkRejectsForeignCache(t *testing.T) {
	model, err := NewOnlineModel(testConfig())
	require.NoError(t, err)

	otherCfg := testConfig()
	otherCfg.Encoder.OutputSize = 24
	otherCfg.Encoder.AttentionHeads = 3
	otherCfg.Decoder.AttentionHeads = 3
	other, err := NewOnlineModel(otherCfg)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(6))
	chunk := randomFeats(rng, 11, 8)

	_, att, cnn, err := model.encoder.ForwardChunk(chunk, 0, -1, nil, nil)
	require.NoError(t, err)

	_, _, _, err = other.encoder.ForwardChunk(chunk, 2, -1, att, cnn)
	var shapeErr *ShapeMismatchError
	require.ErrorAs(t, err, &shapeErr)
}

func TestForwardChunkByChunkRejectsBadChunkSize(t *testing.T) {
	model, err := NewOnlineModel(testConfig())
	require.NoError(t, err)

	xs := nn.NewTensor[float32](35, 8)
	_, err = model.encoder.ForwardChunkByChunk(xs, 0, -1)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
