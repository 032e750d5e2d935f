package conformer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.yaml")
	yaml := `
input_dim: 40
vocab_size: 5000
ctc_weight: 0.3
reverse_weight: 0.3
encoder_conf:
  output_size: 256
  attention_heads: 4
  linear_units: 2048
  num_blocks: 12
  cnn_module_kernel: 15
decoder_conf:
  num_blocks: 6
  r_num_blocks: 3
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, 40, cfg.InputDim)
	require.Equal(t, 5000, cfg.VocabSize)
	require.Equal(t, float32(0.3), cfg.CTCWeight)
	// Untouched fields keep their defaults.
	require.Equal(t, IgnoreID, cfg.IgnoreID)
	require.Equal(t, 4, cfg.Decoder.AttentionHeads)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"ctc_weight_above_one", func(c *Config) { c.CTCWeight = 1.5 }},
		{"reverse_weight_negative", func(c *Config) { c.ReverseWeight = -0.1 }},
		{"lsm_weight_one", func(c *Config) { c.LSMWeight = 1.0 }},
		{"vocab_too_small", func(c *Config) { c.VocabSize = 1 }},
		{"heads_not_dividing_width", func(c *Config) { c.Encoder.AttentionHeads = 3 }},
		{"even_kernel_without_causal", func(c *Config) { c.Encoder.CNNModuleKernel = 4 }},
		{"reverse_without_right_decoder", func(c *Config) {
			c.ReverseWeight = 0.3
			c.Decoder.RNumBlocks = 0
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestFingerprintTracksGeometry(t *testing.T) {
	a := testConfig()
	b := testConfig()
	require.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Encoder.NumBlocks++
	require.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	// Seed changes weights, not geometry.
	c := testConfig()
	c.Seed = 99
	require.Equal(t, a.Fingerprint(), c.Fingerprint())
}
