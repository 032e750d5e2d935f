package conformer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EncoderConfig holds the conformer encoder hyperparameters.
type EncoderConfig struct {
	OutputSize      int     `yaml:"output_size"`      // model width d
	AttentionHeads  int     `yaml:"attention_heads"`  // must divide output_size
	LinearUnits     int     `yaml:"linear_units"`     // feed-forward inner width
	NumBlocks       int     `yaml:"num_blocks"`       // conformer blocks
	CNNModuleKernel int     `yaml:"cnn_module_kernel"` // depthwise conv kernel
	DropoutRate     float32 `yaml:"dropout_rate"`     // recorded, applied as identity
}

// DecoderConfig holds the bidirectional transformer decoder
// hyperparameters. RNumBlocks == 0 disables the reverse decoder.
type DecoderConfig struct {
	AttentionHeads int     `yaml:"attention_heads"`
	LinearUnits    int     `yaml:"linear_units"`
	NumBlocks      int     `yaml:"num_blocks"`
	RNumBlocks     int     `yaml:"r_num_blocks"`
	DropoutRate    float32 `yaml:"dropout_rate"`
}

// Config is the construction record for a conformer model.
type Config struct {
	InputDim  int `yaml:"input_dim"`
	VocabSize int `yaml:"vocab_size"`

	CTCWeight     float32 `yaml:"ctc_weight"`
	IgnoreID      int     `yaml:"ignore_id"`
	ReverseWeight float32 `yaml:"reverse_weight"`
	LSMWeight     float32 `yaml:"lsm_weight"`

	// LengthNormalizedLoss divides the attention loss by the number of
	// non-ignored tokens instead of the batch size.
	LengthNormalizedLoss bool `yaml:"length_normalized_loss"`

	UseDynamicChunk     bool `yaml:"use_dynamic_chunk"`
	UseDynamicLeftChunk bool `yaml:"use_dynamic_left_chunk"`
	Causal              bool `yaml:"causal"`
	StaticChunkSize     int  `yaml:"static_chunk_size"`

	// MeanIStdPath locates the frozen normalization statistics. Empty
	// means identity normalization (test configurations).
	MeanIStdPath string `yaml:"mean_istd_path"`

	Encoder EncoderConfig `yaml:"encoder_conf"`
	Decoder DecoderConfig `yaml:"decoder_conf"`

	// Seed fixes parameter initialization for reproducible runs.
	Seed int64 `yaml:"seed"`
}

// DefaultConfig mirrors the stock conformer configuration scaled for an
// 80-dim fbank frontend.
func DefaultConfig() *Config {
	return &Config{
		InputDim:  80,
		VocabSize: 0, // caller supplies
		CTCWeight: 0.5,
		IgnoreID:  IgnoreID,
		Encoder: EncoderConfig{
			OutputSize:      256,
			AttentionHeads:  4,
			LinearUnits:     2048,
			NumBlocks:       12,
			CNNModuleKernel: 15,
			DropoutRate:     0.1,
		},
		Decoder: DecoderConfig{
			AttentionHeads: 4,
			LinearUnits:    2048,
			NumBlocks:      6,
			RNumBlocks:     3,
			DropoutRate:    0.1,
		},
		Seed: 1,
	}
}

// LoadConfig reads a YAML configuration file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, configErrf("file", "read %s: %v", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, configErrf("file", "parse %s: %v", path, err)
	}
	return cfg, nil
}

// Validate checks the construction record. It runs once at model
// construction; every violation is a ConfigError.
func (c *Config) Validate() error {
	if c.InputDim <= 0 {
		return configErrf("input_dim", "must be positive, got %d", c.InputDim)
	}
	if c.VocabSize <= 1 {
		return configErrf("vocab_size", "must exceed 1, got %d", c.VocabSize)
	}
	if c.CTCWeight < 0 || c.CTCWeight > 1 {
		return configErrf("ctc_weight", "must lie in [0,1], got %g", c.CTCWeight)
	}
	if c.ReverseWeight < 0 || c.ReverseWeight > 1 {
		return configErrf("reverse_weight", "must lie in [0,1], got %g", c.ReverseWeight)
	}
	if c.LSMWeight < 0 || c.LSMWeight >= 1 {
		return configErrf("lsm_weight", "must lie in [0,1), got %g", c.LSMWeight)
	}
	if c.Encoder.OutputSize <= 0 || c.Encoder.AttentionHeads <= 0 ||
		c.Encoder.OutputSize%c.Encoder.AttentionHeads != 0 {
		return configErrf("encoder_conf", "output_size %d not divisible by attention_heads %d",
			c.Encoder.OutputSize, c.Encoder.AttentionHeads)
	}
	if c.Encoder.NumBlocks <= 0 {
		return configErrf("encoder_conf", "num_blocks must be positive, got %d", c.Encoder.NumBlocks)
	}
	if c.Encoder.CNNModuleKernel < 2 {
		return configErrf("encoder_conf", "cnn_module_kernel must be at least 2, got %d", c.Encoder.CNNModuleKernel)
	}
	if !c.Causal && c.Encoder.CNNModuleKernel%2 == 0 {
		return configErrf("encoder_conf", "non-causal cnn_module_kernel must be odd, got %d", c.Encoder.CNNModuleKernel)
	}
	if c.ReverseWeight > 0 && c.Decoder.RNumBlocks == 0 {
		return configErrf("decoder_conf", "reverse_weight %g needs r_num_blocks > 0", c.ReverseWeight)
	}
	if c.CTCWeight != 1.0 {
		if c.Decoder.NumBlocks <= 0 || c.Decoder.AttentionHeads <= 0 ||
			c.Encoder.OutputSize%c.Decoder.AttentionHeads != 0 {
			return configErrf("decoder_conf", "invalid decoder sizing for attention branch")
		}
	}
	return nil
}

// Fingerprint identifies the tensor geometry of a configuration.
// Streaming caches are only exchangeable between models whose
// fingerprints match.
func (c *Config) Fingerprint() string {
	return fmt.Sprintf("in%d-v%d-d%d-h%d-b%d-k%d-causal%t",
		c.InputDim, c.VocabSize, c.Encoder.OutputSize, c.Encoder.AttentionHeads,
		c.Encoder.NumBlocks, c.Encoder.CNNModuleKernel, c.Causal)
}
