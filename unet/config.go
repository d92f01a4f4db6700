package unet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Attention kinds for the decoder blocks.
const (
	AttentionNone = "none"
	AttentionSCSE = "scse"
)

// Upsampling modes for the decoder blocks.
const (
	UpsampleTranspose = "transpose"
	UpsampleBilinear  = "bilinear"
)

// MaxDepth is the largest number of encoder stages a Config may have.
// A depth-d model needs inputs of at least 2^d pixels per side.
const MaxDepth = 16

var (
	// ErrInvalidConfig is returned when a model configuration cannot be built.
	ErrInvalidConfig = errors.New("invalid unet config")
	// ErrInputShape is returned when an input tensor does not fit the model.
	ErrInputShape = errors.New("invalid input shape")
)

// Config describes a UNet model.
type Config struct {
	// InChannels is the number of channels of the input image.
	InChannels int64 `yaml:"in_channels"`
	// Filters holds the number of filters of each encoder stage, shallowest first.
	// The decoder mirrors it and the bridge uses twice the last entry.
	Filters []int64 `yaml:"filters"`
	// Maps is the number of output maps (classes).
	Maps int64 `yaml:"maps"`
	// NumConvs is the number of 3x3 convolutions per block.
	NumConvs int `yaml:"num_convs"`

	BatchNorm  bool   `yaml:"batch_norm"`
	Attention  string `yaml:"attention"`
	Upsampling string `yaml:"upsampling"`
}

// DefaultConfig returns the classic 4-stage UNet configuration:
// RGB input, filters 64-128-256-512, one output map.
func DefaultConfig() Config {
	return Config{
		InChannels: 3,
		Filters:    []int64{64, 128, 256, 512},
		Maps:       1,
		NumConvs:   2,
		BatchNorm:  false,
		Attention:  AttentionNone,
		Upsampling: UpsampleTranspose,
	}
}

// Depth returns the number of encoder (and decoder) stages.
func (c Config) Depth() int {
	return len(c.Filters)
}

// BridgeFilters returns the number of filters of the bottleneck convolutions.
func (c Config) BridgeFilters() int64 {
	return c.Filters[len(c.Filters)-1] * 2
}

func (c *Config) normalize() {
	c.Attention = strings.ToLower(strings.TrimSpace(c.Attention))
	if c.Attention == "" {
		c.Attention = AttentionNone
	}
	c.Upsampling = strings.ToLower(strings.TrimSpace(c.Upsampling))
	if c.Upsampling == "" {
		c.Upsampling = UpsampleTranspose
	}
}

// Validate checks whether the configuration describes a buildable model.
func (c Config) Validate() error {
	if c.InChannels < 1 {
		return fmt.Errorf("%w: in_channels must be positive, got %d", ErrInvalidConfig, c.InChannels)
	}
	if len(c.Filters) == 0 {
		return fmt.Errorf("%w: filters must not be empty", ErrInvalidConfig)
	}
	if len(c.Filters) > MaxDepth {
		return fmt.Errorf("%w: at most %d filters (stages) are supported, got %d", ErrInvalidConfig, MaxDepth, len(c.Filters))
	}
	for i, f := range c.Filters {
		if f < 1 {
			return fmt.Errorf("%w: filters[%d] must be positive, got %d", ErrInvalidConfig, i, f)
		}
	}
	if c.Maps < 1 {
		return fmt.Errorf("%w: maps must be positive, got %d", ErrInvalidConfig, c.Maps)
	}
	if c.NumConvs < 1 {
		return fmt.Errorf("%w: num_convs must be positive, got %d", ErrInvalidConfig, c.NumConvs)
	}
	switch c.Attention {
	case AttentionNone, AttentionSCSE:
	default:
		return fmt.Errorf("%w: unknown attention %q", ErrInvalidConfig, c.Attention)
	}
	switch c.Upsampling {
	case UpsampleTranspose, UpsampleBilinear:
	default:
		return fmt.Errorf("%w: unknown upsampling %q", ErrInvalidConfig, c.Upsampling)
	}

	return nil
}

// CheckInput verifies that a NCHW input shape can flow through the model:
// the channel count must match and H, W must be divisible by 2^depth so
// every skip connection lines up with its upsampled counterpart.
func (c Config) CheckInput(shape []int64) error {
	if len(shape) != 4 {
		return fmt.Errorf("%w: expected 4D tensor [N C H W], got %v", ErrInputShape, shape)
	}
	if shape[1] != c.InChannels {
		return fmt.Errorf("%w: expected %d channels, got %d", ErrInputShape, c.InChannels, shape[1])
	}
	factor := int64(1) << uint(c.Depth())
	h, w := shape[2], shape[3]
	if h < factor || w < factor || h%factor != 0 || w%factor != 0 {
		return fmt.Errorf("%w: height and width must be positive multiples of %d, got %dx%d", ErrInputShape, factor, h, w)
	}

	return nil
}

// ParseConfig decodes a YAML model configuration. Absent fields keep their
// DefaultConfig values; unknown fields are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// an empty document leaves the defaults.
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadConfig reads a YAML model configuration from file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	return ParseConfig(data)
}
