package unet_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sugarme/unet/unet"
)

func TestDefaultConfig(t *testing.T) {
	cfg := unet.DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 4, cfg.Depth())
	assert.Equal(t, int64(1024), cfg.BridgeFilters())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*unet.Config)
	}{
		{"no filters", func(c *unet.Config) { c.Filters = nil }},
		{"zero filter", func(c *unet.Config) { c.Filters = []int64{16, 0} }},
		{"zero maps", func(c *unet.Config) { c.Maps = 0 }},
		{"zero channels", func(c *unet.Config) { c.InChannels = 0 }},
		{"zero convs", func(c *unet.Config) { c.NumConvs = 0 }},
		{"bad attention", func(c *unet.Config) { c.Attention = "cbam" }},
		{"bad upsampling", func(c *unet.Config) { c.Upsampling = "pixelshuffle" }},
		{"too deep", func(c *unet.Config) {
			c.Filters = make([]int64, 64)
			for i := range c.Filters {
				c.Filters[i] = 1
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := unet.DefaultConfig()
			tt.edit(&cfg)
			assert.ErrorIs(t, cfg.Validate(), unet.ErrInvalidConfig)
		})
	}
}

func TestCheckInput(t *testing.T) {
	cfg := unet.DefaultConfig()

	assert.NoError(t, cfg.CheckInput([]int64{4, 3, 256, 128}))
	assert.ErrorIs(t, cfg.CheckInput([]int64{3, 256, 256}), unet.ErrInputShape)
	assert.ErrorIs(t, cfg.CheckInput([]int64{1, 1, 256, 256}), unet.ErrInputShape)
	assert.ErrorIs(t, cfg.CheckInput([]int64{1, 3, 250, 256}), unet.ErrInputShape)
	assert.ErrorIs(t, cfg.CheckInput([]int64{1, 3, 8, 8}), unet.ErrInputShape)
}

func TestParseConfig(t *testing.T) {
	cfg, err := unet.ParseConfig([]byte(`
in_channels: 1
filters: [16, 32, 64]
maps: 2
attention: SCSE
`))
	require.NoError(t, err)

	assert.Equal(t, int64(1), cfg.InChannels)
	assert.Equal(t, []int64{16, 32, 64}, cfg.Filters)
	assert.Equal(t, int64(2), cfg.Maps)
	assert.Equal(t, unet.AttentionSCSE, cfg.Attention)
	// defaults kept
	assert.Equal(t, 2, cfg.NumConvs)
	assert.Equal(t, unet.UpsampleTranspose, cfg.Upsampling)
	assert.False(t, cfg.BatchNorm)
}

func TestParseConfigErrors(t *testing.T) {
	_, err := unet.ParseConfig([]byte("filters: [a, b]"))
	assert.ErrorIs(t, err, unet.ErrInvalidConfig)

	_, err = unet.ParseConfig([]byte("filters: []"))
	assert.ErrorIs(t, err, unet.ErrInvalidConfig)

	// misspelled keys must not silently fall back to the defaults.
	_, err = unet.ParseConfig([]byte("filter: [8, 16]\nmap: 3\n"))
	assert.ErrorIs(t, err, unet.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "filter")
}

func TestParseConfigEmpty(t *testing.T) {
	cfg, err := unet.ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, unet.DefaultConfig(), cfg)
}

func TestCheckInputMaxDepth(t *testing.T) {
	cfg := unet.DefaultConfig()
	cfg.Filters = make([]int64, unet.MaxDepth)
	for i := range cfg.Filters {
		cfg.Filters[i] = 1
	}
	require.NoError(t, cfg.Validate())

	side := int64(1) << unet.MaxDepth
	assert.NoError(t, cfg.CheckInput([]int64{1, 3, side, side}))
	assert.ErrorIs(t, cfg.CheckInput([]int64{1, 3, side / 2, side}), unet.ErrInputShape)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte("filters: [8]\nbatch_norm: true\n"), 0o644))

	cfg, err := unet.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []int64{8}, cfg.Filters)
	assert.True(t, cfg.BatchNorm)

	_, err = unet.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
