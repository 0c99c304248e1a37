package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, Unset, cfg.Object.Width)
	assert.Equal(t, Unset, cfg.Image.Height)
	assert.Equal(t, -10, cfg.Scanning.MinScale)
	assert.Equal(t, 10, cfg.Scanning.MaxScale)
	assert.Equal(t, 1.2, cfg.Scanning.ScaleStep)
	assert.Equal(t, 25, cfg.Scanning.MinSize)
	assert.True(t, cfg.Scanning.UseShift)
	assert.Equal(t, 13, cfg.Ensemble.NumTrees)
	assert.Equal(t, 10, cfg.Ensemble.NumFeatures)

	require.NoError(t, cfg.ValidateParameters())
	assert.True(t, errors.Is(cfg.Validate(), ErrDimensionsUnset))
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Object = Object{Width: 24, Height: 24}
		cfg.Image = Image{Width: 101, Height: 101, Stride: 101}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "object unset", mutate: func(c *Config) { c.Object.Height = Unset }, want: ErrDimensionsUnset},
		{name: "image unset", mutate: func(c *Config) { c.Image.Width = 0 }, want: ErrDimensionsUnset},
		{name: "stride unset", mutate: func(c *Config) { c.Image.Stride = Unset }, want: ErrDimensionsUnset},
		{name: "stride zero", mutate: func(c *Config) { c.Image.Stride = 0 }, want: ErrDimensionsUnset},
		{name: "stride padded", mutate: func(c *Config) { c.Image.Stride = 128 }},
		{name: "stride too small", mutate: func(c *Config) { c.Image.Stride = 50 }, want: ErrInvalidConfig},
		{name: "scale step", mutate: func(c *Config) { c.Scanning.ScaleStep = 1 }, want: ErrInvalidConfig},
		{name: "shift", mutate: func(c *Config) { c.Scanning.Shift = 0 }, want: ErrInvalidConfig},
		{name: "shift disabled", mutate: func(c *Config) { c.Scanning.Shift = 0; c.Scanning.UseShift = false }},
		{name: "backend", mutate: func(c *Config) { c.Backend = "cuda" }, want: ErrInvalidConfig},
		{name: "features", mutate: func(c *Config) { c.Ensemble.NumFeatures = 31 }, want: ErrInvalidConfig},
		{name: "cutoff", mutate: func(c *Config) { c.Clustering.Cutoff = 0 }, want: ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestStride(t *testing.T) {
	cfg := Default()
	cfg.Object = Object{Width: 24, Height: 24}
	cfg.Image.Width, cfg.Image.Height = 64, 64
	assert.Equal(t, Unset, cfg.Stride(), "width is not substituted")
	assert.True(t, errors.Is(cfg.ValidateDimensions(), ErrDimensionsUnset))

	cfg.Image.Stride = 80
	assert.Equal(t, 80, cfg.Stride())
	assert.NoError(t, cfg.ValidateDimensions())
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
object:
  width: 40
  height: 30
image:
  width: 320
  height: 240
  stride: 320
scanning:
  min_scale: -2
  max_scale: 2
backend: opencv
ensemble:
  seed: 42
`))
	require.NoError(t, err)

	assert.Equal(t, Object{Width: 40, Height: 30}, cfg.Object)
	assert.Equal(t, 320, cfg.Stride())
	assert.Equal(t, -2, cfg.Scanning.MinScale)
	assert.Equal(t, 1.2, cfg.Scanning.ScaleStep, "unset keys keep defaults")
	assert.Equal(t, "opencv", cfg.Backend)
	assert.Equal(t, uint64(42), cfg.Ensemble.Seed)
	assert.Equal(t, 13, cfg.Ensemble.NumTrees)
	require.NoError(t, cfg.Validate())

	p := cfg.ScanParams()
	assert.Equal(t, 40, p.ObjectWidth)
	assert.Equal(t, 240, p.ImageHeight)
	assert.Equal(t, 2, p.MaxScale)

	_, err = Parse([]byte("object: ["))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cascade.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 3\nvariance:\n  min_variance: 12.5\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 12.5, cfg.Variance.MinVariance)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
