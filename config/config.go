// Package config - Detection cascade configuration.
package config

import (
	"os"

	"github.com/nvr-ai/go-tld/scanning"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Unset marks a dimension that must be provided before init.
const Unset = -1

var (
	// ErrDimensionsUnset is returned when object or image dimensions are unset.
	ErrDimensionsUnset = errors.New("object or image dimensions unset")
	// ErrInvalidConfig is returned for any other invalid parameter.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Object is the size of the tracked object in pixels.
type Object struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Image is the frame geometry.
type Image struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	// Stride is the row stride in pixels; 0 means Width.
	Stride int `yaml:"stride"`
}

// Scanning configures window generation.
type Scanning struct {
	MinScale  int     `yaml:"min_scale"`
	MaxScale  int     `yaml:"max_scale"`
	ScaleStep float64 `yaml:"scale_step"`
	MinSize   int     `yaml:"min_size"`
	Shift     float64 `yaml:"shift"`
	UseShift  bool    `yaml:"use_shift"`
}

// Variance configures the variance gate.
type Variance struct {
	MinVariance float64 `yaml:"min_variance"`
}

// Ensemble configures the fern ensemble gate.
type Ensemble struct {
	NumTrees        int     `yaml:"num_trees"`
	NumFeatures     int     `yaml:"num_features"`
	Threshold       float32 `yaml:"threshold"`
	Seed            uint64  `yaml:"seed"`
	SmoothingRadius int     `yaml:"smoothing_radius"`
}

// Appearance configures the appearance gate.
type Appearance struct {
	Threshold float32 `yaml:"threshold"`
	PatchSize int     `yaml:"patch_size"`
}

// Clustering configures the clusterer.
type Clustering struct {
	Cutoff float64 `yaml:"cutoff"`
}

// Config is the complete cascade configuration.
type Config struct {
	Object   Object   `yaml:"object"`
	Image    Image    `yaml:"image"`
	Scanning Scanning `yaml:"scanning"`

	// Backend selects the accelerator: "cpu" or "opencv".
	Backend string `yaml:"backend"`
	// Workers bounds per-stage parallelism; 0 uses every CPU.
	Workers int `yaml:"workers"`

	Variance   Variance   `yaml:"variance"`
	Ensemble   Ensemble   `yaml:"ensemble"`
	Appearance Appearance `yaml:"appearance"`
	Clustering Clustering `yaml:"clustering"`
}

// maxFeatures bounds the fern code width; posterior tables hold 2^n entries
// per tree.
const maxFeatures = 20

// Default returns the default configuration with all dimensions unset.
func Default() Config {
	return Config{
		Object: Object{Width: Unset, Height: Unset},
		Image:  Image{Width: Unset, Height: Unset, Stride: Unset},
		Scanning: Scanning{
			MinScale:  -10,
			MaxScale:  10,
			ScaleStep: 1.2,
			MinSize:   25,
			Shift:     0.1,
			UseShift:  true,
		},
		Backend: "cpu",
		Ensemble: Ensemble{
			NumTrees:        13,
			NumFeatures:     10,
			Threshold:       0.5,
			SmoothingRadius: 1,
		},
		Appearance: Appearance{Threshold: 0.65, PatchSize: 15},
		Clustering: Clustering{Cutoff: 0.5},
	}
}

// Stride returns the configured row stride. It is never derived from the
// width; an unset stride fails ValidateDimensions.
func (c Config) Stride() int { return c.Image.Stride }

// ValidateDimensions reports whether the object and image dimensions, stride
// included, are set.
func (c Config) ValidateDimensions() error {
	switch {
	case c.Object.Width <= 0 || c.Object.Height <= 0:
		return errors.Wrapf(ErrDimensionsUnset, "object %dx%d", c.Object.Width, c.Object.Height)
	case c.Image.Width <= 0 || c.Image.Height <= 0:
		return errors.Wrapf(ErrDimensionsUnset, "image %dx%d", c.Image.Width, c.Image.Height)
	case c.Image.Stride <= 0:
		return errors.Wrapf(ErrDimensionsUnset, "image stride %d", c.Image.Stride)
	case c.Stride() < c.Image.Width:
		return errors.Wrapf(ErrInvalidConfig, "stride %d smaller than width %d", c.Stride(), c.Image.Width)
	}
	return nil
}

// ValidateParameters checks every setting except the dimensions.
func (c Config) ValidateParameters() error {
	s := c.Scanning
	switch {
	case s.ScaleStep <= 1:
		return errors.Wrapf(ErrInvalidConfig, "scale_step %v must exceed 1", s.ScaleStep)
	case s.MinSize < 1:
		return errors.Wrapf(ErrInvalidConfig, "min_size %d must be positive", s.MinSize)
	case s.UseShift && s.Shift <= 0:
		return errors.Wrapf(ErrInvalidConfig, "shift %v must be positive", s.Shift)
	case c.Backend != "cpu" && c.Backend != "opencv":
		return errors.Wrapf(ErrInvalidConfig, "backend %q", c.Backend)
	case c.Workers < 0:
		return errors.Wrapf(ErrInvalidConfig, "workers %d", c.Workers)
	case c.Ensemble.NumTrees < 1:
		return errors.Wrapf(ErrInvalidConfig, "num_trees %d must be positive", c.Ensemble.NumTrees)
	case c.Ensemble.NumFeatures < 1 || c.Ensemble.NumFeatures > maxFeatures:
		return errors.Wrapf(ErrInvalidConfig, "num_features %d outside [1, %d]", c.Ensemble.NumFeatures, maxFeatures)
	case c.Ensemble.SmoothingRadius < 0:
		return errors.Wrapf(ErrInvalidConfig, "smoothing_radius %d", c.Ensemble.SmoothingRadius)
	case c.Appearance.PatchSize < 1:
		return errors.Wrapf(ErrInvalidConfig, "patch_size %d must be positive", c.Appearance.PatchSize)
	case c.Clustering.Cutoff <= 0 || c.Clustering.Cutoff > 1:
		return errors.Wrapf(ErrInvalidConfig, "cutoff %v outside (0, 1]", c.Clustering.Cutoff)
	}
	return nil
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	if err := c.ValidateParameters(); err != nil {
		return err
	}
	return c.ValidateDimensions()
}

// ScanParams converts the configuration into window generation parameters.
func (c Config) ScanParams() scanning.Params {
	return scanning.Params{
		ObjectWidth:  c.Object.Width,
		ObjectHeight: c.Object.Height,
		ImageWidth:   c.Image.Width,
		ImageHeight:  c.Image.Height,
		MinScale:     c.Scanning.MinScale,
		MaxScale:     c.Scanning.MaxScale,
		ScaleStep:    c.Scanning.ScaleStep,
		MinSize:      c.Scanning.MinSize,
		Shift:        c.Scanning.Shift,
		UseShift:     c.Scanning.UseShift,
	}
}

// Parse overlays YAML data onto the defaults. The result is not validated.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	return cfg, nil
}

// Load reads and parses a YAML file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(data)
}
