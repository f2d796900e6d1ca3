// Package config loads and validates the sizing of the culling pipeline.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/Carmen-Shannon/oxy-cull/common"
	"github.com/Carmen-Shannon/oxy-cull/engine/camera"
	"github.com/Carmen-Shannon/oxy-cull/engine/cull"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidConfig     = errors.New("config: invalid configuration")
	ErrUnsupportedFormat = errors.New("config: unsupported file format")
)

// Format is a configuration file encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// Config sizes every per-frame array of the pipeline. All storage is allocated
// once from these values.
type Config struct {
	Bins []cull.Bin `toml:"bins" yaml:"bins"`

	// MaxObjects is the record capacity of every (view, bin) pair.
	MaxObjects int `toml:"max_objects" yaml:"max_objects"`
	NumViews   int `toml:"num_views" yaml:"num_views"`

	IndexedDrawsPerView    int `toml:"indexed_draws_per_view" yaml:"indexed_draws_per_view"`
	NonIndexedDrawsPerView int `toml:"non_indexed_draws_per_view" yaml:"non_indexed_draws_per_view"`
	DrawListCapacity       int `toml:"draw_list_capacity" yaml:"draw_list_capacity"`

	// SceneCapacity is the number of object slots. Defaults to MaxObjects.
	SceneCapacity int `toml:"scene_capacity" yaml:"scene_capacity"`

	Workers   int `toml:"workers" yaml:"workers"`
	ChunkSize int `toml:"chunk_size" yaml:"chunk_size"`

	FrustumCulling bool `toml:"frustum_culling" yaml:"frustum_culling"`
}

// Default returns a single-view configuration with the default bins.
//
// Returns:
//   - Config: the default configuration
func Default() Config {
	return Config{
		Bins:                   cull.DefaultBins(),
		MaxObjects:             4096,
		NumViews:               1,
		IndexedDrawsPerView:    4096,
		NonIndexedDrawsPerView: 256,
		DrawListCapacity:       8192,
		SceneCapacity:          4096,
		Workers:                max(runtime.NumCPU()-1, 1),
		ChunkSize:              256,
	}
}

// WithDefaults returns a copy of c with every zero field that cannot be zero
// replaced by its default. Draw counts and the draw-list capacity are left alone
// since zero disables them.
//
// Returns:
//   - Config: the completed configuration
func (c Config) WithDefaults() Config {
	d := Default()
	if len(c.Bins) == 0 {
		c.Bins = d.Bins
	}
	c.MaxObjects = common.Coalesce(c.MaxObjects, d.MaxObjects)
	c.NumViews = common.Coalesce(c.NumViews, d.NumViews)
	c.SceneCapacity = common.Coalesce(c.SceneCapacity, c.MaxObjects)
	c.Workers = common.Coalesce(c.Workers, d.Workers)
	c.ChunkSize = common.Coalesce(c.ChunkSize, d.ChunkSize)
	return c
}

// Validate checks that the configuration describes allocatable storage.
//
// Returns:
//   - error: wraps ErrInvalidConfig, cull.ErrNoBins or cull.ErrDuplicateBin
func (c Config) Validate() error {
	if _, err := cull.NewBinTable(c.Bins...); err != nil {
		return err
	}
	switch {
	case c.MaxObjects <= 0:
		return fmt.Errorf("max_objects must be positive, got %d: %w", c.MaxObjects, ErrInvalidConfig)
	case c.NumViews <= 0 || c.NumViews > camera.MaxActiveViews:
		return fmt.Errorf("num_views must be in [1, %d], got %d: %w", camera.MaxActiveViews, c.NumViews, ErrInvalidConfig)
	case c.IndexedDrawsPerView < 0 || c.NonIndexedDrawsPerView < 0:
		return fmt.Errorf("draws per view must not be negative: %w", ErrInvalidConfig)
	case c.DrawListCapacity < 0:
		return fmt.Errorf("draw_list_capacity must not be negative, got %d: %w", c.DrawListCapacity, ErrInvalidConfig)
	case c.SceneCapacity <= 0:
		return fmt.Errorf("scene_capacity must be positive, got %d: %w", c.SceneCapacity, ErrInvalidConfig)
	case c.Workers <= 0 || c.ChunkSize <= 0:
		return fmt.Errorf("workers and chunk_size must be positive: %w", ErrInvalidConfig)
	}
	return nil
}

// FormatFromPath picks the encoding from a file extension.
//
// Returns:
//   - Format: the encoding
//   - error: ErrUnsupportedFormat for unknown extensions
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}

// Parse decodes a configuration over Default and validates it. Keys left out keep
// their default, keys set to zero stay zero. Unknown keys are rejected.
//
// Parameters:
//   - data: the encoded configuration
//   - format: the encoding
//
// Returns:
//   - Config: the completed configuration
//   - error: a decode or validation error
func Parse(data []byte, format Format) (Config, error) {
	c := Default()
	// Filled after decoding: bins are replaced wholesale and scene capacity follows max_objects.
	c.Bins = nil
	c.SceneCapacity = 0
	switch format {
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&c); err != nil {
			return Config{}, fmt.Errorf("decode toml: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// An empty document decodes to io.EOF and leaves every field at its default.
		if err := dec.Decode(&c); err != nil && len(bytes.TrimSpace(data)) > 0 {
			return Config{}, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("%q: %w", format, ErrUnsupportedFormat)
	}

	c = c.WithDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load reads a .toml, .yaml or .yml file.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - Config: the completed configuration
//   - error: a read, decode or validation error
func Load(path string) (Config, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(data, format)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	common.Logger().Debug("config: loaded", "path", path, "views", c.NumViews, "bins", len(c.Bins), "max_objects", c.MaxObjects)
	return c, nil
}

// Save writes the configuration in the encoding chosen by the file extension.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - error: an encode or write error
func (c Config) Save(path string) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	var data []byte
	switch format {
	case FormatTOML:
		data, err = toml.Marshal(c)
	case FormatYAML:
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", format, err)
	}
	return os.WriteFile(path, data, 0o644)
}
