// Package config handles blendshare configuration loading and management.
package config

import (
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/Faultbox/blendshare/internal/blendshape"
	"github.com/Faultbox/blendshare/pkg/dataset"
	"github.com/Faultbox/blendshare/pkg/vecmath"
)

// Config holds all blendshare settings.
type Config struct {
	Extract ExtractConfig `yaml:"extract"`
	Apply   ApplyConfig   `yaml:"apply"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// ExtractConfig holds extraction settings.
type ExtractConfig struct {
	BaseMesh   string    `yaml:"base_mesh"`  // "source" or "origin"
	Weld       bool      `yaml:"weld"`       // Predict importer vertex welding
	Transform  Transform `yaml:"transform"`  // Relative transform components to compensate
	Tolerances []float64 `yaml:"tolerances"` // Merge tolerance ladder, ascending
	ByName     bool      `yaml:"by_name"`    // Compare channels by name instead of index
	Workers    int       `yaml:"workers"`    // 0 uses GOMAXPROCS
	ChunkSize  int       `yaml:"chunk_size"`
	TempDir    string    `yaml:"temp_dir"` // Empty uses the OS temp dir
	DeformerID string    `yaml:"deformer_id"`
}

// Transform selects relative transform components.
type Transform struct {
	Translate bool `yaml:"translate"`
	Rotate    bool `yaml:"rotate"`
	Scale     bool `yaml:"scale"`
}

// ApplyConfig holds apply settings.
type ApplyConfig struct {
	Native bool `yaml:"native"` // Rebuild native channels instead of generic frames
}

// StoreConfig holds dataset library settings.
type StoreConfig struct {
	Path        string `yaml:"path"`
	BusyTimeout int    `yaml:"busy_timeout"` // Milliseconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Extract: ExtractConfig{
			BaseMesh:   "source",
			Weld:       true,
			Tolerances: append([]float64(nil), blendshape.DefaultTolerances...),
			ByName:     true,
			ChunkSize:  blendshape.DefaultChunkSize,
			DeformerID: dataset.DefaultDeformerID,
		},
		Store: StoreConfig{
			Path:        filepath.Join(ConfigDir(), "datasets.db"),
			BusyTimeout: 10_000,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Options converts the extract section into extractor options.
func (c *ExtractConfig) Options() (blendshape.Options, error) {
	opts := blendshape.DefaultOptions()

	base, err := blendshape.ParseBaseMesh(c.BaseMesh)
	if err != nil {
		return opts, err
	}
	if len(c.Tolerances) > 0 {
		if err := blendshape.ValidateTolerances(c.Tolerances); err != nil {
			return opts, errors.Wrap(err, "extract.tolerances")
		}
		opts.Tolerances = c.Tolerances
	}

	opts.BaseMesh = base
	opts.Weld = c.Weld
	opts.Mask = vecmath.TransformMask{
		Translate: c.Transform.Translate,
		Rotate:    c.Transform.Rotate,
		Scale:     c.Transform.Scale,
	}
	opts.Parallelism = blendshape.Parallelism{Workers: c.Workers, ChunkSize: c.ChunkSize}
	if c.TempDir != "" {
		opts.TempDir = c.TempDir
	}
	if c.DeformerID != "" {
		opts.DeformerID = c.DeformerID
	}
	return opts, nil
}
