package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pkg/errors"

	"github.com/Faultbox/blendshare/internal/blendshape"
	"github.com/Faultbox/blendshare/pkg/dataset"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Test extract defaults
	if cfg.Extract.BaseMesh != "source" {
		t.Errorf("expected base mesh 'source', got %s", cfg.Extract.BaseMesh)
	}
	if !cfg.Extract.Weld {
		t.Error("expected weld to be true by default")
	}
	if !cfg.Extract.ByName {
		t.Error("expected by_name to be true by default")
	}
	if cfg.Extract.Transform != (Transform{}) {
		t.Errorf("expected no transform compensation, got %+v", cfg.Extract.Transform)
	}
	if !reflect.DeepEqual(cfg.Extract.Tolerances, blendshape.DefaultTolerances) {
		t.Errorf("expected tolerances %v, got %v", blendshape.DefaultTolerances, cfg.Extract.Tolerances)
	}
	if cfg.Extract.DeformerID != dataset.DefaultDeformerID {
		t.Errorf("expected deformer %s, got %s", dataset.DefaultDeformerID, cfg.Extract.DeformerID)
	}

	// Test store defaults
	if filepath.Base(cfg.Store.Path) != "datasets.db" {
		t.Errorf("expected datasets.db, got %s", cfg.Store.Path)
	}

	// Test logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "" {
		t.Errorf("expected empty log file, got %s", cfg.Logging.LogFile)
	}
}

func TestDefaultDoesNotShareLadder(t *testing.T) {
	cfg := Default()
	cfg.Extract.Tolerances[0] = 42
	if blendshape.DefaultTolerances[0] == 42 {
		t.Fatal("Default aliases the package tolerance ladder")
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
extract:
  base_mesh: origin
  weld: false
  transform:
    rotate: true
  tolerances: [0, 0.01]
  by_name: false
  workers: 3
  temp_dir: /tmp/work

apply:
  native: true

store:
  path: "lib.db"
  busy_timeout: 500

logging:
  level: "debug"
  log_file: "blendshare.log"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Extract.BaseMesh != "origin" {
		t.Errorf("expected base mesh 'origin', got %s", cfg.Extract.BaseMesh)
	}
	if cfg.Extract.Weld {
		t.Error("expected weld to be false")
	}
	if !cfg.Extract.Transform.Rotate || cfg.Extract.Transform.Translate {
		t.Errorf("expected rotate only, got %+v", cfg.Extract.Transform)
	}
	if !reflect.DeepEqual(cfg.Extract.Tolerances, []float64{0, 0.01}) {
		t.Errorf("expected tolerances [0 0.01], got %v", cfg.Extract.Tolerances)
	}
	if cfg.Extract.ByName {
		t.Error("expected by_name to be false")
	}
	if cfg.Extract.Workers != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Extract.Workers)
	}
	// Unset keys keep their defaults.
	if cfg.Extract.ChunkSize != blendshape.DefaultChunkSize {
		t.Errorf("expected default chunk size, got %d", cfg.Extract.ChunkSize)
	}

	if !cfg.Apply.Native {
		t.Error("expected native apply")
	}
	if cfg.Store.Path != "lib.db" || cfg.Store.BusyTimeout != 500 {
		t.Errorf("unexpected store config %+v", cfg.Store)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "blendshare.log" {
		t.Errorf("expected log file 'blendshare.log', got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
extract:
  workers: not a number
  invalid syntax here
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFromFile(cfg, "/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()

	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	os.Chdir(tmpDir)

	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("extract:\n  workers: 2\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if path := findConfigFile(); path == "" {
		t.Error("expected to find config.yaml in current directory")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*Config)
		teardown func()
	}{
		{
			name:  "debug flag",
			setup: func() { *flagDebug = true },
			verify: func(cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
			teardown: func() { *flagDebug = false },
		},
		{
			name:  "store flag",
			setup: func() { *flagStore = "/data/lib.db" },
			verify: func(cfg *Config) {
				if cfg.Store.Path != "/data/lib.db" {
					t.Errorf("expected store /data/lib.db, got %s", cfg.Store.Path)
				}
			},
			teardown: func() { *flagStore = "" },
		},
		{
			name: "extract flags",
			setup: func() {
				*flagWorkers = 8
				*flagBase = "origin"
				*flagNoWeld = true
				*flagByIndex = true
				*flagTransform = "rs"
			},
			verify: func(cfg *Config) {
				e := cfg.Extract
				if e.Workers != 8 || e.BaseMesh != "origin" || e.Weld || e.ByName {
					t.Errorf("unexpected extract config %+v", e)
				}
				if e.Transform != (Transform{Rotate: true, Scale: true}) {
					t.Errorf("expected rotate and scale, got %+v", e.Transform)
				}
			},
			teardown: func() {
				*flagWorkers = 0
				*flagBase = ""
				*flagNoWeld = false
				*flagByIndex = false
				*flagTransform = ""
			},
		},
		{
			name:  "native flag",
			setup: func() { *flagNative = true },
			verify: func(cfg *Config) {
				if !cfg.Apply.Native {
					t.Error("expected native apply with native flag")
				}
			},
			teardown: func() { *flagNative = false },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer tt.teardown()

			cfg := Default()
			applyFlags(cfg)

			tt.verify(cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
extract:
  workers: 2
  base_mesh: origin
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	*flagConfig = configPath
	*flagWorkers = 6
	defer func() {
		*flagConfig = ""
		*flagWorkers = 0
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Workers should be from flag (6), not file (2)
	if cfg.Extract.Workers != 6 {
		t.Errorf("expected 6 workers from flag, got %d", cfg.Extract.Workers)
	}
	// Base mesh should be from file since no flag override
	if cfg.Extract.BaseMesh != "origin" {
		t.Errorf("expected base mesh 'origin' from file, got %s", cfg.Extract.BaseMesh)
	}
}

func TestExtractOptions(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ExtractConfig)
		wantErr error
		check   func(*testing.T, blendshape.Options)
	}{
		{
			name: "defaults",
			check: func(t *testing.T, o blendshape.Options) {
				if o.BaseMesh != blendshape.BaseSource || !o.Weld || !o.Mask.None() {
					t.Errorf("unexpected options %+v", o)
				}
			},
		},
		{
			name: "overrides",
			mutate: func(c *ExtractConfig) {
				c.BaseMesh = "origin"
				c.Transform.Translate = true
				c.Workers = 4
				c.TempDir = "/work"
				c.Tolerances = nil
			},
			check: func(t *testing.T, o blendshape.Options) {
				if o.BaseMesh != blendshape.BaseOrigin || !o.Mask.Translate || o.Parallelism.Workers != 4 || o.TempDir != "/work" {
					t.Errorf("unexpected options %+v", o)
				}
				if !reflect.DeepEqual(o.Tolerances, blendshape.DefaultTolerances) {
					t.Errorf("expected default ladder, got %v", o.Tolerances)
				}
			},
		},
		{
			name:    "bad ladder",
			mutate:  func(c *ExtractConfig) { c.Tolerances = []float64{0.1, 0.01} },
			wantErr: blendshape.ErrInvalidTolerances,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			if tt.mutate != nil {
				tt.mutate(&cfg.Extract)
			}
			opts, err := cfg.Extract.Options()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, opts)
		})
	}

	cfg := Default()
	cfg.Extract.BaseMesh = "middle"
	if _, err := cfg.Extract.Options(); err == nil {
		t.Error("expected error for unknown base mesh")
	}
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	want := Default()
	want.Extract.Workers = 5

	if err := want.SaveTo(path, false); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	got := &Config{}
	if err := loadFromFile(got, path); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %+v, got %+v", want, got)
	}

	if err := Default().SaveTo(path, false); !errors.Is(err, ErrConfigExists) {
		t.Errorf("expected ErrConfigExists, got %v", err)
	}
	if err := Default().SaveTo(path, true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := loadFromFile(got, path); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Extract.Workers != 0 {
		t.Errorf("expected overwritten workers 0, got %d", got.Extract.Workers)
	}
}

func TestDefaultPath(t *testing.T) {
	if filepath.Dir(DefaultPath()) != ConfigDir() {
		t.Errorf("expected %s inside %s", DefaultPath(), ConfigDir())
	}
}
