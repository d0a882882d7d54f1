package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/Faultbox/blendshare/internal/blendshape"
	"github.com/Faultbox/blendshare/internal/config"
	"github.com/Faultbox/blendshare/pkg/dataset"
	"github.com/Faultbox/blendshare/pkg/scene"
	"github.com/Faultbox/blendshare/pkg/scene/gltfscene"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Extract.TempDir = dir
	cfg.Store.Path = filepath.Join(dir, "lib.db")
	return cfg
}

// writeScenes exports an origin triangle and a source carrying a "lift"
// channel on it.
func writeScenes(t *testing.T) (source, origin string) {
	t.Helper()
	dir := t.TempDir()
	rest := []mgl64.Vec4{{0, 0, 0, 1}, {1, 0, 0, 1}, {0, 1, 0, 1}}
	lifted := append([]mgl64.Vec4(nil), rest...)
	lifted[1][2] = 0.5

	org := &scene.Scene{Name: "character"}
	org.AddMesh(scene.Mesh{Name: "Body", Points: rest, Indices: []uint32{0, 1, 2}}, mgl64.Ident4())
	src := org.Clone()
	src.Name = "edited"
	src.Meshes[0].Channels = []scene.Channel{{
		Name:   "lift",
		Shapes: []scene.Shape{{Weight: 100, Points: lifted}},
	}}

	p := gltfscene.New()
	source = filepath.Join(dir, "edited.glb")
	origin = filepath.Join(dir, "character.glb")
	if err := p.Export(context.Background(), src, source); err != nil {
		t.Fatalf("export source: %v", err)
	}
	if err := p.Export(context.Background(), org, origin); err != nil {
		t.Fatalf("export origin: %v", err)
	}
	return source, origin
}

func TestExtractThenApplyGeneric(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	source, origin := writeScenes(t)
	dir := t.TempDir()
	dsPath := filepath.Join(dir, "lift.bsd")
	out := filepath.Join(dir, "out.glb")

	if err := cmdExtract(ctx, cfg, []string{"-o", dsPath, source, origin}); err != nil {
		t.Fatalf("extract: %v", err)
	}
	ds, err := dataset.Load(dsPath)
	if err != nil {
		t.Fatalf("loading dataset: %v", err)
	}
	if rec := ds.Mesh("Body"); rec == nil || rec.Channel("lift") == nil {
		t.Fatalf("expected Body/lift in dataset, got %+v", ds.Meshes)
	}

	if err := cmdApply(ctx, cfg, []string{"-o", out, dsPath, origin}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got, err := gltfscene.New().Import(ctx, out)
	if err != nil {
		t.Fatalf("reading applied scene: %v", err)
	}
	m := got.Mesh("Body")
	if m == nil {
		t.Fatal("expected Body mesh in output")
	}
	ci := m.FindChannel("lift")
	if ci < 0 {
		t.Fatalf("expected lift channel, got %v", m.ChannelNames())
	}
	if p := m.Channels[ci].Shapes[0].Points[1]; p != (mgl64.Vec4{1, 0, 0.5, 1}) {
		t.Errorf("expected lifted point {1 0 0.5 1}, got %v", p)
	}
}

func TestCompleted(t *testing.T) {
	partial := &blendshape.Result{Dataset: &dataset.Dataset{
		Name:   "character-edited",
		Meshes: []dataset.MeshRecord{{Name: "Body"}},
	}}
	empty := &blendshape.Result{Dataset: &dataset.Dataset{Name: "character-edited"}}
	cancelled := errors.Wrap(blendshape.ErrCancelled, "context canceled")
	failed := errors.New("disk full")

	tests := []struct {
		name    string
		res     *blendshape.Result
		err     error
		wantDS  bool
		wantErr error
	}{
		{"success", partial, nil, true, nil},
		{"cancelled keeps completed meshes", partial, cancelled, true, blendshape.ErrCancelled},
		{"cancelled before any mesh", empty, cancelled, false, blendshape.ErrCancelled},
		{"other error", nil, failed, false, failed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := completed(tt.res, tt.err)
			if (ds != nil) != tt.wantDS {
				t.Errorf("expected dataset %v, got %v", tt.wantDS, ds)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestInit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Extract.Workers = 3
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := cmdInit(cfg, []string{path}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := cmdInit(cfg, []string{path}); !errors.Is(err, config.ErrConfigExists) {
		t.Errorf("expected ErrConfigExists, got %v", err)
	}
	if err := cmdInit(cfg, []string{"-force", path}); err != nil {
		t.Errorf("init -force: %v", err)
	}
}
