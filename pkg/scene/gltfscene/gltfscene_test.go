package gltfscene

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"

	"github.com/Faultbox/blendshare/pkg/scene"
)

// testScene only uses values exactly representable in float32.
func testScene() *scene.Scene {
	rest := []mgl64.Vec4{
		{0, 0, 0, 1},
		{1, 0, 0, 1},
		{0, 1, 0, 1},
		{1, 0, 0, 1},
	}
	up := func(z float64) []mgl64.Vec4 {
		out := append([]mgl64.Vec4(nil), rest...)
		out[1][2] += z
		out[3][2] += z
		return out
	}

	s := &scene.Scene{Name: "character"}
	s.Nodes = append(s.Nodes, scene.Node{Name: "Root", Parent: -1, Mesh: -1, Transform: mgl64.Translate3D(0, 2, 0)})
	s.Meshes = append(s.Meshes, scene.Mesh{
		Name:     "Body",
		Points:   rest,
		Normals:  []mgl64.Vec3{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}, {0, 0, 1}},
		Tangents: []mgl64.Vec3{{1, 0, 0}, {1, 0, 0}, {1, 0, 0}, {1, 0, 0}},
		Indices:  []uint32{0, 1, 2, 2, 3, 0},
		Channels: []scene.Channel{
			{Name: "pull", Deformer: "morph", Shapes: []scene.Shape{
				{Weight: 50, Points: up(0.5)},
				{Weight: 100, Points: up(1), NormalDeltas: []mgl64.Vec3{{0, 0.25, 0}, {}, {}, {}}},
			}},
			{Name: "push", Deformer: "morph", Shapes: []scene.Shape{{Weight: 100, Points: up(-0.25)}}},
		},
	})
	s.Nodes = append(s.Nodes, scene.Node{Name: "Body", Parent: 0, Mesh: 0, Transform: mgl64.Scale3D(2, 2, 2)})
	return s
}

func TestRoundTrip(t *testing.T) {
	p := New()
	path := filepath.Join(t.TempDir(), "character"+p.Ext())
	want := testScene()

	if err := p.Export(context.Background(), want, path); err != nil {
		t.Fatalf("Export: %v", err)
	}
	got, err := p.Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if got.Name != want.Name {
		t.Errorf("expected scene name %q, got %q", want.Name, got.Name)
	}
	if len(got.Nodes) != 2 || got.Nodes[1].Parent != 0 || got.Nodes[1].Mesh != 0 || got.Nodes[0].Mesh != -1 {
		t.Fatalf("unexpected node layout %+v", got.Nodes)
	}
	for i := range want.Nodes {
		if got.Nodes[i].Transform != want.Nodes[i].Transform {
			t.Errorf("node %d: expected transform %v, got %v", i, want.Nodes[i].Transform, got.Nodes[i].Transform)
		}
	}

	gm, wm := got.Mesh("Body"), want.Mesh("Body")
	if gm == nil {
		t.Fatal("expected Body mesh")
	}
	if !reflect.DeepEqual(gm.Points, wm.Points) {
		t.Errorf("expected points %v, got %v", wm.Points, gm.Points)
	}
	if !reflect.DeepEqual(gm.Normals, wm.Normals) || !reflect.DeepEqual(gm.Tangents, wm.Tangents) {
		t.Error("normals or tangents differ")
	}
	if !reflect.DeepEqual(gm.Indices, wm.Indices) {
		t.Errorf("expected indices %v, got %v", wm.Indices, gm.Indices)
	}

	if names := gm.ChannelNames(); !reflect.DeepEqual(names, []string{"pull", "push"}) {
		t.Fatalf("expected [pull push], got %v", names)
	}
	pull := gm.Channels[0]
	if pull.Deformer != "morph" || len(pull.Shapes) != 2 {
		t.Fatalf("unexpected pull channel %+v", pull)
	}
	for i, sh := range pull.Shapes {
		wsh := wm.Channels[0].Shapes[i]
		if sh.Weight != wsh.Weight {
			t.Errorf("shape %d: expected weight %g, got %g", i, wsh.Weight, sh.Weight)
		}
		if !reflect.DeepEqual(sh.Points, wsh.Points) {
			t.Errorf("shape %d: expected %v, got %v", i, wsh.Points, sh.Points)
		}
	}
	if n := pull.Shapes[1].NormalDeltas; len(n) != 4 || n[0] != (mgl64.Vec3{0, 0.25, 0}) {
		t.Errorf("unexpected normal deltas %v", n)
	}
}

// writeForeign encodes testScene with its mesh extras replaced, the way
// other exporters write morph targets.
func writeForeign(t *testing.T, extras interface{}) string {
	t.Helper()
	doc, err := Encode(context.Background(), testScene())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	doc.Meshes[0].Extras = extras

	path := filepath.Join(t.TempDir(), "foreign.glb")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	enc := gltf.NewEncoder(f)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		t.Fatalf("encoding: %v", err)
	}
	return path
}

func TestImportForeignTargets(t *testing.T) {
	tests := []struct {
		name   string
		extras interface{}
		want   []string
	}{
		{"no extras", nil, []string{"target_0", "target_1", "target_2"}},
		{"target names only", map[string]interface{}{"targetNames": []string{"open", "wide", "push"}}, []string{"open", "wide", "push"}},
		{"partial names", map[string]interface{}{"targetNames": []string{"open", ""}}, []string{"open", "target_1", "target_2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New().Import(context.Background(), writeForeign(t, tt.extras))
			if err != nil {
				t.Fatalf("Import: %v", err)
			}
			m := got.Mesh("Body")
			if m == nil {
				t.Fatal("expected Body mesh")
			}
			if names := m.ChannelNames(); !reflect.DeepEqual(names, tt.want) {
				t.Fatalf("expected channels %v, got %v", tt.want, names)
			}

			want := testScene().Mesh("Body")
			frames := []scene.Shape{want.Channels[0].Shapes[0], want.Channels[0].Shapes[1], want.Channels[1].Shapes[0]}
			for i, ch := range m.Channels {
				if len(ch.Shapes) != 1 || ch.Shapes[0].Weight != 100 {
					t.Fatalf("channel %s: expected one frame at weight 100, got %+v", ch.Name, ch.Shapes)
				}
				if !reflect.DeepEqual(ch.Shapes[0].Points, frames[i].Points) {
					t.Errorf("channel %s: expected %v, got %v", ch.Name, frames[i].Points, ch.Shapes[0].Points)
				}
			}
		})
	}
}

func TestImportMismatchedWeights(t *testing.T) {
	path := writeForeign(t, map[string]interface{}{
		"targetNames":  []string{"pull", "pull", "push"},
		"frameWeights": []float64{50, 100},
	})
	if _, err := New().Import(context.Background(), path); !errors.Is(err, ErrTargetMissing) {
		t.Errorf("expected ErrTargetMissing, got %v", err)
	}
}

func TestImportMissing(t *testing.T) {
	_, err := New().Import(context.Background(), filepath.Join(t.TempDir(), "nope.glb"))
	if !errors.Is(err, scene.ErrSceneNotFound) {
		t.Errorf("expected ErrSceneNotFound, got %v", err)
	}
}

func TestDiscard(t *testing.T) {
	p := New()
	path := filepath.Join(t.TempDir(), "tmp"+p.Ext())
	if err := p.Export(context.Background(), testScene(), path); err != nil {
		t.Fatal(err)
	}
	if err := scene.Discard(p, path); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if _, err := p.Import(context.Background(), path); !errors.Is(err, scene.ErrSceneNotFound) {
		t.Errorf("expected the file to be gone, got %v", err)
	}
	if err := scene.Discard(p, path); err != nil {
		t.Errorf("discarding a missing file should succeed, got %v", err)
	}
}

func TestExportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New().Export(ctx, testScene(), filepath.Join(t.TempDir(), "x.glb")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNodeTransformTRS(t *testing.T) {
	n := &gltf.Node{Translation: [3]float32{1, 2, 3}, Rotation: [4]float32{0, 0, 0, 1}, Scale: [3]float32{2, 2, 2}}
	want := mgl64.Translate3D(1, 2, 3).Mul4(mgl64.Scale3D(2, 2, 2))
	if got := nodeTransform(n); !got.ApproxEqual(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
