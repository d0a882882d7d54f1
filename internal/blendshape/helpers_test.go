package blendshape

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/Faultbox/blendshare/pkg/scene"
)

// seamPoints has a seam: control points 1 and 3 share a rest position.
func seamPoints() []mgl64.Vec4 {
	return []mgl64.Vec4{
		{0, 0, 0, 1},
		{1, 0, 0, 1},
		{0, 1, 0, 1},
		{1, 0, 0, 1},
	}
}

// offsetShape returns points with each listed control point moved by d.
func offsetShape(points []mgl64.Vec4, d map[int]mgl64.Vec4) []mgl64.Vec4 {
	out := append([]mgl64.Vec4(nil), points...)
	for i, v := range d {
		out[i] = out[i].Add(v)
	}
	return out
}

func newScene(name string, m scene.Mesh, transform mgl64.Mat4) *scene.Scene {
	s := &scene.Scene{Name: name}
	s.AddMesh(m, transform)
	return s
}

// seamScenes returns an origin without channels and a source carrying a
// "pull" channel that moves both seam points up, the second by extra.
func seamScenes(extra float64) (source, origin *scene.Scene) {
	origin = newScene("origin", scene.Mesh{Name: "Body", Points: seamPoints()}, mgl64.Ident4())

	shape := offsetShape(seamPoints(), map[int]mgl64.Vec4{
		1: {0, 0, 1, 0},
		3: {0, 0, 1 + extra, 0},
	})
	source = newScene("source", scene.Mesh{
		Name:   "Body",
		Points: seamPoints(),
		Channels: []scene.Channel{{
			Name:     "pull",
			Deformer: "morph",
			Shapes:   []scene.Shape{{Weight: 100, Points: shape}},
		}},
	}, mgl64.Ident4())
	return source, origin
}

// gridScenes returns identical source and origin meshes where source has two
// channels, one with two frames.
func gridScenes() (source, origin *scene.Scene) {
	rest := []mgl64.Vec4{
		{0, 0, 0, 1},
		{0.1, 0, 0, 1},
		{0.2, 0.3, 0, 1},
		{0.7, 0.3, 0.1, 1},
		{0.3, 0.9, 0.25, 1},
	}
	origin = newScene("origin", scene.Mesh{Name: "Face", Points: rest}, mgl64.Ident4())

	smile := offsetShape(rest, map[int]mgl64.Vec4{
		2: {0.01, 0.02, 0.003, 0},
		3: {-0.3, 0.1, 0.7, 0},
	})
	blinkHalf := offsetShape(rest, map[int]mgl64.Vec4{4: {0, -0.05, 0, 0}})
	blinkFull := offsetShape(rest, map[int]mgl64.Vec4{4: {0, -0.1, 0.0001, 0}})

	source = newScene("source", scene.Mesh{
		Name:   "Face",
		Points: rest,
		Channels: []scene.Channel{
			{Name: "smile", Deformer: "morph", Shapes: []scene.Shape{{Weight: 100, Points: smile}}},
			{Name: "blink", Deformer: "morph", Shapes: []scene.Shape{
				{Weight: 100, Points: blinkFull},
				{Weight: 50, Points: blinkHalf},
			}},
		},
	}, mgl64.Ident4())
	return source, origin
}
