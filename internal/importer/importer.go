// Package importer models what a downstream game engine importer produces
// from a native mesh: control points are split into render vertices and
// coincident control points are welded.
package importer

import (
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/Faultbox/blendshare/pkg/scene"
	"github.com/Faultbox/blendshare/pkg/vecmath"
)

// ErrMeshNotFound is returned when the requested mesh is absent.
var ErrMeshNotFound = errors.New("mesh not found")

// Options controls the import.
type Options struct {
	// Weld merges control points whose rest position and every target shape
	// position are identical.
	Weld bool
}

// DefaultOptions returns the options most engines use.
func DefaultOptions() Options {
	return Options{Weld: true}
}

// Mesh is an imported mesh.
type Mesh struct {
	Name      string
	Positions []mgl64.Vec3
	Normals   []mgl64.Vec3
	Tangents  []mgl64.Vec3

	// Representatives maps each vertex to the first control point welded
	// into it. Remap maps each control point to its vertex.
	Representatives []int
	Remap           []int

	// Indices is the triangle list rewritten to vertex indices.
	Indices []uint32

	Channels []Channel

	// Skipped lists native channels that could not be imported because a
	// shape disagreed with the control point count.
	Skipped []string
}

// Channel is an imported blend shape.
type Channel struct {
	Name   string
	Frames []Frame
}

// Frame is one dense blend shape frame. Arrays are VertexCount long.
type Frame struct {
	Weight   float64
	Vertices []mgl64.Vec3
	Normals  []mgl64.Vec3
	Tangents []mgl64.Vec3
}

// VertexCount returns the number of imported vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Positions)
}

// Hash returns the content hash of the rest positions.
func (m *Mesh) Hash() uint64 {
	return vecmath.HashVec3s(m.Positions)
}

// FindChannel returns the index of the named channel, or -1.
func (m *Mesh) FindChannel(name string) int {
	for i := range m.Channels {
		if m.Channels[i].Name == name {
			return i
		}
	}
	return -1
}

// ChannelNames returns channel names in order.
func (m *Mesh) ChannelNames() []string {
	names := make([]string, len(m.Channels))
	for i := range m.Channels {
		names[i] = m.Channels[i].Name
	}
	return names
}

// ImportScene imports the named mesh of s.
func ImportScene(s *scene.Scene, name string, opts Options) (*Mesh, error) {
	m := s.Mesh(name)
	if m == nil {
		return nil, errors.Wrapf(ErrMeshNotFound, "%q in scene %q", name, s.Name)
	}
	return Import(m, opts), nil
}

// Import converts a native mesh into its imported form.
func Import(src *scene.Mesh, opts Options) *Mesh {
	out := &Mesh{Name: src.Name}

	var channels []scene.Channel
	for _, ch := range src.Channels {
		if !shapesMatch(ch, len(src.Points)) {
			out.Skipped = append(out.Skipped, ch.Name)
			continue
		}
		channels = append(channels, ch)
	}

	out.Remap, out.Representatives = weld(src.Points, channels, opts.Weld)

	n := len(out.Representatives)
	out.Positions = make([]mgl64.Vec3, n)
	for v, cp := range out.Representatives {
		out.Positions[v] = src.Points[cp].Vec3()
	}
	if len(src.Normals) == len(src.Points) {
		out.Normals = gather(src.Normals, out.Representatives)
	}
	if len(src.Tangents) == len(src.Points) {
		out.Tangents = gather(src.Tangents, out.Representatives)
	}
	if len(src.Indices) > 0 {
		out.Indices = make([]uint32, len(src.Indices))
		for i, cp := range src.Indices {
			out.Indices[i] = uint32(out.Remap[cp])
		}
	}

	for _, ch := range channels {
		ic := Channel{Name: ch.Name, Frames: make([]Frame, len(ch.Shapes))}
		for i, sh := range ch.Shapes {
			f := Frame{
				Weight:   sh.Weight,
				Vertices: make([]mgl64.Vec3, n),
				Normals:  make([]mgl64.Vec3, n),
				Tangents: make([]mgl64.Vec3, n),
			}
			for v, cp := range out.Representatives {
				f.Vertices[v] = sh.Points[cp].Vec3().Sub(src.Points[cp].Vec3())
				if len(sh.NormalDeltas) == len(src.Points) {
					f.Normals[v] = sh.NormalDeltas[cp]
				}
				if len(sh.TangentDeltas) == len(src.Points) {
					f.Tangents[v] = sh.TangentDeltas[cp]
				}
			}
			ic.Frames[i] = f
		}
		out.Channels = append(out.Channels, ic)
	}

	return out
}

// Native converts the imported mesh back into a scene mesh with one control
// point per vertex. Channels are written under deformer.
func (m *Mesh) Native(deformer string) scene.Mesh {
	n := m.VertexCount()
	out := scene.Mesh{
		Name:     m.Name,
		Points:   make([]mgl64.Vec4, n),
		Normals:  append([]mgl64.Vec3(nil), m.Normals...),
		Tangents: append([]mgl64.Vec3(nil), m.Tangents...),
		Indices:  append([]uint32(nil), m.Indices...),
	}
	for v, p := range m.Positions {
		out.Points[v] = p.Vec4(1)
	}

	for _, ch := range m.Channels {
		sc := scene.Channel{Name: ch.Name, Deformer: deformer}
		for _, f := range ch.Frames {
			sh := scene.Shape{Weight: f.Weight, Points: make([]mgl64.Vec4, n)}
			for v, p := range m.Positions {
				var d mgl64.Vec3
				if v < len(f.Vertices) {
					d = f.Vertices[v]
				}
				sh.Points[v] = p.Add(d).Vec4(1)
			}
			if len(f.Normals) == n {
				sh.NormalDeltas = append([]mgl64.Vec3(nil), f.Normals...)
			}
			if len(f.Tangents) == n {
				sh.TangentDeltas = append([]mgl64.Vec3(nil), f.Tangents...)
			}
			sc.Shapes = append(sc.Shapes, sh)
		}
		out.Channels = append(out.Channels, sc)
	}
	return out
}

func shapesMatch(ch scene.Channel, n int) bool {
	for _, sh := range ch.Shapes {
		if len(sh.Points) != n {
			return false
		}
	}
	return true
}

// weld assigns vertices to control points. With welding enabled, control
// points sharing rest position and every shape position collapse into the
// vertex of the first such control point.
func weld(points []mgl64.Vec4, channels []scene.Channel, enabled bool) (remap, reps []int) {
	remap = make([]int, len(points))
	if !enabled {
		reps = make([]int, len(points))
		for i := range points {
			remap[i] = i
			reps[i] = i
		}
		return remap, reps
	}

	seen := make(map[string]int, len(points))
	buf := make([]byte, 0, 32)
	for i, p := range points {
		buf = appendKey(buf[:0], vecmath.KeyOf3(p.Vec3()))
		for _, ch := range channels {
			for _, sh := range ch.Shapes {
				buf = appendKey(buf, vecmath.KeyOf3(sh.Points[i].Vec3()))
			}
		}

		key := string(buf)
		if v, ok := seen[key]; ok {
			remap[i] = v
			continue
		}
		v := len(reps)
		seen[key] = v
		remap[i] = v
		reps = append(reps, i)
	}
	return remap, reps
}

func appendKey(buf []byte, k vecmath.Key) []byte {
	for _, c := range k {
		buf = binary.LittleEndian.AppendUint64(buf, c)
	}
	return buf
}

func gather(src []mgl64.Vec3, reps []int) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, len(reps))
	for v, cp := range reps {
		out[v] = src[cp]
	}
	return out
}
