// Package scene defines the native mesh model exchanged with mesh providers.
//
// Nodes and meshes live in flat slices owned by the Scene and reference each
// other by index. An index of -1 means "none".
package scene

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/Faultbox/blendshare/pkg/encoding"
)

// Scene is a flat arena of nodes and meshes.
type Scene struct {
	Name   string
	Nodes  []Node
	Meshes []Mesh
}

// Node places a mesh in the scene.
type Node struct {
	Name      string
	Parent    int        // Index into Scene.Nodes, -1 for roots
	Mesh      int        // Index into Scene.Meshes, -1 for empty nodes
	Transform mgl64.Mat4 // Local transform
}

// Mesh is a native mesh: control points plus deformation channels.
type Mesh struct {
	Name     string
	Points   []mgl64.Vec4 // Control points, w = 1
	Normals  []mgl64.Vec3 // Optional, parallel to Points
	Tangents []mgl64.Vec3 // Optional, parallel to Points
	Indices  []uint32     // Triangle list
	Channels []Channel
}

// Channel is a named deformation with one or more target shapes.
type Channel struct {
	Name     string
	Deformer string // Deformer the channel belongs to
	Shapes   []Shape
}

// Shape is one target of a channel.
type Shape struct {
	Weight        float64      // Full-weight percentage in (0,100]
	Points        []mgl64.Vec4 // Absolute control point positions
	NormalDeltas  []mgl64.Vec3 // Optional
	TangentDeltas []mgl64.Vec3 // Optional
}

// FindMesh returns the index of the mesh with the given name, or -1.
func (s *Scene) FindMesh(name string) int {
	for i := range s.Meshes {
		if s.Meshes[i].Name == name {
			return i
		}
	}
	for i := range s.Meshes {
		if encoding.SameName(s.Meshes[i].Name, name) {
			return i
		}
	}
	return -1
}

// Mesh returns the named mesh, or nil.
func (s *Scene) Mesh(name string) *Mesh {
	if i := s.FindMesh(name); i >= 0 {
		return &s.Meshes[i]
	}
	return nil
}

// MeshNode returns the index of the first node that references mesh, or -1.
func (s *Scene) MeshNode(mesh int) int {
	for i := range s.Nodes {
		if s.Nodes[i].Mesh == mesh {
			return i
		}
	}
	return -1
}

// LocalTransform returns the local transform of node, or identity when the
// index is out of range.
func (s *Scene) LocalTransform(node int) mgl64.Mat4 {
	if node < 0 || node >= len(s.Nodes) {
		return mgl64.Ident4()
	}
	return s.Nodes[node].Transform
}

// MeshTransform returns the local transform of the node owning the named
// mesh. ok is false when the mesh or its node does not exist.
func (s *Scene) MeshTransform(name string) (mgl64.Mat4, bool) {
	mi := s.FindMesh(name)
	if mi < 0 {
		return mgl64.Ident4(), false
	}
	ni := s.MeshNode(mi)
	if ni < 0 {
		return mgl64.Ident4(), false
	}
	return s.LocalTransform(ni), true
}

// AddMesh appends a mesh with a root node carrying transform and returns the
// mesh index.
func (s *Scene) AddMesh(m Mesh, transform mgl64.Mat4) int {
	s.Meshes = append(s.Meshes, m)
	idx := len(s.Meshes) - 1
	s.Nodes = append(s.Nodes, Node{
		Name:      m.Name,
		Parent:    -1,
		Mesh:      idx,
		Transform: transform,
	})
	return idx
}

// Clone returns a deep copy of the scene.
func (s *Scene) Clone() *Scene {
	out := &Scene{
		Name:   s.Name,
		Nodes:  append([]Node(nil), s.Nodes...),
		Meshes: make([]Mesh, len(s.Meshes)),
	}
	for i := range s.Meshes {
		out.Meshes[i] = s.Meshes[i].Clone()
	}
	return out
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() Mesh {
	out := Mesh{
		Name:     m.Name,
		Points:   cloneVec4(m.Points),
		Normals:  cloneVec3(m.Normals),
		Tangents: cloneVec3(m.Tangents),
		Indices:  append([]uint32(nil), m.Indices...),
	}
	if m.Channels != nil {
		out.Channels = make([]Channel, len(m.Channels))
		for i, ch := range m.Channels {
			out.Channels[i] = ch.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the channel.
func (c Channel) Clone() Channel {
	out := Channel{Name: c.Name, Deformer: c.Deformer}
	if c.Shapes != nil {
		out.Shapes = make([]Shape, len(c.Shapes))
		for i, sh := range c.Shapes {
			out.Shapes[i] = Shape{
				Weight:        sh.Weight,
				Points:        cloneVec4(sh.Points),
				NormalDeltas:  cloneVec3(sh.NormalDeltas),
				TangentDeltas: cloneVec3(sh.TangentDeltas),
			}
		}
	}
	return out
}

// FindChannel returns the index of the named channel, or -1.
func (m *Mesh) FindChannel(name string) int {
	for i := range m.Channels {
		if m.Channels[i].Name == name {
			return i
		}
	}
	for i := range m.Channels {
		if encoding.SameName(m.Channels[i].Name, name) {
			return i
		}
	}
	return -1
}

// ChannelNames returns the channel names in order.
func (m *Mesh) ChannelNames() []string {
	names := make([]string, len(m.Channels))
	for i := range m.Channels {
		names[i] = m.Channels[i].Name
	}
	return names
}

// RemoveChannels deletes the named channels and returns how many were
// removed. When deformer is not empty only channels of that deformer match.
func (m *Mesh) RemoveChannels(deformer string, names ...string) int {
	kept := m.Channels[:0:0]
	removed := 0
	for _, ch := range m.Channels {
		if (deformer == "" || ch.Deformer == deformer) && containsName(names, ch.Name) {
			removed++
			continue
		}
		kept = append(kept, ch)
	}
	m.Channels = kept
	return removed
}

// Shapes returns every target shape of every channel, in channel order.
func (m *Mesh) Shapes() [][]mgl64.Vec4 {
	var shapes [][]mgl64.Vec4
	for _, ch := range m.Channels {
		for _, sh := range ch.Shapes {
			shapes = append(shapes, sh.Points)
		}
	}
	return shapes
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if encoding.SameName(n, name) {
			return true
		}
	}
	return false
}

func cloneVec4(v []mgl64.Vec4) []mgl64.Vec4 {
	if v == nil {
		return nil
	}
	return append([]mgl64.Vec4(nil), v...)
}

func cloneVec3(v []mgl64.Vec3) []mgl64.Vec3 {
	if v == nil {
		return nil
	}
	return append([]mgl64.Vec3(nil), v...)
}
