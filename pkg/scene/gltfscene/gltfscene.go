// Package gltfscene reads and writes scenes as binary glTF 2.0 files.
//
// Every channel frame becomes one morph target of the mesh's first
// primitive. Targets carry position deltas plus optional normal and tangent
// deltas. The mesh extras record which channel and weight each target
// belongs to:
//
//	{"targetNames": ["smile", "blink", "blink"],
//	 "frameWeights": [100, 50, 100],
//	 "deformers": ["morph", "morph", "morph"]}
//
// glTF stores float32, so the round trip is lossy for values that are not
// representable in single precision.
package gltfscene

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/blendshare/pkg/scene"
)

// Ext is the file extension written by Provider.
const Ext = ".glb"

// glTF scene errors.
var (
	ErrNoPrimitive   = errors.New("mesh has no primitive")
	ErrNoPositions   = errors.New("primitive has no POSITION attribute")
	ErrBadExtras     = errors.New("malformed mesh extras")
	ErrBadAccessor   = errors.New("accessor index out of range")
	ErrTargetMissing = errors.New("morph target count does not match extras")
)

// Provider implements scene.Provider on top of glTF files.
type Provider struct{}

// New creates a glTF provider.
func New() *Provider {
	return &Provider{}
}

// Ext implements scene.Provider.
func (p *Provider) Ext() string {
	return Ext
}

type meshExtras struct {
	TargetNames  []string  `json:"targetNames"`
	FrameWeights []float64 `json:"frameWeights"`
	Deformers    []string  `json:"deformers,omitempty"`
}

// Export writes s to path as a binary glTF file.
func (p *Provider) Export(ctx context.Context, s *scene.Scene, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc, err := Encode(ctx, s)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	enc := gltf.NewEncoder(f)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		f.Close()
		return errors.Wrapf(err, "encoding %s", path)
	}
	return errors.Wrapf(f.Close(), "closing %s", path)
}

// Import reads a glTF file written by Export or any other exporter that
// keeps one primitive per mesh. Morph targets without frameWeights extras
// are read as one channel per target.
func (p *Provider) Import(ctx context.Context, path string) (*scene.Scene, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := gltf.Open(path)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrap(scene.ErrSceneNotFound, path)
		}
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	return Decode(ctx, doc)
}

// Encode converts s into a glTF document.
func Encode(ctx context.Context, s *scene.Scene) (*gltf.Document, error) {
	doc := gltf.NewDocument()
	doc.Scenes[0].Name = s.Name

	for i := range s.Meshes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc.Meshes = append(doc.Meshes, encodeMesh(doc, &s.Meshes[i]))
	}

	for i, n := range s.Nodes {
		node := &gltf.Node{
			Name:   n.Name,
			Matrix: toMatrix32(n.Transform),
		}
		if n.Mesh >= 0 && n.Mesh < len(s.Meshes) {
			node.Mesh = gltf.Index(uint32(n.Mesh))
		}
		doc.Nodes = append(doc.Nodes, node)
		if n.Parent < 0 || n.Parent >= len(s.Nodes) {
			doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(i))
		}
	}
	for i, n := range s.Nodes {
		if n.Parent >= 0 && n.Parent < len(s.Nodes) {
			parent := doc.Nodes[n.Parent]
			parent.Children = append(parent.Children, uint32(i))
		}
	}
	return doc, nil
}

func encodeMesh(doc *gltf.Document, m *scene.Mesh) *gltf.Mesh {
	attributes := gltf.Attribute{
		"POSITION": modeler.WritePosition(doc, points32(m.Points)),
	}
	if len(m.Normals) == len(m.Points) && len(m.Normals) > 0 {
		attributes["NORMAL"] = modeler.WriteNormal(doc, vec3s32(m.Normals))
	}
	if len(m.Tangents) == len(m.Points) && len(m.Tangents) > 0 {
		tangents := make([][4]float32, len(m.Tangents))
		for i, t := range m.Tangents {
			tangents[i] = [4]float32{float32(t[0]), float32(t[1]), float32(t[2]), 1}
		}
		attributes["TANGENT"] = modeler.WriteTangent(doc, tangents)
	}

	primitive := &gltf.Primitive{Attributes: attributes}
	if len(m.Indices) > 0 {
		primitive.Indices = gltf.Index(modeler.WriteIndices(doc, m.Indices))
	}

	var extras meshExtras
	for _, ch := range m.Channels {
		for _, sh := range ch.Shapes {
			if len(sh.Points) != len(m.Points) {
				continue
			}
			deltas := make([]mgl64.Vec3, len(sh.Points))
			for i := range sh.Points {
				deltas[i] = sh.Points[i].Vec3().Sub(m.Points[i].Vec3())
			}
			target := gltf.Attribute{
				"POSITION": modeler.WritePosition(doc, vec3s32(deltas)),
			}
			if len(sh.NormalDeltas) == len(m.Points) {
				target["NORMAL"] = modeler.WriteNormal(doc, vec3s32(sh.NormalDeltas))
			}
			// Morph target tangents are VEC3.
			if len(sh.TangentDeltas) == len(m.Points) {
				target["TANGENT"] = modeler.WriteNormal(doc, vec3s32(sh.TangentDeltas))
			}
			primitive.Targets = append(primitive.Targets, target)

			extras.TargetNames = append(extras.TargetNames, ch.Name)
			extras.FrameWeights = append(extras.FrameWeights, sh.Weight)
			extras.Deformers = append(extras.Deformers, ch.Deformer)
		}
	}

	mesh := &gltf.Mesh{
		Name:       m.Name,
		Primitives: []*gltf.Primitive{primitive},
	}
	if len(primitive.Targets) > 0 {
		mesh.Weights = make([]float32, len(primitive.Targets))
		mesh.Extras = extras
	}
	return mesh
}

// Decode converts a glTF document into a scene.
func Decode(ctx context.Context, doc *gltf.Document) (*scene.Scene, error) {
	s := &scene.Scene{}
	if len(doc.Scenes) > 0 {
		s.Name = doc.Scenes[0].Name
	}

	for i, gm := range doc.Meshes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := decodeMesh(doc, gm)
		if err != nil {
			return nil, errors.Wrapf(err, "mesh %d %q", i, gm.Name)
		}
		s.Meshes = append(s.Meshes, m)
	}

	s.Nodes = make([]scene.Node, len(doc.Nodes))
	for i, n := range doc.Nodes {
		s.Nodes[i] = scene.Node{
			Name:      n.Name,
			Parent:    -1,
			Mesh:      -1,
			Transform: nodeTransform(n),
		}
		if n.Mesh != nil && int(*n.Mesh) < len(s.Meshes) {
			s.Nodes[i].Mesh = int(*n.Mesh)
		}
	}
	for i, n := range doc.Nodes {
		for _, c := range n.Children {
			if int(c) < len(s.Nodes) {
				s.Nodes[c].Parent = i
			}
		}
	}
	return s, nil
}

func decodeMesh(doc *gltf.Document, gm *gltf.Mesh) (scene.Mesh, error) {
	m := scene.Mesh{Name: gm.Name}
	if len(gm.Primitives) == 0 {
		return m, ErrNoPrimitive
	}
	prim := gm.Primitives[0]

	posIdx, ok := prim.Attributes["POSITION"]
	if !ok {
		return m, ErrNoPositions
	}
	positions, err := readVec3(doc, posIdx, modeler.ReadPosition)
	if err != nil {
		return m, errors.Wrap(err, "positions")
	}
	m.Points = make([]mgl64.Vec4, len(positions))
	for i, p := range positions {
		m.Points[i] = p.Vec4(1)
	}

	if idx, ok := prim.Attributes["NORMAL"]; ok {
		if m.Normals, err = readVec3(doc, idx, modeler.ReadNormal); err != nil {
			return m, errors.Wrap(err, "normals")
		}
	}
	if idx, ok := prim.Attributes["TANGENT"]; ok {
		acr, err := accessor(doc, idx)
		if err != nil {
			return m, err
		}
		tangents, err := modeler.ReadTangent(doc, acr, nil)
		if err != nil {
			return m, errors.Wrap(err, "tangents")
		}
		m.Tangents = make([]mgl64.Vec3, len(tangents))
		for i, t := range tangents {
			m.Tangents[i] = mgl64.Vec3{float64(t[0]), float64(t[1]), float64(t[2])}
		}
	}
	if prim.Indices != nil {
		acr, err := accessor(doc, *prim.Indices)
		if err != nil {
			return m, err
		}
		if m.Indices, err = modeler.ReadIndices(doc, acr, nil); err != nil {
			return m, errors.Wrap(err, "indices")
		}
	}

	if len(prim.Targets) == 0 {
		return m, nil
	}
	extras, err := decodeExtras(gm.Extras)
	if err != nil {
		return m, err
	}
	if len(extras.FrameWeights) == 0 {
		return m, decodeForeignTargets(doc, prim, extras, &m)
	}
	if len(extras.TargetNames) != len(prim.Targets) || len(extras.FrameWeights) != len(prim.Targets) {
		return m, errors.Wrapf(ErrTargetMissing, "%d targets, %d names, %d weights",
			len(prim.Targets), len(extras.TargetNames), len(extras.FrameWeights))
	}

	for t, target := range prim.Targets {
		shape, err := decodeTarget(doc, target, m.Points)
		if err != nil {
			return m, errors.Wrapf(err, "target %d", t)
		}
		shape.Weight = extras.FrameWeights[t]

		name := extras.TargetNames[t]
		ci := len(m.Channels) - 1
		if ci < 0 || m.Channels[ci].Name != name {
			ch := scene.Channel{Name: name}
			if t < len(extras.Deformers) {
				ch.Deformer = extras.Deformers[t]
			}
			m.Channels = append(m.Channels, ch)
			ci++
		}
		m.Channels[ci].Shapes = append(m.Channels[ci].Shapes, shape)
	}
	return m, nil
}

// decodeForeignTargets handles files from other exporters, which carry at
// most targetNames. Every target becomes a single-frame channel at weight
// 100, named target_<t> when the exporter left it unnamed.
func decodeForeignTargets(doc *gltf.Document, prim *gltf.Primitive, extras meshExtras, m *scene.Mesh) error {
	for t, target := range prim.Targets {
		shape, err := decodeTarget(doc, target, m.Points)
		if err != nil {
			return errors.Wrapf(err, "target %d", t)
		}
		shape.Weight = 100

		name := fmt.Sprintf("target_%d", t)
		if t < len(extras.TargetNames) && extras.TargetNames[t] != "" {
			name = extras.TargetNames[t]
		}
		m.Channels = append(m.Channels, scene.Channel{Name: name, Shapes: []scene.Shape{shape}})
	}
	return nil
}

func decodeTarget(doc *gltf.Document, target gltf.Attribute, rest []mgl64.Vec4) (scene.Shape, error) {
	var shape scene.Shape

	idx, ok := target["POSITION"]
	if !ok {
		return shape, ErrNoPositions
	}
	deltas, err := readVec3(doc, idx, modeler.ReadPosition)
	if err != nil {
		return shape, err
	}
	if len(deltas) != len(rest) {
		return shape, errors.Errorf("expected %d position deltas, got %d", len(rest), len(deltas))
	}
	shape.Points = make([]mgl64.Vec4, len(rest))
	for i, d := range deltas {
		shape.Points[i] = rest[i].Add(d.Vec4(0))
	}

	if idx, ok := target["NORMAL"]; ok {
		if shape.NormalDeltas, err = readVec3(doc, idx, modeler.ReadNormal); err != nil {
			return shape, err
		}
	}
	if idx, ok := target["TANGENT"]; ok {
		if shape.TangentDeltas, err = readVec3(doc, idx, modeler.ReadNormal); err != nil {
			return shape, err
		}
	}
	return shape, nil
}

// decodeExtras accepts whatever the JSON decoder produced for extras.
func decodeExtras(raw interface{}) (meshExtras, error) {
	var extras meshExtras
	if raw == nil {
		return extras, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return extras, errors.Wrap(ErrBadExtras, err.Error())
	}
	if err := json.Unmarshal(b, &extras); err != nil {
		return extras, errors.Wrap(ErrBadExtras, err.Error())
	}
	return extras, nil
}

func accessor(doc *gltf.Document, idx uint32) (*gltf.Accessor, error) {
	if int(idx) >= len(doc.Accessors) {
		return nil, errors.Wrapf(ErrBadAccessor, "%d of %d", idx, len(doc.Accessors))
	}
	return doc.Accessors[idx], nil
}

type vec3Reader func(*gltf.Document, *gltf.Accessor, [][3]float32) ([][3]float32, error)

func readVec3(doc *gltf.Document, idx uint32, read vec3Reader) ([]mgl64.Vec3, error) {
	acr, err := accessor(doc, idx)
	if err != nil {
		return nil, err
	}
	data, err := read(doc, acr, nil)
	if err != nil {
		return nil, err
	}
	out := make([]mgl64.Vec3, len(data))
	for i, v := range data {
		out[i] = mgl64.Vec3{float64(v[0]), float64(v[1]), float64(v[2])}
	}
	return out, nil
}

func points32(points []mgl64.Vec4) [][3]float32 {
	out := make([][3]float32, len(points))
	for i, p := range points {
		out[i] = [3]float32{float32(p[0]), float32(p[1]), float32(p[2])}
	}
	return out
}

func vec3s32(v []mgl64.Vec3) [][3]float32 {
	out := make([][3]float32, len(v))
	for i, p := range v {
		out[i] = [3]float32{float32(p[0]), float32(p[1]), float32(p[2])}
	}
	return out
}

// Both glTF and mgl64 matrices are column-major.
func toMatrix32(m mgl64.Mat4) [16]float32 {
	var out [16]float32
	for i, v := range m {
		out[i] = float32(v)
	}
	return out
}

// nodeTransform returns the node matrix, or the TRS composition when the
// matrix is absent or identity. Zero values stand for glTF defaults.
func nodeTransform(n *gltf.Node) mgl64.Mat4 {
	var m mgl64.Mat4
	for i, v := range n.Matrix {
		m[i] = float64(v)
	}
	if m != (mgl64.Mat4{}) && m != mgl64.Ident4() {
		return m
	}

	t := mgl64.Translate3D(float64(n.Translation[0]), float64(n.Translation[1]), float64(n.Translation[2]))

	r := mgl64.Ident4()
	if n.Rotation != ([4]float32{}) {
		q := mgl64.Quat{
			W: float64(n.Rotation[3]),
			V: mgl64.Vec3{float64(n.Rotation[0]), float64(n.Rotation[1]), float64(n.Rotation[2])},
		}
		r = q.Normalize().Mat4()
	}

	s := mgl64.Ident4()
	if n.Scale != ([3]float32{}) {
		s = mgl64.Scale3D(float64(n.Scale[0]), float64(n.Scale[1]), float64(n.Scale[2]))
	}
	return t.Mul4(r).Mul4(s)
}
