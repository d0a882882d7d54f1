package blendshape

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/blendshare/internal/importer"
	"github.com/Faultbox/blendshare/pkg/dataset"
	"github.com/Faultbox/blendshare/pkg/scene"
	"github.com/Faultbox/blendshare/pkg/vecmath"
)

// Options controls extraction.
type Options struct {
	BaseMesh    BaseMesh
	Weld        bool // Predict importer welding and merge deltas to match
	Mask        vecmath.TransformMask
	Tolerances  []float64
	Parallelism Parallelism
	TempDir     string // Directory for round-trip working copies
	DeformerID  string
}

// DefaultOptions returns the extraction defaults.
func DefaultOptions() Options {
	return Options{
		BaseMesh:   BaseSource,
		Weld:       true,
		Tolerances: DefaultTolerances,
		TempDir:    os.TempDir(),
		DeformerID: dataset.DefaultDeformerID,
	}
}

// Extractor turns source channels into datasets relative to an origin.
type Extractor struct {
	provider scene.Provider
	opts     Options
	log      *zap.Logger
}

// NewExtractor creates an extractor. The provider is only used when source
// and origin topologies differ.
func NewExtractor(provider scene.Provider, opts Options, log *zap.Logger) (*Extractor, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Tolerances == nil {
		opts.Tolerances = DefaultTolerances
	}
	if err := ValidateTolerances(opts.Tolerances); err != nil {
		return nil, err
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.DeformerID == "" {
		opts.DeformerID = dataset.DefaultDeformerID
	}
	return &Extractor{provider: provider, opts: opts, log: log}, nil
}

// MeshRequest names the channels to extract from one mesh.
type MeshRequest struct {
	Mesh     string
	Channels []string
}

// Result is the outcome of a batch extraction.
type Result struct {
	Dataset  *dataset.Dataset
	Failures []*Failure
}

// Invalid returns the names of meshes that kept only native data.
func (r *Result) Invalid() []string {
	var names []string
	for _, m := range r.Dataset.Meshes {
		if !m.Valid() {
			names = append(names, m.Name)
		}
	}
	return names
}

// DatasetName returns the default dataset name.
func DatasetName(origin, source string) string {
	return origin + "-" + source
}

// Extract runs ExtractMesh for every request. A nil request list extracts
// every channel of source that origin lacks. Failures are isolated per mesh
// and per channel; only cancellation stops the batch, in which case the
// returned Result holds the meshes completed so far.
func (e *Extractor) Extract(ctx context.Context, source, origin *scene.Scene, reqs []MeshRequest) (*Result, error) {
	if reqs == nil {
		reqs = CompareChannels(source, origin, true, e.log)
	}

	res := &Result{Dataset: &dataset.Dataset{
		Name:       DatasetName(origin.Name, source.Name),
		Origin:     origin.Name,
		DeformerID: e.opts.DeformerID,
	}}

	for _, req := range reqs {
		rec, failures, err := e.ExtractMesh(ctx, source, origin, req.Mesh, req.Channels)
		res.Failures = append(res.Failures, failures...)
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				return res, err
			}
			e.log.Error("mesh extraction failed", zap.String("mesh", req.Mesh), zap.Error(err))
			res.Failures = append(res.Failures, newFailure(req.Mesh, "", err))
			continue
		}
		if len(rec.Channels) == 0 {
			e.log.Info("no channels extracted", zap.String("mesh", req.Mesh))
			continue
		}
		res.Dataset.Meshes = append(res.Dataset.Meshes, *rec)
	}
	return res, nil
}

// channelDeltas holds the dense native deltas of one source channel.
type channelDeltas struct {
	name     string
	weights  []float64
	points   [][]mgl64.Vec4
	normals  [][]mgl64.Vec3 // nil entries when the shape has none
	tangents [][]mgl64.Vec3
}

// ExtractMesh extracts the named channels of one mesh. Channel failures are
// returned alongside the record; a mesh failure is returned as the error.
// When the tolerance ladder is exhausted the record is marked invalid and
// keeps only native deltas.
func (e *Extractor) ExtractMesh(ctx context.Context, source, origin *scene.Scene, name string, channels []string) (*dataset.MeshRecord, []*Failure, error) {
	if err := checkpoint(ctx); err != nil {
		return nil, nil, err
	}
	log := e.log.With(zap.String("mesh", name))

	src := source.Mesh(name)
	if src == nil {
		return nil, nil, errors.Wrapf(ErrMissingNode, "%q not in source %q", name, source.Name)
	}
	org := origin.Mesh(name)
	if org == nil {
		return nil, nil, errors.Wrapf(ErrMissingNode, "%q not in origin %q", name, origin.Name)
	}
	if len(src.Points) != len(org.Points) {
		return nil, nil, errors.Wrapf(ErrControlPointCountMismatch, "source has %d control points, origin has %d",
			len(src.Points), len(org.Points))
	}

	norm, err := NormalizerFor(source, origin, name, e.opts.Mask)
	if err != nil {
		return nil, nil, err
	}
	base := src.Points
	if e.opts.BaseMesh == BaseOrigin {
		base = org.Points
	}

	var failures []*Failure
	var extracted []channelDeltas
	for _, chName := range channels {
		ci := src.FindChannel(chName)
		if ci < 0 {
			err := errors.Wrapf(ErrChannelNotFound, "%q", chName)
			log.Warn("channel not found", zap.String("channel", chName))
			failures = append(failures, newFailure(name, chName, err))
			continue
		}

		cd, err := e.channelDeltas(ctx, &src.Channels[ci], base, norm)
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				return nil, failures, err
			}
			log.Warn("skipping channel", zap.String("channel", chName), zap.Error(err))
			failures = append(failures, newFailure(name, chName, err))
			continue
		}
		extracted = append(extracted, cd)
	}

	rec := &dataset.MeshRecord{Name: org.Name, ControlPointCount: len(org.Points)}
	if len(extracted) == 0 {
		return rec, failures, nil
	}

	impOpts := importer.Options{Weld: e.opts.Weld}
	orgImp := importer.Import(org, impOpts)
	srcImp := importer.Import(src, impOpts)

	if MeshesEqual(srcImp, orgImp) {
		log.Debug("topology matches, extracting directly")
		e.fillDirect(rec, extracted, orgImp)
		return rec, failures, nil
	}

	log.Info("topology differs, reconciling", zap.Int("sourceVertices", srcImp.VertexCount()),
		zap.Int("originVertices", orgImp.VertexCount()))
	if err := e.reconcile(ctx, log, source, origin, org, orgImp, extracted, rec); err != nil {
		return nil, failures, err
	}
	return rec, failures, nil
}

func (e *Extractor) channelDeltas(ctx context.Context, ch *scene.Channel, base []mgl64.Vec4, norm Normalizer) (channelDeltas, error) {
	cd := channelDeltas{name: ch.Name}
	for i, sh := range ch.Shapes {
		d, err := ComputeDeltas(ctx, sh.Points, base, norm, e.opts.BaseMesh, e.opts.Parallelism)
		if err != nil {
			return cd, errors.Wrapf(err, "shape %d", i)
		}
		cd.weights = append(cd.weights, sh.Weight)
		cd.points = append(cd.points, d)
		cd.normals = append(cd.normals, directions(sh.NormalDeltas, len(base), norm))
		cd.tangents = append(cd.tangents, directions(sh.TangentDeltas, len(base), norm))
	}
	return cd, nil
}

func directions(v []mgl64.Vec3, n int, norm Normalizer) []mgl64.Vec3 {
	if len(v) != n {
		return nil
	}
	out := make([]mgl64.Vec3, n)
	for i := range v {
		out[i] = norm.Direction(v[i])
	}
	return out
}

// fillDirect builds the record when source and origin import identically.
// Generic frames are the native deltas read at each vertex's
// representative control point.
func (e *Extractor) fillDirect(rec *dataset.MeshRecord, extracted []channelDeltas, orgImp *importer.Mesh) {
	reps := orgImp.Representatives
	for _, cd := range extracted {
		ch := dataset.Channel{Name: cd.name, Native: nativeChannel(cd, cd.points)}
		for s, points := range cd.points {
			vertices := make([]mgl64.Vec3, len(reps))
			for v, cp := range reps {
				vertices[v] = points[cp].Vec3()
			}
			ch.Frames = append(ch.Frames, dataset.Frame{
				Weight:   cd.weights[s],
				Vertices: dataset.CompactVec3(vertices),
				Normals:  dataset.CompactVec3(gatherVec3(cd.normals[s], reps)),
				Tangents: dataset.CompactVec3(gatherVec3(cd.tangents[s], reps)),
			})
		}
		ch.SortFrames()
		rec.Channels = append(rec.Channels, ch)
	}
	rec.VertexCount = orgImp.VertexCount()
	rec.VertexHash = orgImp.Hash()
}

// reconcile runs the tolerance ladder: merge deltas of predicted welding
// groups, round-trip a working copy of the origin mesh carrying the new
// channels and compare its import with the origin.
func (e *Extractor) reconcile(ctx context.Context, log *zap.Logger, source, origin *scene.Scene, org *scene.Mesh,
	orgImp *importer.Mesh, extracted []channelDeltas, rec *dataset.MeshRecord) error {
	ctrl, err := NewController(e.opts.Tolerances, log)
	if err != nil {
		return err
	}

	var groups [][]int
	if e.opts.Weld {
		groups = ResolveWeldingGroups(org.Points, WeldingShapes(org))
		log.Debug("resolved welding groups", zap.Int("groups", len(groups)))
	}
	transform, _ := origin.MeshTransform(org.Name)

	var (
		winner  [][][]mgl64.Vec4
		generic [][]dataset.Frame
	)
	esc, err := ctrl.Run(ctx, func(ctx context.Context, tol float64) (bool, error) {
		merged := make([][][]mgl64.Vec4, len(extracted))
		for i, cd := range extracted {
			merged[i] = make([][]mgl64.Vec4, len(cd.points))
			for s, d := range cd.points {
				m := append([]mgl64.Vec4(nil), d...)
				if _, err := MergeDeltas(ctx, m, groups, tol, e.opts.Parallelism); err != nil {
					return false, err
				}
				merged[i][s] = m
			}
		}

		work := e.workingCopy(origin.Name, org, transform, extracted, merged)
		rt, err := e.roundTrip(ctx, work, source.Name, origin.Name)
		if err != nil {
			return false, err
		}
		rtMesh := rt.Mesh(org.Name)
		if rtMesh == nil {
			return false, errors.Wrapf(ErrMissingNode, "%q missing after round trip", org.Name)
		}

		rtImp := importer.Import(rtMesh, importer.Options{Weld: e.opts.Weld})
		if !MeshesEqual(rtImp, orgImp) {
			log.Debug("round trip topology mismatch",
				zap.Float64("tolerance", tol),
				zap.Int("vertices", rtImp.VertexCount()),
				zap.Int("expected", orgImp.VertexCount()))
			return false, nil
		}

		frames := make([][]dataset.Frame, len(extracted))
		for i, cd := range extracted {
			ci := rtImp.FindChannel(cd.name)
			if ci < 0 {
				log.Debug("channel lost in round trip", zap.String("channel", cd.name))
				return false, nil
			}
			frames[i] = compactFrames(rtImp.Channels[ci].Frames)
		}

		generic = frames
		winner = merged
		return true, nil
	})
	if err != nil {
		return err
	}

	if !esc.OK {
		log.Warn("tolerances exhausted, keeping native deltas only", zap.Int("attempts", esc.Attempts))
		for _, cd := range extracted {
			rec.Channels = append(rec.Channels, dataset.Channel{Name: cd.name, Native: nativeChannel(cd, cd.points)})
		}
		rec.Invalidate()
		return nil
	}

	log.Info("reconciled topology", zap.Float64("tolerance", esc.Tolerance), zap.Int("attempts", esc.Attempts))
	for i, cd := range extracted {
		ch := dataset.Channel{Name: cd.name, Native: nativeChannel(cd, winner[i]), Frames: generic[i]}
		ch.SortFrames()
		rec.Channels = append(rec.Channels, ch)
	}
	rec.VertexCount = orgImp.VertexCount()
	rec.VertexHash = orgImp.Hash()
	return nil
}

// workingCopy returns a single-mesh scene holding the origin mesh with the
// extracted channels rebuilt on its rest pose.
func (e *Extractor) workingCopy(name string, org *scene.Mesh, transform mgl64.Mat4, extracted []channelDeltas, merged [][][]mgl64.Vec4) *scene.Scene {
	mesh := org.Clone()
	names := make([]string, len(extracted))
	for i, cd := range extracted {
		names[i] = cd.name
	}
	mesh.RemoveChannels("", names...)

	for i, cd := range extracted {
		ch := scene.Channel{Name: cd.name, Deformer: e.opts.DeformerID}
		for s, deltas := range merged[i] {
			points := make([]mgl64.Vec4, len(deltas))
			for p, d := range deltas {
				points[p] = org.Points[p].Add(d)
			}
			ch.Shapes = append(ch.Shapes, scene.Shape{
				Weight:        cd.weights[s],
				Points:        points,
				NormalDeltas:  cd.normals[s],
				TangentDeltas: cd.tangents[s],
			})
		}
		mesh.Channels = append(mesh.Channels, ch)
	}

	work := &scene.Scene{Name: name}
	work.AddMesh(mesh, transform)
	return work
}

func (e *Extractor) roundTrip(ctx context.Context, work *scene.Scene, sourceName, originName string) (*scene.Scene, error) {
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	file := fmt.Sprintf("%s-%s-%s%s", safeName(originName), safeName(sourceName), uuid.NewString(), e.provider.Ext())
	path := filepath.Join(e.opts.TempDir, file)
	defer func() {
		if err := scene.Discard(e.provider, path); err != nil {
			e.log.Warn("failed to remove working copy", zap.String("path", path), zap.Error(err))
		}
	}()

	if err := e.provider.Export(ctx, work, path); err != nil {
		return nil, errors.Wrap(asCancelled(err), "exporting working copy")
	}
	rt, err := e.provider.Import(ctx, path)
	if err != nil {
		return nil, errors.Wrap(asCancelled(err), "importing working copy")
	}

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	return rt, nil
}

func nativeChannel(cd channelDeltas, points [][]mgl64.Vec4) *dataset.NativeChannel {
	nc := &dataset.NativeChannel{Frames: make([]dataset.NativeFrame, len(points))}
	for s, d := range points {
		nc.Frames[s] = dataset.NativeFrame{Weight: cd.weights[s], Points: dataset.CompactVec4(d)}
	}
	return nc
}

func compactFrames(frames []importer.Frame) []dataset.Frame {
	out := make([]dataset.Frame, len(frames))
	for i, f := range frames {
		out[i] = dataset.Frame{
			Weight:   f.Weight,
			Vertices: dataset.CompactVec3(f.Vertices),
			Normals:  dataset.CompactVec3(f.Normals),
			Tangents: dataset.CompactVec3(f.Tangents),
		}
	}
	return out
}

func gatherVec3(src []mgl64.Vec3, reps []int) []mgl64.Vec3 {
	if src == nil {
		return nil
	}
	out := make([]mgl64.Vec3, len(reps))
	for v, cp := range reps {
		out[v] = src[cp]
	}
	return out
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, s)
}
