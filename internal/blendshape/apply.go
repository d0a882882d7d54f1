package blendshape

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/blendshare/internal/importer"
	"github.com/Faultbox/blendshare/pkg/dataset"
)

// Applier writes stored generic frames onto imported meshes.
type Applier struct {
	log *zap.Logger
}

// NewApplier creates an applier. A nil logger discards output.
func NewApplier(log *zap.Logger) *Applier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Applier{log: log}
}

// Apply replaces or appends the record's channels on target.
//
// The target must have the record's vertex count and rest position hash;
// otherwise ErrTopologyMismatch is returned and target is untouched. A
// topology-invalid record never matches.
// Channels already present under the same name are replaced, so applying a
// record twice leaves the mesh as applying it once.
func (a *Applier) Apply(target *importer.Mesh, rec *dataset.MeshRecord) error {
	if !rec.Valid() {
		return errors.Wrapf(ErrTopologyMismatch, "mesh %q is topology-invalid in the dataset, only native channels were stored", rec.Name)
	}
	if target.VertexCount() != rec.VertexCount {
		return errors.Wrapf(ErrTopologyMismatch, "mesh %q has %d vertices, dataset expects %d",
			target.Name, target.VertexCount(), rec.VertexCount)
	}
	if h := target.Hash(); h != rec.VertexHash {
		return errors.Wrapf(ErrTopologyMismatch, "mesh %q rest positions changed (hash %016x, dataset %016x)",
			target.Name, h, rec.VertexHash)
	}

	log := a.log.With(zap.String("mesh", target.Name))
	n := target.VertexCount()

	incoming := make([]importer.Channel, 0, len(rec.Channels))
	replace := make(map[string]bool, len(rec.Channels))
	for _, ch := range rec.Channels {
		if len(ch.Frames) == 0 {
			log.Debug("channel has no generic frames", zap.String("channel", ch.Name))
			continue
		}
		incoming = append(incoming, a.expand(log, ch, n))
		replace[ch.Name] = true
	}

	channels := make([]importer.Channel, 0, len(target.Channels)+len(incoming))
	for _, ch := range target.Channels {
		if replace[ch.Name] {
			log.Warn("overwriting existing blend shape", zap.String("channel", ch.Name))
			continue
		}
		channels = append(channels, ch)
	}
	channels = append(channels, incoming...)

	target.Channels = channels
	log.Debug("applied blend shapes", zap.Int("channels", len(incoming)))
	return nil
}

// expand turns a stored channel into dense frames ordered by weight.
func (a *Applier) expand(log *zap.Logger, ch dataset.Channel, n int) importer.Channel {
	frames := append([]dataset.Frame(nil), ch.Frames...)
	sort.SliceStable(frames, func(i, j int) bool {
		return frames[i].Weight < frames[j].Weight
	})

	out := importer.Channel{Name: ch.Name, Frames: make([]importer.Frame, len(frames))}
	for i, f := range frames {
		var truncated [3]int
		dense := importer.Frame{Weight: f.Weight}
		dense.Vertices, truncated[0] = f.Vertices.Expand(n)
		dense.Normals, truncated[1] = f.Normals.Expand(n)
		dense.Tangents, truncated[2] = f.Tangents.Expand(n)

		if t := truncated[0] + truncated[1] + truncated[2]; t > 0 {
			log.Warn("dropped out-of-range delta entries",
				zap.String("channel", ch.Name),
				zap.Float64("weight", f.Weight),
				zap.Int("entries", t))
		}
		out.Frames[i] = dense
	}
	return out
}

// ApplyAll applies every record to the target of the same name. Failures are
// isolated per mesh. It returns the number of meshes written.
func (a *Applier) ApplyAll(targets []*importer.Mesh, ds *dataset.Dataset) (int, []*Failure) {
	byName := make(map[string]*importer.Mesh, len(targets))
	for _, t := range targets {
		byName[t.Name] = t
	}

	applied := 0
	var failures []*Failure
	for i := range ds.Meshes {
		rec := &ds.Meshes[i]
		target, ok := byName[rec.Name]
		if !ok {
			err := errors.Wrapf(ErrMissingNode, "no target mesh %q", rec.Name)
			a.log.Warn("skipping record", zap.String("mesh", rec.Name), zap.Error(err))
			failures = append(failures, newFailure(rec.Name, "", err))
			continue
		}
		if err := a.Apply(target, rec); err != nil {
			a.log.Error("apply failed", zap.String("mesh", rec.Name), zap.Error(err))
			failures = append(failures, newFailure(rec.Name, "", err))
			continue
		}
		applied++
	}
	return applied, failures
}

// FrameDeltas returns the dense vertex deltas of a channel frame on m, or nil.
func FrameDeltas(m *importer.Mesh, channel string, frame int) []mgl64.Vec3 {
	ci := m.FindChannel(channel)
	if ci < 0 || frame < 0 || frame >= len(m.Channels[ci].Frames) {
		return nil
	}
	return m.Channels[ci].Frames[frame].Vertices
}
