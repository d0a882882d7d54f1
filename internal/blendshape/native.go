package blendshape

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/blendshare/pkg/dataset"
	"github.com/Faultbox/blendshare/pkg/scene"
)

// ApplyNative rebuilds the record's native channels on a native mesh under
// deformerID. Existing channels of the same name are replaced. Shape weights
// are spread evenly: frame i of n gets 100*(i+1)/n. It returns the number of
// channels written.
func ApplyNative(m *scene.Mesh, rec *dataset.MeshRecord, deformerID string, log *zap.Logger) (int, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if deformerID == "" {
		deformerID = dataset.DefaultDeformerID
	}
	if len(m.Points) != rec.ControlPointCount {
		return 0, errors.Wrapf(ErrControlPointCountMismatch, "mesh %q has %d control points, dataset expects %d",
			m.Name, len(m.Points), rec.ControlPointCount)
	}

	var built []scene.Channel
	var names []string
	for _, ch := range rec.Channels {
		if ch.Native == nil || len(ch.Native.Frames) == 0 {
			log.Debug("channel has no native data", zap.String("mesh", m.Name), zap.String("channel", ch.Name))
			continue
		}

		frames := append([]dataset.NativeFrame(nil), ch.Native.Frames...)
		sortNative(frames)

		out := scene.Channel{Name: ch.Name, Deformer: deformerID, Shapes: make([]scene.Shape, len(frames))}
		for i, f := range frames {
			deltas, truncated := f.Points.Expand(len(m.Points))
			if truncated > 0 {
				log.Warn("dropped out-of-range control point deltas",
					zap.String("mesh", m.Name),
					zap.String("channel", ch.Name),
					zap.Int("entries", truncated))
			}
			points := make([]mgl64.Vec4, len(m.Points))
			for p := range points {
				points[p] = m.Points[p].Add(deltas[p])
			}
			out.Shapes[i] = scene.Shape{
				Weight: 100 * float64(i+1) / float64(len(frames)),
				Points: points,
			}
		}
		built = append(built, out)
		names = append(names, ch.Name)
	}

	for _, name := range names {
		if m.FindChannel(name) >= 0 {
			log.Warn("overwriting existing channel", zap.String("mesh", m.Name), zap.String("channel", name))
		}
	}
	m.RemoveChannels("", names...)
	m.Channels = append(m.Channels, built...)
	return len(built), nil
}

// ApplyNativeAll applies every record of ds to the scene mesh of the same
// name. It returns the number of channels written.
func ApplyNativeAll(s *scene.Scene, ds *dataset.Dataset, log *zap.Logger) (int, []*Failure) {
	if log == nil {
		log = zap.NewNop()
	}

	total := 0
	var failures []*Failure
	for i := range ds.Meshes {
		rec := &ds.Meshes[i]
		m := s.Mesh(rec.Name)
		if m == nil {
			err := errors.Wrapf(ErrMissingNode, "no mesh %q in %q", rec.Name, s.Name)
			log.Warn("skipping record", zap.String("mesh", rec.Name), zap.Error(err))
			failures = append(failures, newFailure(rec.Name, "", err))
			continue
		}
		n, err := ApplyNative(m, rec, ds.DeformerID, log)
		if err != nil {
			log.Error("native apply failed", zap.String("mesh", rec.Name), zap.Error(err))
			failures = append(failures, newFailure(rec.Name, "", err))
			continue
		}
		total += n
	}
	return total, failures
}

// RemoveDataset deletes the channels ds added to s. Only channels under the
// dataset's deformer are removed. It returns the number of channels removed.
func RemoveDataset(s *scene.Scene, ds *dataset.Dataset) int {
	removed := 0
	for i := range ds.Meshes {
		rec := &ds.Meshes[i]
		if m := s.Mesh(rec.Name); m != nil {
			removed += m.RemoveChannels(ds.DeformerID, rec.ChannelNames()...)
		}
	}
	return removed
}

func sortNative(frames []dataset.NativeFrame) {
	sort.SliceStable(frames, func(i, j int) bool {
		return frames[i].Weight < frames[j].Weight
	})
}
