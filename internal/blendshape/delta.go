package blendshape

import (
	"context"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

// BaseMesh selects which mesh the deltas are measured against.
type BaseMesh int

const (
	// BaseSource measures shapes against the source rest pose and maps the
	// displacement into the origin frame.
	BaseSource BaseMesh = iota
	// BaseOrigin maps shapes into the origin frame and measures them
	// against the origin rest pose.
	BaseOrigin
)

func (b BaseMesh) String() string {
	switch b {
	case BaseSource:
		return "source"
	case BaseOrigin:
		return "origin"
	default:
		return "unknown"
	}
}

// ParseBaseMesh parses "source" or "origin".
func ParseBaseMesh(s string) (BaseMesh, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "source", "":
		return BaseSource, nil
	case "origin":
		return BaseOrigin, nil
	default:
		return BaseSource, errors.Errorf("unknown base mesh %q (want source or origin)", s)
	}
}

// ComputeDeltas returns the dense per-control-point delta of shape against
// base. The result is a fresh slice; inputs are not modified.
func ComputeDeltas(ctx context.Context, shape, base []mgl64.Vec4, n Normalizer, mode BaseMesh, par Parallelism) ([]mgl64.Vec4, error) {
	if len(shape) != len(base) {
		return nil, errors.Wrapf(ErrControlPointCountMismatch, "shape has %d points, base has %d", len(shape), len(base))
	}

	out := make([]mgl64.Vec4, len(shape))
	err := forEachChunk(ctx, len(shape), par, func(lo, hi int) {
		switch mode {
		case BaseOrigin:
			for i := lo; i < hi; i++ {
				out[i] = n.Point(shape[i]).Sub(base[i])
			}
		default:
			for i := lo; i < hi; i++ {
				out[i] = n.Vector(shape[i].Sub(base[i]))
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
