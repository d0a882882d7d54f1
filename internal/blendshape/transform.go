package blendshape

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/Faultbox/blendshare/pkg/scene"
	"github.com/Faultbox/blendshare/pkg/vecmath"
)

// Normalizer maps source-space data into the origin's frame.
type Normalizer struct {
	m        mgl64.Mat4
	rot      mgl64.Mat4
	identity bool
}

// IdentityNormalizer returns a normalizer that leaves data untouched.
func IdentityNormalizer() Normalizer {
	return NewNormalizer(mgl64.Ident4())
}

// NewNormalizer wraps a relative transform.
func NewNormalizer(rel mgl64.Mat4) Normalizer {
	return Normalizer{
		m:        rel,
		rot:      vecmath.RotationOnly(rel),
		identity: vecmath.IsIdentity(rel),
	}
}

// NormalizerFor builds the normalizer for the named mesh from the local
// transforms of its nodes in source and origin.
func NormalizerFor(source, origin *scene.Scene, mesh string, mask vecmath.TransformMask) (Normalizer, error) {
	if mask.None() {
		return IdentityNormalizer(), nil
	}

	src, ok := source.MeshTransform(mesh)
	if !ok {
		return Normalizer{}, errors.Wrapf(ErrMissingNode, "no node for %q in source", mesh)
	}
	org, ok := origin.MeshTransform(mesh)
	if !ok {
		return Normalizer{}, errors.Wrapf(ErrMissingNode, "no node for %q in origin", mesh)
	}

	rel, err := vecmath.RelativeTransform(src, org, mask)
	if err != nil {
		return Normalizer{}, errors.Wrapf(err, "mesh %q", mesh)
	}
	return NewNormalizer(rel), nil
}

// Identity reports whether the normalizer is a no-op.
func (n Normalizer) Identity() bool {
	return n.identity
}

// Matrix returns the relative transform.
func (n Normalizer) Matrix() mgl64.Mat4 {
	return n.m
}

// Vector transforms a displacement. Translation does not apply and w is
// carried through unchanged.
func (n Normalizer) Vector(d mgl64.Vec4) mgl64.Vec4 {
	if n.identity {
		return d
	}
	out := n.m.Mul4x1(mgl64.Vec4{d[0], d[1], d[2], 0})
	out[3] = d[3]
	return out
}

// Point transforms an absolute position.
func (n Normalizer) Point(p mgl64.Vec4) mgl64.Vec4 {
	if n.identity {
		return p
	}
	return n.m.Mul4x1(p)
}

// Direction rotates a normal or tangent delta.
func (n Normalizer) Direction(v mgl64.Vec3) mgl64.Vec3 {
	if n.identity {
		return v
	}
	return n.rot.Mul4x1(v.Vec4(0)).Vec3()
}
