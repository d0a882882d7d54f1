package vecmath

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

// ErrSingularMatrix is returned when a transform cannot be inverted.
var ErrSingularMatrix = errors.New("singular transform matrix")

// identitySnap is the largest per-element deviation from identity that is
// still treated as identity after composing a transform with its inverse.
const identitySnap = 1e-12

// TransformMask selects which components of a relative transform are kept.
// Components that are not selected are reset to identity.
type TransformMask struct {
	Translate bool
	Rotate    bool
	Scale     bool
}

// All reports whether every component is selected.
func (m TransformMask) All() bool {
	return m.Translate && m.Rotate && m.Scale
}

// None reports whether no component is selected.
func (m TransformMask) None() bool {
	return !m.Translate && !m.Rotate && !m.Scale
}

// IsIdentity reports whether m is exactly the identity matrix.
func IsIdentity(m mgl64.Mat4) bool {
	return m == mgl64.Ident4()
}

// Decompose splits an affine matrix into translation, rotation and scale.
// A negative determinant is folded into the X scale.
func Decompose(m mgl64.Mat4) (mgl64.Vec3, mgl64.Quat, mgl64.Vec3) {
	translation := mgl64.Vec3{m[12], m[13], m[14]}

	sx, sy, sz := mgl64.Extract3DScale(m)
	if m.Mat3().Det() < 0 {
		sx = -sx
	}
	scale := mgl64.Vec3{sx, sy, sz}

	rot := mgl64.Ident4()
	for col, s := range scale {
		if s == 0 {
			continue
		}
		for row := 0; row < 3; row++ {
			rot[col*4+row] = m[col*4+row] / s
		}
	}
	rotation := mgl64.Mat4ToQuat(rot).Normalize()

	return translation, rotation, scale
}

// Compose builds T * R * S.
func Compose(translation mgl64.Vec3, rotation mgl64.Quat, scale mgl64.Vec3) mgl64.Mat4 {
	t := mgl64.Translate3D(translation[0], translation[1], translation[2])
	s := mgl64.Scale3D(scale[0], scale[1], scale[2])
	return t.Mul4(rotation.Mat4()).Mul4(s)
}

// RelativeTransform returns source * origin^-1, keeping only the components
// selected by mask. A result within identitySnap of identity is returned as
// the exact identity.
func RelativeTransform(source, origin mgl64.Mat4, mask TransformMask) (mgl64.Mat4, error) {
	if mask.None() {
		return mgl64.Ident4(), nil
	}
	if origin.Det() == 0 {
		return mgl64.Ident4(), ErrSingularMatrix
	}

	rel := source.Mul4(origin.Inv())
	if nearIdentity(rel) {
		return mgl64.Ident4(), nil
	}
	if mask.All() {
		return rel, nil
	}

	t, r, s := Decompose(rel)
	if !mask.Translate {
		t = mgl64.Vec3{}
	}
	if !mask.Rotate {
		r = mgl64.QuatIdent()
	}
	if !mask.Scale {
		s = mgl64.Vec3{1, 1, 1}
	}
	return Compose(t, r, s), nil
}

// nearIdentity compares element-wise against an absolute bound. mgl64's
// threshold helpers scale epsilon when one side is zero, which rejects the
// rounding left over by M * M^-1.
func nearIdentity(m mgl64.Mat4) bool {
	ident := mgl64.Ident4()
	for col := 0; col < 4; col++ {
		if !Near4(m.Col(col), ident.Col(col), identitySnap) {
			return false
		}
	}
	return true
}

// RotationOnly strips translation and scale from m.
func RotationOnly(m mgl64.Mat4) mgl64.Mat4 {
	if IsIdentity(m) {
		return m
	}
	_, r, _ := Decompose(m)
	return r.Mat4()
}
