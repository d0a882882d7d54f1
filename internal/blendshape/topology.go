// Package blendshape extracts blend shape deltas between two versions of a
// mesh and applies stored deltas back onto imported meshes.
package blendshape

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/Faultbox/blendshare/internal/importer"
	"github.com/Faultbox/blendshare/pkg/vecmath"
)

// IsEqual reports whether a and b have the same length and bit-identical
// positions at every index.
func IsEqual(a, b []mgl64.Vec3) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !vecmath.BitsEqual3(a[i], b[i]) {
			return false
		}
	}
	return true
}

// MeshesEqual reports whether two imported meshes share a vertex layout.
func MeshesEqual(a, b *importer.Mesh) bool {
	return IsEqual(a.Positions, b.Positions)
}
