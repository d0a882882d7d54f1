package dataset

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/Faultbox/blendshare/pkg/vecmath"
)

// SparseVec3 stores the non-zero entries of a per-vertex delta array.
// Indices and Deltas are parallel and indices ascend.
type SparseVec3 struct {
	Indices []int32
	Deltas  []mgl64.Vec3
}

// Len returns the number of stored entries.
func (s SparseVec3) Len() int {
	return len(s.Indices)
}

// MaxIndex returns the largest stored index, or -1 when empty.
func (s SparseVec3) MaxIndex() int {
	maxIdx := -1
	for _, idx := range s.Indices {
		if int(idx) > maxIdx {
			maxIdx = int(idx)
		}
	}
	return maxIdx
}

// CompactVec3 keeps the entries of dense that are not exactly zero.
func CompactVec3(dense []mgl64.Vec3) SparseVec3 {
	var s SparseVec3
	for i, d := range dense {
		if vecmath.IsZero3(d) {
			continue
		}
		s.Indices = append(s.Indices, int32(i))
		s.Deltas = append(s.Deltas, d)
	}
	return s
}

// Expand writes the entries into a zero-filled array of length n.
// Entries whose index falls outside [0,n) are skipped and counted.
func (s SparseVec3) Expand(n int) ([]mgl64.Vec3, int) {
	dense := make([]mgl64.Vec3, n)
	truncated := 0
	for i, idx := range s.Indices {
		if idx < 0 || int(idx) >= n {
			truncated++
			continue
		}
		dense[idx] = s.Deltas[i]
	}
	return dense, truncated
}

// SparseVec4 stores the non-zero entries of a per-control-point delta array.
type SparseVec4 struct {
	Indices []int32
	Deltas  []mgl64.Vec4
}

// Len returns the number of stored entries.
func (s SparseVec4) Len() int {
	return len(s.Indices)
}

// MaxIndex returns the largest stored index, or -1 when empty.
func (s SparseVec4) MaxIndex() int {
	maxIdx := -1
	for _, idx := range s.Indices {
		if int(idx) > maxIdx {
			maxIdx = int(idx)
		}
	}
	return maxIdx
}

// CompactVec4 keeps the entries of dense whose four components are not all
// exactly zero.
func CompactVec4(dense []mgl64.Vec4) SparseVec4 {
	var s SparseVec4
	for i, d := range dense {
		if vecmath.IsZero4(d) {
			continue
		}
		s.Indices = append(s.Indices, int32(i))
		s.Deltas = append(s.Deltas, d)
	}
	return s
}

// Expand writes the entries into a zero-filled array of length n.
// Entries whose index falls outside [0,n) are skipped and counted.
func (s SparseVec4) Expand(n int) ([]mgl64.Vec4, int) {
	dense := make([]mgl64.Vec4, n)
	truncated := 0
	for i, idx := range s.Indices {
		if idx < 0 || int(idx) >= n {
			truncated++
			continue
		}
		dense[idx] = s.Deltas[i]
	}
	return dense, truncated
}
