// Package vecmath provides the vector helpers shared by the blend shape
// pipeline: exact position keys, content hashes and transform decomposition.
package vecmath

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Key is a hashable, exact representation of a 3D or 4D position.
// Components are stored as IEEE-754 bits. Negative zero is folded into
// positive zero so two keys are equal exactly when the vectors compare ==.
type Key [4]uint64

// KeyOf3 returns the key of a 3D position (w is stored as zero).
func KeyOf3(v mgl64.Vec3) Key {
	return Key{bits(v[0]), bits(v[1]), bits(v[2]), 0}
}

// KeyOf4 returns the key of a 4D position.
func KeyOf4(v mgl64.Vec4) Key {
	return Key{bits(v[0]), bits(v[1]), bits(v[2]), bits(v[3])}
}

func bits(f float64) uint64 {
	if f == 0 {
		return 0
	}
	return math.Float64bits(f)
}

// HashVec3s returns a content hash of a position sequence. The hash covers
// the raw bits of every component in order, so any edit to a rest position
// (including a sign flip of zero) changes it.
func HashVec3s(vs []mgl64.Vec3) uint64 {
	h := fnv.New64a()
	var buf [24]byte
	for _, v := range vs {
		binary.LittleEndian.PutUint64(buf[0:], math.Float64bits(v[0]))
		binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(v[1]))
		binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(v[2]))
		h.Write(buf[:])
	}
	return h.Sum64()
}

// BitsEqual3 reports whether a and b are bit-identical.
func BitsEqual3(a, b mgl64.Vec3) bool {
	return math.Float64bits(a[0]) == math.Float64bits(b[0]) &&
		math.Float64bits(a[1]) == math.Float64bits(b[1]) &&
		math.Float64bits(a[2]) == math.Float64bits(b[2])
}

// IsZero3 reports whether every component is exactly zero.
func IsZero3(v mgl64.Vec3) bool {
	return v[0] == 0 && v[1] == 0 && v[2] == 0
}

// IsZero4 reports whether every component is exactly zero.
func IsZero4(v mgl64.Vec4) bool {
	return v[0] == 0 && v[1] == 0 && v[2] == 0 && v[3] == 0
}

// Near4 reports whether every component of a and b differs by at most eps.
func Near4(a, b mgl64.Vec4, eps float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > eps {
			return false
		}
	}
	return true
}

// Distance4 returns the euclidean distance between a and b.
func Distance4(a, b mgl64.Vec4) float64 {
	return a.Sub(b).Len()
}
