package blendshape

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Faultbox/blendshare/pkg/scene"
	"github.com/Faultbox/blendshare/pkg/vecmath"
)

// ResolveWeldingGroups predicts which control points an importer welds.
//
// Points are bucketed by exact rest position; every bucket with two or more
// members is then split by each shape in turn, dropping singletons. Groups
// only ever shrink. Shapes whose length differs from rest are ignored.
// Groups are returned with ascending members, ordered by first member.
func ResolveWeldingGroups(rest []mgl64.Vec4, shapes [][]mgl64.Vec4) [][]int {
	groups := bucket(allIndices(len(rest)), func(i int) vecmath.Key {
		return vecmath.KeyOf4(rest[i])
	})

	for _, shape := range shapes {
		if len(groups) == 0 {
			break
		}
		if len(shape) != len(rest) {
			continue
		}
		var refined [][]int
		for _, g := range groups {
			refined = append(refined, bucket(g, func(i int) vecmath.Key {
				return vecmath.KeyOf4(shape[i])
			})...)
		}
		groups = refined
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i][0] < groups[j][0]
	})
	return groups
}

// WeldingShapes returns every target shape of every existing channel of m.
func WeldingShapes(m *scene.Mesh) [][]mgl64.Vec4 {
	return m.Shapes()
}

// bucket splits members by key, keeping buckets of two or more. Members keep
// their relative order.
func bucket(members []int, key func(int) vecmath.Key) [][]int {
	index := make(map[vecmath.Key]int)
	var buckets [][]int
	for _, m := range members {
		k := key(m)
		b, ok := index[k]
		if !ok {
			b = len(buckets)
			index[k] = b
			buckets = append(buckets, nil)
		}
		buckets[b] = append(buckets[b], m)
	}

	out := buckets[:0]
	for _, b := range buckets {
		if len(b) >= 2 {
			out = append(out, b)
		}
	}
	return out
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
