package blendshape

import (
	"context"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Faultbox/blendshare/pkg/vecmath"
)

// MergeDeltas replaces the deltas of every welding group whose members lie
// within tol of each other by the group mean. Groups wider than tol are left
// alone. deltas is modified in place and the number of merged groups is
// returned. Groups must be disjoint.
func MergeDeltas(ctx context.Context, deltas []mgl64.Vec4, groups [][]int, tol float64, par Parallelism) (int, error) {
	if len(groups) == 0 {
		return 0, nil
	}
	par = par.normalized()
	// Chunks count groups, not vertices.
	par.ChunkSize = max(par.ChunkSize/16, 1)

	chunks := (len(groups) + par.ChunkSize - 1) / par.ChunkSize
	merged := make([]int, chunks)

	err := forEachChunk(ctx, len(groups), par, func(lo, hi int) {
		count := 0
		for _, g := range groups[lo:hi] {
			if mergeGroup(deltas, g, tol) {
				count++
			}
		}
		merged[lo/par.ChunkSize] = count
	})
	if err != nil {
		return 0, err
	}

	total := 0
	for _, c := range merged {
		total += c
	}
	return total, nil
}

// mergeGroup averages one group. Groups that are already identical are
// counted as merged without touching the values.
func mergeGroup(deltas []mgl64.Vec4, group []int, tol float64) bool {
	if len(group) < 2 {
		return false
	}

	spread := 0.0
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			if d := vecmath.Distance4(deltas[group[i]], deltas[group[j]]); d > spread {
				spread = d
			}
		}
	}
	if spread > tol {
		return false
	}
	if spread == 0 {
		return true
	}

	var sum mgl64.Vec4
	for _, idx := range group {
		sum = sum.Add(deltas[idx])
	}
	n := float64(len(group))
	mean := mgl64.Vec4{sum[0] / n, sum[1] / n, sum[2] / n, sum[3] / n}
	for _, idx := range group {
		deltas[idx] = mean
	}
	return true
}
