package blendshape

import (
	"reflect"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestResolveWeldingGroups(t *testing.T) {
	rest := []mgl64.Vec4{
		{0, 0, 0, 1}, // 0
		{1, 0, 0, 1}, // 1
		{0, 0, 0, 1}, // 2
		{1, 0, 0, 1}, // 3
		{0, 0, 0, 1}, // 4
		{5, 5, 5, 1}, // 5
	}

	tests := []struct {
		name   string
		shapes [][]mgl64.Vec4
		want   [][]int
	}{
		{
			name: "rest only",
			want: [][]int{{0, 2, 4}, {1, 3}},
		},
		{
			name:   "identical shape keeps groups",
			shapes: [][]mgl64.Vec4{rest},
			want:   [][]int{{0, 2, 4}, {1, 3}},
		},
		{
			name: "shape splits a group",
			shapes: [][]mgl64.Vec4{
				offsetShape(rest, map[int]mgl64.Vec4{4: {0, 1, 0, 0}}),
			},
			want: [][]int{{0, 2}, {1, 3}},
		},
		{
			name: "singletons are dropped",
			shapes: [][]mgl64.Vec4{
				offsetShape(rest, map[int]mgl64.Vec4{3: {0, 1, 0, 0}}),
				offsetShape(rest, map[int]mgl64.Vec4{0: {0, 1, 0, 0}}),
			},
			want: [][]int{{2, 4}},
		},
		{
			name: "groups never re-merge",
			shapes: [][]mgl64.Vec4{
				offsetShape(rest, map[int]mgl64.Vec4{2: {0, 1, 0, 0}}),
				rest,
			},
			want: [][]int{{0, 4}, {1, 3}},
		},
		{
			name:   "mismatched shape ignored",
			shapes: [][]mgl64.Vec4{rest[:2]},
			want:   [][]int{{0, 2, 4}, {1, 3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveWeldingGroups(rest, tt.shapes)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestResolveWeldingGroupsDisjoint(t *testing.T) {
	rest := make([]mgl64.Vec4, 200)
	for i := range rest {
		rest[i] = mgl64.Vec4{float64(i % 7), float64(i % 3), 0, 1}
	}
	shape := append([]mgl64.Vec4(nil), rest...)
	for i := range shape {
		shape[i][2] = float64(i % 2)
	}

	seen := make(map[int]bool)
	for _, g := range ResolveWeldingGroups(rest, [][]mgl64.Vec4{shape}) {
		if len(g) < 2 {
			t.Errorf("group %v has fewer than two members", g)
		}
		for _, idx := range g {
			if seen[idx] {
				t.Errorf("index %d appears in more than one group", idx)
			}
			seen[idx] = true
			if rest[idx] != rest[g[0]] || shape[idx] != shape[g[0]] {
				t.Errorf("index %d does not match group leader %d", idx, g[0])
			}
		}
	}
}

func TestResolveWeldingGroupsNone(t *testing.T) {
	if got := ResolveWeldingGroups(seamPoints()[:3], nil); len(got) != 0 {
		t.Errorf("expected no groups, got %v", got)
	}
}
