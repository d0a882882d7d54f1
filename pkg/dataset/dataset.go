// Package dataset defines the extracted blend shape dataset and its binary
// encoding.
package dataset

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// InvalidVertexCount marks a MeshRecord whose generic deltas could not be
// reconciled with the origin topology. Native deltas remain usable.
const InvalidVertexCount = -1

// DefaultDeformerID names the deformer that native application writes into.
const DefaultDeformerID = "+BlendShare"

// Validation errors.
var (
	ErrIndexOutOfRange = errors.New("sparse index out of range")
	ErrFrameOrder      = errors.New("frames are not in ascending weight order")
	ErrFrameWeight     = errors.New("frame weight outside [0,100]")
	ErrDuplicateName   = errors.New("duplicate channel name")
)

// Dataset is the result of one extraction run.
type Dataset struct {
	Name       string       // Display name, "<origin>-<source>" by default
	Origin     string       // Name of the origin scene the deltas are relative to
	DeformerID string       // Deformer that native application writes into
	Meshes     []MeshRecord // Records in extraction order
}

// Mesh returns the record for the named mesh, or nil.
func (d *Dataset) Mesh(name string) *MeshRecord {
	for i := range d.Meshes {
		if d.Meshes[i].Name == name {
			return &d.Meshes[i]
		}
	}
	return nil
}

// MeshRecord holds the channels extracted for one mesh.
type MeshRecord struct {
	Name              string
	VertexCount       int    // Imported vertex count, or InvalidVertexCount
	VertexHash        uint64 // Hash of imported rest positions, 0 when invalid
	ControlPointCount int    // Native control point count
	Channels          []Channel
}

// Valid reports whether the record carries a usable compatibility key.
func (r *MeshRecord) Valid() bool {
	return r.VertexCount != InvalidVertexCount
}

// Invalidate marks the record topology-invalid and drops its generic frames.
// Native data is kept.
func (r *MeshRecord) Invalidate() {
	r.VertexCount = InvalidVertexCount
	r.VertexHash = 0
	for i := range r.Channels {
		r.Channels[i].Frames = nil
	}
}

// ChannelNames returns channel names in application order.
func (r *MeshRecord) ChannelNames() []string {
	names := make([]string, len(r.Channels))
	for i, ch := range r.Channels {
		names[i] = ch.Name
	}
	return names
}

// Contains reports whether the record has a channel with the given name.
func (r *MeshRecord) Contains(name string) bool {
	return r.Channel(name) != nil
}

// Channel returns the named channel, or nil.
func (r *MeshRecord) Channel(name string) *Channel {
	for i := range r.Channels {
		if r.Channels[i].Name == name {
			return &r.Channels[i]
		}
	}
	return nil
}

// Validate checks the record invariants: unique channel names, frames in
// ascending weight order within [0,100], and every generic index below
// VertexCount. Native indices are checked against ControlPointCount.
func (r *MeshRecord) Validate() error {
	seen := make(map[string]bool, len(r.Channels))
	for _, ch := range r.Channels {
		if seen[ch.Name] {
			return errors.Wrapf(ErrDuplicateName, "mesh %q channel %q", r.Name, ch.Name)
		}
		seen[ch.Name] = true

		if err := checkWeights(generic(ch.Frames)); err != nil {
			return errors.Wrapf(err, "mesh %q channel %q", r.Name, ch.Name)
		}
		for i, f := range ch.Frames {
			for _, s := range []SparseVec3{f.Vertices, f.Normals, f.Tangents} {
				if r.Valid() && s.MaxIndex() >= r.VertexCount {
					return errors.Wrapf(ErrIndexOutOfRange, "mesh %q channel %q frame %d", r.Name, ch.Name, i)
				}
			}
		}

		if ch.Native == nil {
			continue
		}
		if err := checkWeights(native(ch.Native.Frames)); err != nil {
			return errors.Wrapf(err, "mesh %q native channel %q", r.Name, ch.Name)
		}
		for i, f := range ch.Native.Frames {
			if f.Points.MaxIndex() >= r.ControlPointCount {
				return errors.Wrapf(ErrIndexOutOfRange, "mesh %q native channel %q frame %d", r.Name, ch.Name, i)
			}
		}
	}
	return nil
}

// Channel is one named deformation with its native and generic forms.
type Channel struct {
	Name   string
	Native *NativeChannel // Full control point deltas, nil when unavailable
	Frames []Frame        // Generic per-vertex frames, ascending weight
}

// SortFrames orders generic and native frames by ascending weight.
// The sort is stable so equal weights keep extraction order.
func (c *Channel) SortFrames() {
	sort.SliceStable(c.Frames, func(i, j int) bool {
		return c.Frames[i].Weight < c.Frames[j].Weight
	})
	if c.Native != nil {
		sort.SliceStable(c.Native.Frames, func(i, j int) bool {
			return c.Native.Frames[i].Weight < c.Native.Frames[j].Weight
		})
	}
}

// NativeChannel holds control point deltas for lossless re-export.
type NativeChannel struct {
	Frames []NativeFrame
}

// NativeFrame is one target shape expressed as control point deltas.
type NativeFrame struct {
	Weight float64
	Points SparseVec4
}

// Frame is one generic blend shape frame.
type Frame struct {
	Weight   float64 // Interpolation percentage in [0,100]
	Vertices SparseVec3
	Normals  SparseVec3
	Tangents SparseVec3
}

type weighted interface {
	Len() int
	Weight(i int) float64
}

type generic []Frame

func (g generic) Len() int { return len(g) }
func (g generic) Weight(i int) float64 { return g[i].Weight }

type native []NativeFrame

func (n native) Len() int { return len(n) }
func (n native) Weight(i int) float64 { return n[i].Weight }

func checkWeights(w weighted) error {
	prev := math.Inf(-1)
	for i := 0; i < w.Len(); i++ {
		weight := w.Weight(i)
		if weight < 0 || weight > 100 || math.IsNaN(weight) {
			return errors.Wrapf(ErrFrameWeight, "frame %d weight %g", i, weight)
		}
		if weight < prev {
			return errors.Wrapf(ErrFrameOrder, "frame %d weight %g after %g", i, weight, prev)
		}
		prev = weight
	}
	return nil
}
