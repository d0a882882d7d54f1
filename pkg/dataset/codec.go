package dataset

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

// Codec errors.
var (
	ErrInvalidMagic       = errors.New("invalid dataset magic: expected 'BSHR'")
	ErrUnsupportedVersion = errors.New("unsupported dataset version")
	ErrTruncated          = errors.New("truncated dataset data")
	ErrStringTooLong      = errors.New("string exceeds 65535 bytes")
)

const magic = "BSHR"

// Channel flag bits.
const (
	flagNative  uint8 = 1 << 0
	flagGeneric uint8 = 1 << 1
)

// Version represents the dataset file version.
type Version struct {
	Major uint8
	Minor uint8
}

// CurrentVersion is written by Encode.
var CurrentVersion = Version{Major: 1, Minor: 0}

// String returns the version as "Major.Minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast returns true if version is >= major.minor.
func (v Version) AtLeast(major, minor uint8) bool {
	if v.Major > major {
		return true
	}
	return v.Major == major && v.Minor >= minor
}

// Encode writes ds in the binary dataset format.
func Encode(w io.Writer, ds *Dataset) error {
	bw := bufio.NewWriter(w)
	e := &encoder{w: bw}

	e.raw([]byte(magic))
	e.u8(CurrentVersion.Major)
	e.u8(CurrentVersion.Minor)
	e.str(ds.Name)
	e.str(ds.Origin)
	e.str(ds.DeformerID)
	e.u32(uint32(len(ds.Meshes)))

	for i := range ds.Meshes {
		e.mesh(&ds.Meshes[i])
	}

	if e.err != nil {
		return e.err
	}
	return bw.Flush()
}

// Marshal returns the binary encoding of ds.
func Marshal(ds *Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, ds); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Parse decodes a dataset from a byte slice.
func Parse(data []byte) (*Dataset, error) {
	if len(data) < len(magic)+2 {
		return nil, ErrTruncated
	}
	if string(data[:len(magic)]) != magic {
		return nil, ErrInvalidMagic
	}

	d := &decoder{r: bytes.NewReader(data[len(magic):])}
	ver := Version{Major: d.u8(), Minor: d.u8()}
	if ver.Major != CurrentVersion.Major {
		return nil, errors.Wrap(ErrUnsupportedVersion, ver.String())
	}

	ds := &Dataset{
		Name:       d.str(),
		Origin:     d.str(),
		DeformerID: d.str(),
	}
	meshCount := d.count()
	for i := 0; i < meshCount && d.err == nil; i++ {
		ds.Meshes = append(ds.Meshes, d.mesh())
	}

	if d.err != nil {
		return nil, d.err
	}
	return ds, nil
}

// Decode reads a complete dataset from r.
func Decode(r io.Reader) (*Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading dataset")
	}
	return Parse(data)
}

// Load reads a dataset file.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading dataset")
	}
	ds, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return ds, nil
}

// Save writes a dataset file.
func Save(path string, ds *Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating dataset file")
	}
	if err := Encode(f, ds); err != nil {
		f.Close()
		return errors.Wrapf(err, "encoding %s", path)
	}
	return f.Close()
}

type encoder struct {
	w   *bufio.Writer
	err error
	buf [8]byte
}

func (e *encoder) raw(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *encoder) u8(v uint8) {
	e.raw([]byte{v})
}

func (e *encoder) u16(v uint16) {
	binary.LittleEndian.PutUint16(e.buf[:2], v)
	e.raw(e.buf[:2])
}

func (e *encoder) u32(v uint32) {
	binary.LittleEndian.PutUint32(e.buf[:4], v)
	e.raw(e.buf[:4])
}

func (e *encoder) u64(v uint64) {
	binary.LittleEndian.PutUint64(e.buf[:8], v)
	e.raw(e.buf[:8])
}

func (e *encoder) f64(v float64) {
	e.u64(math.Float64bits(v))
}

func (e *encoder) str(s string) {
	if len(s) > math.MaxUint16 {
		if e.err == nil {
			e.err = errors.Wrapf(ErrStringTooLong, "%.32q...", s)
		}
		return
	}
	e.u16(uint16(len(s)))
	e.raw([]byte(s))
}

func (e *encoder) mesh(m *MeshRecord) {
	e.str(m.Name)
	e.u32(uint32(int32(m.VertexCount)))
	e.u64(m.VertexHash)
	e.u32(uint32(int32(m.ControlPointCount)))
	e.u32(uint32(len(m.Channels)))

	for _, ch := range m.Channels {
		e.str(ch.Name)

		var flags uint8
		if ch.Native != nil {
			flags |= flagNative
		}
		if ch.Frames != nil {
			flags |= flagGeneric
		}
		e.u8(flags)

		if ch.Native != nil {
			e.u32(uint32(len(ch.Native.Frames)))
			for _, f := range ch.Native.Frames {
				e.f64(f.Weight)
				e.sparse4(f.Points)
			}
		}
		if ch.Frames != nil {
			e.u32(uint32(len(ch.Frames)))
			for _, f := range ch.Frames {
				e.f64(f.Weight)
				e.sparse3(f.Vertices)
				e.sparse3(f.Normals)
				e.sparse3(f.Tangents)
			}
		}
	}
}

func (e *encoder) sparse3(s SparseVec3) {
	e.u32(uint32(len(s.Indices)))
	for i, idx := range s.Indices {
		e.u32(uint32(idx))
		for _, c := range s.Deltas[i] {
			e.f64(c)
		}
	}
}

func (e *encoder) sparse4(s SparseVec4) {
	e.u32(uint32(len(s.Indices)))
	for i, idx := range s.Indices {
		e.u32(uint32(idx))
		for _, c := range s.Deltas[i] {
			e.f64(c)
		}
	}
}

type decoder struct {
	r   *bytes.Reader
	err error
	buf [8]byte
}

func (d *decoder) read(n int) []byte {
	if d.err != nil {
		return d.buf[:n]
	}
	if _, err := io.ReadFull(d.r, d.buf[:n]); err != nil {
		d.err = ErrTruncated
	}
	return d.buf[:n]
}

func (d *decoder) u8() uint8 {
	return d.read(1)[0]
}

func (d *decoder) u16() uint16 {
	return binary.LittleEndian.Uint16(d.read(2))
}

func (d *decoder) u32() uint32 {
	return binary.LittleEndian.Uint32(d.read(4))
}

func (d *decoder) u64() uint64 {
	return binary.LittleEndian.Uint64(d.read(8))
}

func (d *decoder) f64() float64 {
	return math.Float64frombits(d.u64())
}

// count reads an element count and rejects counts that cannot fit in the
// remaining input, so corrupt headers never trigger huge allocations.
func (d *decoder) count() int {
	n := int(d.u32())
	if d.err == nil && n > d.r.Len() {
		d.err = ErrTruncated
		return 0
	}
	return n
}

func (d *decoder) str() string {
	n := int(d.u16())
	if d.err != nil {
		return ""
	}
	if n > d.r.Len() {
		d.err = ErrTruncated
		return ""
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		d.err = ErrTruncated
		return ""
	}
	return string(b)
}

func (d *decoder) mesh() MeshRecord {
	m := MeshRecord{
		Name:              d.str(),
		VertexCount:       int(int32(d.u32())),
		VertexHash:        d.u64(),
		ControlPointCount: int(int32(d.u32())),
	}

	channels := d.count()
	for i := 0; i < channels && d.err == nil; i++ {
		ch := Channel{Name: d.str()}
		flags := d.u8()

		if flags&flagNative != 0 {
			ch.Native = &NativeChannel{}
			frames := d.count()
			for j := 0; j < frames && d.err == nil; j++ {
				f := NativeFrame{Weight: d.f64()}
				f.Points = d.sparse4()
				ch.Native.Frames = append(ch.Native.Frames, f)
			}
		}
		if flags&flagGeneric != 0 {
			frames := d.count()
			ch.Frames = make([]Frame, 0, frames)
			for j := 0; j < frames && d.err == nil; j++ {
				f := Frame{Weight: d.f64()}
				f.Vertices = d.sparse3()
				f.Normals = d.sparse3()
				f.Tangents = d.sparse3()
				ch.Frames = append(ch.Frames, f)
			}
		}
		m.Channels = append(m.Channels, ch)
	}
	return m
}

func (d *decoder) sparse3() SparseVec3 {
	var s SparseVec3
	n := d.count()
	for i := 0; i < n && d.err == nil; i++ {
		s.Indices = append(s.Indices, int32(d.u32()))
		s.Deltas = append(s.Deltas, mgl64.Vec3{d.f64(), d.f64(), d.f64()})
	}
	return s
}

func (d *decoder) sparse4() SparseVec4 {
	var s SparseVec4
	n := d.count()
	for i := 0; i < n && d.err == nil; i++ {
		s.Indices = append(s.Indices, int32(d.u32()))
		s.Deltas = append(s.Deltas, mgl64.Vec4{d.f64(), d.f64(), d.f64(), d.f64()})
	}
	return s
}
