// Package mesh represents indexed triangle meshes and the normalizations
// applied to them before they are made watertight.
package mesh

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Mesh is an indexed triangle mesh. Every face index must be less than
// len(Vertices).
//
// Pipeline stages never modify a Mesh they are given; they return a new one.
type Mesh struct {
	Vertices []mgl64.Vec3
	Faces    [][3]int
}

// New returns a mesh over the given vertices and faces.
func New(vertices []mgl64.Vec3, faces [][3]int) *Mesh {
	return &Mesh{Vertices: vertices, Faces: faces}
}

// FromTriangles builds an indexed mesh from a triangle soup, welding
// vertices that have bit-identical positions.
func FromTriangles(tris [][3]mgl64.Vec3) *Mesh {
	m := &Mesh{Faces: make([][3]int, 0, len(tris))}
	index := map[mgl64.Vec3]int{}
	for _, tri := range tris {
		var f [3]int
		for i, v := range tri {
			idx, ok := index[v]
			if !ok {
				idx = len(m.Vertices)
				index[v] = idx
				m.Vertices = append(m.Vertices, v)
			}
			f[i] = idx
		}
		m.Faces = append(m.Faces, f)
	}
	return m
}

// NumVertices returns the number of vertices.
func (m *Mesh) NumVertices() int { return len(m.Vertices) }

// NumFaces returns the number of triangles.
func (m *Mesh) NumFaces() int { return len(m.Faces) }

// Validate checks that every face references an existing vertex.
func (m *Mesh) Validate() error {
	n := len(m.Vertices)
	for i, f := range m.Faces {
		for _, idx := range f {
			if idx < 0 || idx >= n {
				return fmt.Errorf("face %v references vertex %v, mesh has %v vertices", i, idx, n)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	c := &Mesh{
		Vertices: make([]mgl64.Vec3, len(m.Vertices)),
		Faces:    make([][3]int, len(m.Faces)),
	}
	copy(c.Vertices, m.Vertices)
	copy(c.Faces, m.Faces)
	return c
}

// Bounds returns the axis-aligned bounding box of the vertices.
// An empty mesh returns zero vectors.
func (m *Mesh) Bounds() (min, max mgl64.Vec3) {
	if len(m.Vertices) == 0 {
		return min, max
	}
	min, max = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		for i := 0; i < 3; i++ {
			min[i] = math.Min(min[i], v[i])
			max[i] = math.Max(max[i], v[i])
		}
	}
	return min, max
}

// Transform returns a new mesh with every vertex mapped to r·v + t.
// Faces are shared with the receiver since they are never modified.
func (m *Mesh) Transform(r mgl64.Mat3, t mgl64.Vec3) *Mesh {
	out := &Mesh{Vertices: make([]mgl64.Vec3, len(m.Vertices)), Faces: m.Faces}
	for i, v := range m.Vertices {
		out.Vertices[i] = r.Mul3x1(v).Add(t)
	}
	return out
}

// ToUnitCube returns a copy of the mesh centered at the origin and scaled
// uniformly so that its longest side spans [-0.5, 0.5].
func (m *Mesh) ToUnitCube() *Mesh {
	out := m.Clone()
	if len(out.Vertices) == 0 {
		return out
	}
	min, max := m.Bounds()
	center := min.Add(max).Mul(0.5)
	extent := max.Sub(min)
	scale := math.Max(extent[0], math.Max(extent[1], extent[2]))
	if scale == 0 {
		scale = 1
	}
	for i, v := range out.Vertices {
		out.Vertices[i] = v.Sub(center).Mul(1 / scale)
	}
	return out
}

// ErrEmptyBBox is returned when a bounding box has no positive extent.
var ErrEmptyBBox = errors.New("bounding box has no positive extent")

// NormalizeToBBox returns a copy of the mesh translated and scaled so that
// the box [x0,y0,z0,x1,y1,z1] maps onto [-0.5, 0.5] along its longest side,
// centered at the origin.
func (m *Mesh) NormalizeToBBox(bbox [6]float64) (*Mesh, error) {
	lo := mgl64.Vec3{bbox[0], bbox[1], bbox[2]}
	hi := mgl64.Vec3{bbox[3], bbox[4], bbox[5]}
	dims := hi.Sub(lo)
	scale := math.Max(dims[0], math.Max(dims[1], dims[2]))
	if scale <= 0 {
		return nil, fmt.Errorf("bbox %v: %w", bbox, ErrEmptyBBox)
	}
	shift := dims.Mul(0.5).Add(lo)

	out := m.Clone()
	for i, v := range out.Vertices {
		out.Vertices[i] = v.Sub(shift).Mul(1 / scale)
	}
	return out, nil
}

// MeanTriangleQuality returns the mean of 4·√3·area / Σ(edge²) over all
// non-degenerate faces. An equilateral triangle scores 1 and slivers tend
// to 0. A mesh without faces scores 0.
func (m *Mesh) MeanTriangleQuality() float64 {
	var sum float64
	var n int
	for _, f := range m.Faces {
		a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
		ab, bc, ca := b.Sub(a), c.Sub(b), a.Sub(c)
		denom := ab.Dot(ab) + bc.Dot(bc) + ca.Dot(ca)
		if denom == 0 {
			continue
		}
		area := 0.5 * ab.Cross(c.Sub(a)).Len()
		sum += 4 * math.Sqrt(3) * area / denom
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// SignedVolume returns the volume enclosed by a closed mesh. It is
// positive when the triangles face outward.
func (m *Mesh) SignedVolume() float64 {
	var v float64
	for _, f := range m.Faces {
		a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
		v += a.Dot(b.Cross(c)) / 6
	}
	return v
}
