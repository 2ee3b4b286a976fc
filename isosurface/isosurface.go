// Package isosurface extracts closed triangle meshes from TSDF volumes
// with marching cubes.
package isosurface

import (
	"errors"
	"fmt"

	"github.com/gmlewis/watertight/mesh"
	"github.com/gmlewis/watertight/tsdf"
	"github.com/go-gl/mathgl/mgl64"
)

// PadValue fills the shell Pad adds around a volume. It lies far outside
// any surface.
const PadValue = 1e6

// ErrEmptySurface is returned when no voxel lies inside the surface.
var ErrEmptySurface = errors.New("volume contains no surface")

// Grid is a dense scalar field, x fastest.
type Grid struct {
	NX, NY, NZ int
	Data       []float32
}

// At returns the value at (i, j, k).
func (g *Grid) At(i, j, k int) float32 { return g.Data[i+g.NX*(j+g.NY*k)] }

// Pad returns the volume grown by one voxel on every side, the new voxels
// holding PadValue.
func Pad(vol *tsdf.Volume) *Grid {
	r := vol.Resolution
	n := r + 2
	g := &Grid{NX: n, NY: n, NZ: n, Data: make([]float32, n*n*n)}
	for i := range g.Data {
		g.Data[i] = PadValue
	}
	for k := 0; k < r; k++ {
		for j := 0; j < r; j++ {
			row := vol.Data[vol.Index(0, j, k) : vol.Index(0, j, k)+r]
			copy(g.Data[1+n*(j+1+n*(k+1)):], row)
		}
	}
	return g
}

// Extract returns the zero level set of vol as a closed mesh with
// outward-facing triangles. Vertex p of the padded grid maps to
// (p - 1)/Resolution - 0.5.
func Extract(vol *tsdf.Volume) (*mesh.Mesh, error) {
	if vol == nil || vol.Resolution <= 0 || len(vol.Data) != vol.Resolution*vol.Resolution*vol.Resolution {
		return nil, fmt.Errorf("Extract: malformed volume")
	}
	m := March(Pad(vol))
	if m.NumFaces() == 0 {
		return nil, fmt.Errorf("Extract: %w", ErrEmptySurface)
	}

	scale := 1 / float64(vol.Resolution)
	for i, v := range m.Vertices {
		m.Vertices[i] = v.Sub(mgl64.Vec3{1, 1, 1}).Mul(scale).Sub(mgl64.Vec3{0.5, 0.5, 0.5})
	}
	return m, nil
}

// March triangulates the surface between negative (inside) and positive
// values of g. Vertices are in grid index coordinates. The result is closed
// whenever every boundary sample of g is positive.
func March(g *Grid) *mesh.Mesh {
	m := &mesh.Mesh{}
	// One vertex per grid edge, keyed by 3·(index of its lower end) + axis.
	vertexOf := map[int]int{}
	vertex := func(x, y, z, e int) int {
		ce := edges[e]
		x0, y0, z0 := x+ce.a&1, y+ce.a>>1&1, z+ce.a>>2&1
		key := 3*(x0+g.NX*(y0+g.NY*z0)) + ce.axis
		if idx, ok := vertexOf[key]; ok {
			return idx
		}

		x1, y1, z1 := x+ce.b&1, y+ce.b>>1&1, z+ce.b>>2&1
		fa, fb := -float64(g.At(x0, y0, z0)), -float64(g.At(x1, y1, z1))
		// Keep vertices strictly inside their edge so that distinct edges
		// never produce coincident points.
		t := mgl64.Clamp(fa/(fa-fb), 1e-6, 1-1e-6)
		p := mgl64.Vec3{float64(x0), float64(y0), float64(z0)}
		p[ce.axis] += t

		idx := len(m.Vertices)
		m.Vertices = append(m.Vertices, p)
		vertexOf[key] = idx
		return idx
	}

	var ids []int
	for z := 0; z+1 < g.NZ; z++ {
		for y := 0; y+1 < g.NY; y++ {
			for x := 0; x+1 < g.NX; x++ {
				config := 0
				for c := 0; c < 8; c++ {
					// Inside where the negated field is positive.
					if g.At(x+c&1, y+c>>1&1, z+c>>2&1) < 0 {
						config |= 1 << c
					}
				}
				for _, loop := range cases[config] {
					ids = ids[:0]
					for _, e := range loop {
						ids = append(ids, vertex(x, y, z, e))
					}
					for i := 1; i+1 < len(ids); i++ {
						m.Faces = append(m.Faces, [3]int{ids[0], ids[i], ids[i+1]})
					}
				}
			}
		}
	}
	return m
}
