package mesh

import "github.com/go-gl/mathgl/mgl64"

// boxQuads lists the six faces of a box, counter-clockwise seen from
// outside. Corner c sits at (c&1, c>>1&1, c>>2&1).
var boxQuads = [6][4]int{
	{0, 2, 3, 1}, // -Z
	{4, 5, 7, 6}, // +Z
	{0, 4, 6, 2}, // -X
	{1, 3, 7, 5}, // +X
	{0, 1, 5, 4}, // -Y
	{2, 6, 7, 3}, // +Y
}

// Box returns a closed, outward-facing box spanning [min, max].
func Box(min, max mgl64.Vec3) *Mesh {
	return box(min, max, false)
}

// OpenBox returns the box spanning [min, max] with its +Z face removed,
// leaving a single square hole.
func OpenBox(min, max mgl64.Vec3) *Mesh {
	return box(min, max, true)
}

func box(min, max mgl64.Vec3, open bool) *Mesh {
	m := &Mesh{Vertices: make([]mgl64.Vec3, 8)}
	for c := range m.Vertices {
		for axis := 0; axis < 3; axis++ {
			if c>>axis&1 == 0 {
				m.Vertices[c][axis] = min[axis]
			} else {
				m.Vertices[c][axis] = max[axis]
			}
		}
	}
	for i, q := range boxQuads {
		if open && i == 1 {
			continue
		}
		m.Faces = append(m.Faces, [3]int{q[0], q[1], q[2]}, [3]int{q[0], q[2], q[3]})
	}
	return m
}

// UnitCube returns the closed box spanning [-0.5, 0.5]³.
func UnitCube() *Mesh {
	return Box(mgl64.Vec3{-0.5, -0.5, -0.5}, mgl64.Vec3{0.5, 0.5, 0.5})
}
