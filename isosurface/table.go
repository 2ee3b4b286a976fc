package isosurface

import "fmt"

// Corner c of a cube sits at offset (c&1, c>>1&1, c>>2&1).

// cubeEdge joins corners a < b along axis.
type cubeEdge struct {
	a, b, axis int
}

var (
	edges     [12]cubeEdge
	edgeIndex [8][8]int
	// edgeFaces holds, per edge, a bitmask of the two cube faces containing
	// it. Face (axis d, side s) is bit 2d+s.
	edgeFaces [12]uint8
	// cases lists, per corner configuration, the vertex loops of the
	// surface inside one cube as edge indices. Each loop is rotated so that
	// a fan from its first element never runs along a cube face.
	cases [256][][]int
)

func init() {
	n := 0
	for axis := 0; axis < 3; axis++ {
		for a := 0; a < 8; a++ {
			if a>>axis&1 != 0 {
				continue
			}
			b := a | 1<<axis
			edges[n] = cubeEdge{a: a, b: b, axis: axis}
			edgeIndex[a][b], edgeIndex[b][a] = n, n
			for d := 0; d < 3; d++ {
				if d != axis {
					edgeFaces[n] |= 1 << (2*d + a>>d&1)
				}
			}
			n++
		}
	}
	for c := range cases {
		cases[c] = buildCase(c)
	}
}

// faceCorners returns the corners of face (d, s) counter-clockwise as seen
// from outside the cube.
func faceCorners(d, s int) [4]int {
	u, v := (d+1)%3, (d+2)%3
	var c [4]int
	for i, uv := range [4][2]int{{0, 0}, {1, 0}, {1, 1}, {0, 1}} {
		c[i] = s<<d | uv[0]<<u | uv[1]<<v
	}
	if s == 0 {
		c[1], c[3] = c[3], c[1]
	}
	return c
}

// buildCase links surface crossings into loops. On every face, walking
// the corners counter-clockwise from outside, each crossing into the
// inside is joined to the next crossing back out. A shared face is walked
// in opposite directions by its two cubes, so both derive the same
// segments and saddle faces always keep their inside corners apart.
func buildCase(config int) [][]int {
	inside := func(c int) bool { return config>>c&1 == 1 }

	var next [12]int
	for i := range next {
		next[i] = -1
	}
	type crossing struct {
		edge     int
		entering bool
	}
	for d := 0; d < 3; d++ {
		for s := 0; s < 2; s++ {
			p := faceCorners(d, s)
			var cs []crossing
			for i := range p {
				a, b := p[i], p[(i+1)%4]
				if inside(a) != inside(b) {
					cs = append(cs, crossing{edge: edgeIndex[a][b], entering: inside(b)})
				}
			}
			// Crossings alternate around the face.
			for i, c := range cs {
				if c.entering {
					next[c.edge] = cs[(i+1)%len(cs)].edge
				}
			}
		}
	}

	var loops [][]int
	var seen [12]bool
	for e := range next {
		if next[e] < 0 || seen[e] {
			continue
		}
		var loop []int
		for x := e; !seen[x]; x = next[x] {
			seen[x] = true
			loop = append(loop, x)
		}
		loops = append(loops, fanOrder(loop, config))
	}
	return loops
}

func fanOrder(loop []int, config int) []int {
	n := len(loop)
	for r := 0; r < n; r++ {
		ok := true
		for i := 2; i < n-1; i++ {
			if edgeFaces[loop[r]]&edgeFaces[loop[(r+i)%n]] != 0 {
				ok = false
				break
			}
		}
		if ok {
			return append(loop[r:len(loop):len(loop)], loop[:r]...)
		}
	}
	panic(fmt.Sprintf("isosurface: no fan triangulation for case %08b loop %v", config, loop))
}
