package mesh

// Edge is an undirected mesh edge with Edge[0] <= Edge[1].
type Edge [2]int

func newEdge(a, b int) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{a, b}
}

// EdgeCounts returns how many faces use each undirected edge.
func (m *Mesh) EdgeCounts() map[Edge]int {
	counts := make(map[Edge]int, len(m.Faces)*3/2)
	for _, f := range m.Faces {
		for j := 0; j < 3; j++ {
			counts[newEdge(f[j], f[(j+1)%3])]++
		}
	}
	return counts
}

// Topology summarizes the edge structure of a mesh.
type Topology struct {
	Edges            int
	BoundaryEdges    int // used by exactly one face
	NonManifoldEdges int // used by more than two faces
}

// Topology counts boundary and non-manifold edges.
func (m *Mesh) Topology() Topology {
	counts := m.EdgeCounts()
	t := Topology{Edges: len(counts)}
	for _, n := range counts {
		switch {
		case n == 1:
			t.BoundaryEdges++
		case n > 2:
			t.NonManifoldEdges++
		}
	}
	return t
}

// BoundaryEdges returns the number of edges used by exactly one face.
func (m *Mesh) BoundaryEdges() int {
	return m.Topology().BoundaryEdges
}

// IsWatertight reports whether the mesh has faces and every edge is shared
// by exactly two of them.
func (m *Mesh) IsWatertight() bool {
	if len(m.Faces) == 0 {
		return false
	}
	t := m.Topology()
	return t.BoundaryEdges == 0 && t.NonManifoldEdges == 0
}

// EulerCharacteristic returns V - E + F.
func (m *Mesh) EulerCharacteristic() int {
	return len(m.Vertices) - len(m.EdgeCounts()) + len(m.Faces)
}
