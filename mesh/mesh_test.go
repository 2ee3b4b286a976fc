package mesh

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopology(t *testing.T) {
	tests := []struct {
		name           string
		m              *Mesh
		wantBoundary   int
		wantWatertight bool
		wantEuler      int
	}{
		{
			name:           "closed cube",
			m:              UnitCube(),
			wantWatertight: true,
			wantEuler:      2,
		},
		{
			name:         "cube with one face removed",
			m:            OpenBox(mgl64.Vec3{-0.5, -0.5, -0.5}, mgl64.Vec3{0.5, 0.5, 0.5}),
			wantBoundary: 4,
			wantEuler:    1,
		},
		{
			name: "single triangle",
			m: New(
				[]mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
				[][3]int{{0, 1, 2}},
			),
			wantBoundary: 3,
			wantEuler:    1,
		},
		{
			name:      "no faces",
			m:         New([]mgl64.Vec3{{0, 0, 0}}, nil),
			wantEuler: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantBoundary, tt.m.BoundaryEdges())
			assert.Equal(t, tt.wantWatertight, tt.m.IsWatertight())
			assert.Equal(t, tt.wantEuler, tt.m.EulerCharacteristic())
		})
	}
}

func TestNonManifoldEdge(t *testing.T) {
	// Three triangles sharing the edge 0-1.
	m := New(
		[]mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}},
		[][3]int{{0, 1, 2}, {1, 0, 3}, {0, 1, 4}},
	)
	topo := m.Topology()
	assert.Equal(t, 1, topo.NonManifoldEdges)
	assert.False(t, m.IsWatertight())
}

func TestValidate(t *testing.T) {
	require.NoError(t, UnitCube().Validate())

	bad := New([]mgl64.Vec3{{0, 0, 0}, {1, 0, 0}}, [][3]int{{0, 1, 2}})
	assert.Error(t, bad.Validate())

	neg := New([]mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}, [][3]int{{0, -1, 2}})
	assert.Error(t, neg.Validate())
}

func TestNormalizeToBBox(t *testing.T) {
	m := Box(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{2, 2, 2})
	got, err := m.NormalizeToBBox([6]float64{0, 0, 0, 2, 2, 2})
	require.NoError(t, err)

	min, max := got.Bounds()
	assert.Equal(t, mgl64.Vec3{-0.5, -0.5, -0.5}, min)
	assert.Equal(t, mgl64.Vec3{0.5, 0.5, 0.5}, max)

	// The receiver is left untouched.
	min, max = m.Bounds()
	assert.Equal(t, mgl64.Vec3{0, 0, 0}, min)
	assert.Equal(t, mgl64.Vec3{2, 2, 2}, max)
}

func TestNormalizeToBBoxNonCubic(t *testing.T) {
	m := Box(mgl64.Vec3{1, 1, 1}, mgl64.Vec3{3, 2, 1.5})
	got, err := m.NormalizeToBBox([6]float64{1, 1, 1, 3, 2, 1.5})
	require.NoError(t, err)

	min, max := got.Bounds()
	assert.InDelta(t, -0.5, min[0], 1e-12)
	assert.InDelta(t, 0.5, max[0], 1e-12)
	assert.InDelta(t, -0.25, min[1], 1e-12)
	assert.InDelta(t, 0.25, max[1], 1e-12)
	assert.InDelta(t, -0.125, min[2], 1e-12)
	assert.InDelta(t, 0.125, max[2], 1e-12)
}

func TestNormalizeToBBoxEmpty(t *testing.T) {
	_, err := UnitCube().NormalizeToBBox([6]float64{1, 1, 1, 1, 1, 1})
	assert.True(t, errors.Is(err, ErrEmptyBBox))
}

func TestToUnitCube(t *testing.T) {
	m := Box(mgl64.Vec3{10, -4, 3}, mgl64.Vec3{14, -2, 4})
	got := m.ToUnitCube()

	min, max := got.Bounds()
	assert.InDelta(t, -0.5, min[0], 1e-12)
	assert.InDelta(t, 0.5, max[0], 1e-12)
	assert.InDelta(t, -0.25, min[1], 1e-12)
	assert.InDelta(t, 0.25, max[1], 1e-12)
	assert.InDelta(t, -0.125, min[2], 1e-12)
	assert.InDelta(t, 0.125, max[2], 1e-12)
	assert.Equal(t, m.NumFaces(), got.NumFaces())
}

func TestFromTriangles(t *testing.T) {
	cube := UnitCube()
	var tris [][3]mgl64.Vec3
	for _, f := range cube.Faces {
		tris = append(tris, [3]mgl64.Vec3{cube.Vertices[f[0]], cube.Vertices[f[1]], cube.Vertices[f[2]]})
	}

	got := FromTriangles(tris)
	assert.Equal(t, 8, got.NumVertices())
	assert.Equal(t, 12, got.NumFaces())
	assert.True(t, got.IsWatertight())
}

func TestTransform(t *testing.T) {
	m := UnitCube()
	got := m.Transform(mgl64.Rotate3DZ(mgl64.DegToRad(90)), mgl64.Vec3{0, 0, 1})

	min, max := got.Bounds()
	assert.InDelta(t, 0.5, min[2], 1e-12)
	assert.InDelta(t, 1.5, max[2], 1e-12)
	assert.Equal(t, m.Vertices[0], mgl64.Vec3{-0.5, -0.5, -0.5})
}

func TestMeanTriangleQuality(t *testing.T) {
	equilateral := New(
		[]mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0.5, 0.8660254037844386, 0}},
		[][3]int{{0, 1, 2}},
	)
	assert.InDelta(t, 1.0, equilateral.MeanTriangleQuality(), 1e-9)

	sliver := New(
		[]mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0.5, 0.001, 0}},
		[][3]int{{0, 1, 2}},
	)
	assert.Less(t, sliver.MeanTriangleQuality(), 0.01)
	assert.Equal(t, 0.0, New(nil, nil).MeanTriangleQuality())
}

func TestSignedVolume(t *testing.T) {
	assert.InDelta(t, 1.0, UnitCube().SignedVolume(), 1e-12)
	assert.InDelta(t, 6.0, Box(mgl64.Vec3{1, 1, 1}, mgl64.Vec3{2, 3, 4}).SignedVolume(), 1e-12)

	flipped := UnitCube()
	for i, f := range flipped.Faces {
		flipped.Faces[i] = [3]int{f[0], f[2], f[1]}
	}
	assert.InDelta(t, -1.0, flipped.SignedVolume(), 1e-12)
}
