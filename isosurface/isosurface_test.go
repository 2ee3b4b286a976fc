package isosurface

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/gmlewis/watertight/mesh"
	"github.com/gmlewis/watertight/tsdf"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newVolume(t testing.TB, res int, f func(c mgl64.Vec3) float64) *tsdf.Volume {
	vol, err := tsdf.NewVolume(res, 3)
	require.NoError(t, err)
	for k := 0; k < res; k++ {
		for j := 0; j < res; j++ {
			for i := 0; i < res; i++ {
				d := mgl64.Clamp(f(vol.Center(i, j, k)), -vol.Truncation, vol.Truncation)
				vol.Data[vol.Index(i, j, k)] = float32(d)
			}
		}
	}
	return vol
}

// orientable reports whether every directed edge is used exactly once.
func orientable(m *mesh.Mesh) bool {
	seen := map[[2]int]bool{}
	for _, f := range m.Faces {
		for i := 0; i < 3; i++ {
			e := [2]int{f[i], f[(i+1)%3]}
			if seen[e] {
				return false
			}
			seen[e] = true
		}
	}
	return true
}

func TestTable(t *testing.T) {
	assert.Empty(t, cases[0])
	assert.Empty(t, cases[255])
	for c := 1; c < 255; c++ {
		var n int
		for _, loop := range cases[c] {
			assert.GreaterOrEqual(t, len(loop), 3, "case %08b", c)
			n += len(loop)
		}
		// Every edge joining an inside and an outside corner appears once.
		var crossing int
		for _, e := range edges {
			if c>>e.a&1 != c>>e.b&1 {
				crossing++
			}
		}
		assert.Equal(t, crossing, n, "case %08b", c)
	}
}

func TestExtractSphere(t *testing.T) {
	const radius = 0.3
	vol := newVolume(t, 24, func(c mgl64.Vec3) float64 { return c.Len() - radius })

	m, err := Extract(vol)
	require.NoError(t, err)
	assert.True(t, m.IsWatertight())
	assert.True(t, orientable(m))
	assert.Equal(t, 2, m.EulerCharacteristic())
	assert.Greater(t, m.SignedVolume(), 0.0, "triangles must face outward")

	for _, v := range m.Vertices {
		assert.InDelta(t, radius, v.Len(), 1.5*vol.VoxelSize)
	}
}

func TestExtractSingleVoxel(t *testing.T) {
	vol := newVolume(t, 3, func(c mgl64.Vec3) float64 {
		if c.Len() < 1e-9 {
			return -1
		}
		return 1
	})

	m, err := Extract(vol)
	require.NoError(t, err)
	assert.True(t, m.IsWatertight())
	assert.Equal(t, 6, m.NumVertices())
	assert.Equal(t, 8, m.NumFaces())
	assert.Greater(t, m.SignedVolume(), 0.0)
}

func TestExtractFullVolume(t *testing.T) {
	vol := newVolume(t, 4, func(mgl64.Vec3) float64 { return -1 })

	m, err := Extract(vol)
	require.NoError(t, err)
	assert.True(t, m.IsWatertight())
	assert.Equal(t, 2, m.EulerCharacteristic())

	min, max := m.Bounds()
	for i := 0; i < 3; i++ {
		assert.GreaterOrEqual(t, min[i], -0.5-vol.VoxelSize)
		assert.LessOrEqual(t, max[i], 0.5)
	}
}

func TestExtractEmpty(t *testing.T) {
	vol, err := tsdf.NewVolume(4, 2)
	require.NoError(t, err)
	_, err = Extract(vol)
	assert.True(t, errors.Is(err, ErrEmptySurface))

	_, err = Extract(&tsdf.Volume{Resolution: 2, Data: make([]float32, 3)})
	assert.Error(t, err)
}

func TestPad(t *testing.T) {
	vol, err := tsdf.NewVolume(2, 1)
	require.NoError(t, err)
	for i := range vol.Data {
		vol.Data[i] = float32(i)
	}

	g := Pad(vol)
	require.Equal(t, 4, g.NX)
	for k := 0; k < 4; k++ {
		for j := 0; j < 4; j++ {
			for i := 0; i < 4; i++ {
				name := fmt.Sprintf("(%v, %v, %v)", i, j, k)
				if i == 0 || j == 0 || k == 0 || i == 3 || j == 3 || k == 3 {
					assert.Equal(t, float32(PadValue), g.At(i, j, k), name)
					continue
				}
				assert.Equal(t, vol.At(i-1, j-1, k-1), g.At(i, j, k), name)
			}
		}
	}
}

func TestExtractRandomFieldsAreClosed(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		res := rapid.IntRange(1, 5).Draw(rt, "resolution")
		vol, err := tsdf.NewVolume(res, 2)
		if err != nil {
			rt.Fatal(err)
		}
		for i := range vol.Data {
			vol.Data[i] = float32(rapid.Float64Range(-vol.Truncation, vol.Truncation).Draw(rt, "d"))
		}

		m, err := Extract(vol)
		if errors.Is(err, ErrEmptySurface) {
			return
		}
		if err != nil {
			rt.Fatal(err)
		}
		topo := m.Topology()
		if topo.BoundaryEdges != 0 || topo.NonManifoldEdges != 0 {
			rt.Fatalf("topology %+v", topo)
		}
		if !orientable(m) {
			rt.Fatal("inconsistent triangle orientation")
		}
		for _, v := range m.Vertices {
			for i := 0; i < 3; i++ {
				if math.IsNaN(v[i]) || v[i] < -0.5-vol.VoxelSize || v[i] > 0.5 {
					rt.Fatalf("vertex %v outside the padded cube", v)
				}
			}
		}
	})
}
