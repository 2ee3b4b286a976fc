package tsdf

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/gmlewis/watertight/camera"
	"github.com/gmlewis/watertight/depth"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var wideIntrinsics = camera.Intrinsics{Fx: 16, Fy: 16, Cx: 32, Cy: 32, Width: 64, Height: 64}

func constantMap(in camera.Intrinsics, d float64) *depth.Map {
	m := depth.NewMap(in.Width, in.Height)
	for i := range m.Data {
		m.Data[i] = d
	}
	return m
}

func TestFusePlane(t *testing.T) {
	// A plane through the origin facing the camera.
	view := camera.View{Direction: mgl64.Vec3{0, 0, 1}, Rotation: mgl64.Ident3()}
	dm := constantMap(wideIntrinsics, camera.Distance)

	vol, err := Fuse(context.Background(), []*depth.Map{dm}, []camera.View{view}, wideIntrinsics, Params{Resolution: 16, TruncationFactor: 3})
	require.NoError(t, err)
	assert.Equal(t, 16, vol.Resolution)
	assert.InDelta(t, 3.0/16, vol.Truncation, 1e-12)

	for k := 0; k < 16; k++ {
		for j := 0; j < 16; j++ {
			for i := 0; i < 16; i++ {
				z := vol.Center(i, j, k)[2]
				want := mgl64.Clamp(-z, -vol.Truncation, vol.Truncation)
				assert.InDelta(t, want, float64(vol.At(i, j, k)), 1e-6, "voxel (%v, %v, %v)", i, j, k)
			}
		}
	}
}

func TestFuseUnobserved(t *testing.T) {
	// Every voxel projects left of the image.
	in := wideIntrinsics
	in.Cx = -1000
	views, err := camera.Sample(3)
	require.NoError(t, err)
	maps := []*depth.Map{
		constantMap(in, 0.5),
		constantMap(in, 0.5),
		constantMap(in, 0.5),
	}

	vol, err := Fuse(context.Background(), maps, views, in, Params{Resolution: 8, TruncationFactor: 2, Workers: 2})
	require.NoError(t, err)
	for i, d := range vol.Data {
		require.Equal(t, float32(vol.Truncation), d, "voxel %v", i)
	}
	assert.Equal(t, 0, vol.Inside())
}

func TestFuseBackgroundCarves(t *testing.T) {
	// A wall at world z = -0.5 hides everything behind it from the
	// first view. The second view sees only background.
	front := camera.View{Direction: mgl64.Vec3{0, 0, -1}, Rotation: mgl64.Ident3()}
	side := camera.View{Direction: mgl64.Vec3{1, 0, 0}, Rotation: mgl64.Rotate3DY(math.Pi / 2)}
	wall := constantMap(wideIntrinsics, 0.5)
	background := depth.NewMap(wideIntrinsics.Width, wideIntrinsics.Height)
	p := Params{Resolution: 16, TruncationFactor: 3}

	hidden, err := Fuse(context.Background(), []*depth.Map{wall}, []camera.View{front}, wideIntrinsics, p)
	require.NoError(t, err)
	assert.Equal(t, float32(-hidden.Truncation), hidden.At(8, 8, 14))

	carved, err := Fuse(context.Background(), []*depth.Map{wall, background}, []camera.View{front, side}, wideIntrinsics, p)
	require.NoError(t, err)
	assert.Equal(t, float32(carved.Truncation), carved.At(8, 8, 14))
	assert.Equal(t, float32(carved.Truncation), carved.At(3, 12, 10))

	// Voxels in front of the wall keep their distance to it.
	z := carved.Center(8, 8, 0)[2]
	assert.InDelta(t, (-0.5-z+carved.Truncation)/2, float64(carved.At(8, 8, 0)), 1e-6)
}

func TestAccumulator(t *testing.T) {
	acc := NewAccumulator(2, 0.5)
	acc.Add(0, 0.2)
	acc.Add(0, 2) // clamped to 0.5
	acc.Add(1, -3)
	acc.Add(1, -4)
	acc.Add(2, -0.5)

	visible, hidden := acc.Observations(1)
	assert.Equal(t, 0, visible)
	assert.Equal(t, 2, hidden)

	vol := acc.Volume()
	assert.InDelta(t, 0.35, vol.Data[0], 1e-6)
	assert.InDelta(t, -0.5, vol.Data[1], 1e-6)
	assert.InDelta(t, -0.5, vol.Data[2], 1e-6)
	assert.InDelta(t, 0.5, vol.Data[3], 1e-6)
}

func TestAccumulatorMerge(t *testing.T) {
	a := NewAccumulator(2, 0.5)
	b := NewAccumulator(2, 0.5)
	whole := NewAccumulator(2, 0.5)
	for i, d := range []float64{0.1, -0.2, -1, 0.3} {
		a.Add(i, d)
		whole.Add(i, d)
	}
	for i, d := range []float64{0.4, -0.9, 0.2, 0.0} {
		b.Add(i, d)
		whole.Add(i, d)
	}
	require.NoError(t, a.Merge(b))
	assert.Equal(t, 0.0, a.Volume().MaxAbsDiff(whole.Volume()))

	assert.Error(t, a.Merge(NewAccumulator(3, 0.5)))
	assert.Error(t, a.Merge(NewAccumulator(2, 0.25)))
}

func TestFuseErrors(t *testing.T) {
	ctx := context.Background()
	views, err := camera.Sample(2)
	require.NoError(t, err)
	dm := constantMap(wideIntrinsics, 1)

	_, err = Fuse(ctx, []*depth.Map{dm}, views, wideIntrinsics, Params{Resolution: 8, TruncationFactor: 1})
	assert.Error(t, err, "count mismatch")

	_, err = Fuse(ctx, []*depth.Map{dm, dm}, views, wideIntrinsics, Params{Resolution: 0, TruncationFactor: 1})
	assert.Error(t, err, "zero resolution")

	_, err = Fuse(ctx, []*depth.Map{dm, depth.NewMap(3, 3)}, views, wideIntrinsics, Params{Resolution: 8, TruncationFactor: 1})
	assert.Error(t, err, "wrong map size")

	boom := errors.New("boom")
	_, err = Fuse(ctx, []*depth.Map{dm, dm}, views, wideIntrinsics, Params{Resolution: 8, TruncationFactor: 1, Kernel: failingKernel{boom}})
	assert.ErrorIs(t, err, boom)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = Fuse(cancelled, []*depth.Map{dm, dm}, views, wideIntrinsics, Params{Resolution: 8, TruncationFactor: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

type failingKernel struct{ err error }

func (f failingKernel) Integrate(acc *Accumulator, m *depth.Map, v camera.View, in camera.Intrinsics) error {
	return f.err
}

func TestFuseOrderIndependent(t *testing.T) {
	in := camera.Intrinsics{Fx: 8, Fy: 8, Cx: 4, Cy: 4, Width: 8, Height: 8}
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "views")
		views, err := camera.Sample(n)
		if err != nil {
			rt.Fatal(err)
		}
		maps := make([]*depth.Map, n)
		for i := range maps {
			maps[i] = depth.NewMap(in.Width, in.Height)
			for p := range maps[i].Data {
				if rapid.Bool().Draw(rt, "hit") {
					maps[i].Data[p] = rapid.Float64Range(0.25, 1.75).Draw(rt, "depth")
				}
			}
		}

		order := rapid.Permutation(identity(n)).Draw(rt, "order")
		permMaps := make([]*depth.Map, n)
		permViews := make([]camera.View, n)
		for i, j := range order {
			permMaps[i], permViews[i] = maps[j], views[j]
		}

		p := Params{Resolution: 6, TruncationFactor: 2}
		want, err := Fuse(context.Background(), maps, views, in, p)
		if err != nil {
			rt.Fatal(err)
		}
		p.Workers = rapid.IntRange(1, 4).Draw(rt, "workers")
		got, err := Fuse(context.Background(), permMaps, permViews, in, p)
		if err != nil {
			rt.Fatal(err)
		}
		if diff := got.MaxAbsDiff(want); diff > 1e-6 {
			rt.Fatalf("permuted fusion differs by %v", diff)
		}
	})
}

func identity(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}

func TestVolumeHelpers(t *testing.T) {
	vol, err := NewVolume(4, 2)
	require.NoError(t, err)
	assert.Equal(t, 64, len(vol.Data))
	assert.Equal(t, 1+4*(2+4*3), vol.Index(1, 2, 3))
	assert.Equal(t, mgl64.Vec3{-0.375, -0.375, -0.375}, vol.Center(0, 0, 0))
	assert.Equal(t, mgl64.Vec3{0.375, 0.375, 0.375}, vol.Center(3, 3, 3))
	assert.True(t, math.IsInf(vol.MaxAbsDiff(&Volume{Resolution: 2}), 1))

	_, err = NewVolume(4, 0)
	assert.Error(t, err)
}
