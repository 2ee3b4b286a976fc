package tsdf

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/gmlewis/watertight/camera"
	"github.com/gmlewis/watertight/depth"
	"golang.org/x/sync/errgroup"
)

// Kernel integrates one depth map into an accumulator.
type Kernel interface {
	Integrate(acc *Accumulator, m *depth.Map, v camera.View, in camera.Intrinsics) error
}

// Params configures Fuse.
type Params struct {
	Resolution       int
	TruncationFactor float64
	// Workers is the number of view partitions fused concurrently;
	// <= 0 means one partition.
	Workers int
	// Kernel defaults to CPUKernel.
	Kernel Kernel
}

// Fuse integrates every depth map, maps[i] being rendered from views[i],
// into a TSDF volume.
func Fuse(ctx context.Context, maps []*depth.Map, views []camera.View, in camera.Intrinsics, p Params) (*Volume, error) {
	if len(maps) != len(views) {
		return nil, fmt.Errorf("Fuse: %v depth maps for %v views", len(maps), len(views))
	}
	if len(views) > math.MaxUint16 {
		return nil, fmt.Errorf("Fuse: at most %v views are supported, got %v", math.MaxUint16, len(views))
	}
	if _, err := NewVolume(p.Resolution, p.TruncationFactor); err != nil {
		return nil, fmt.Errorf("Fuse: %v", err)
	}
	for i, m := range maps {
		if m == nil || m.Width != in.Width || m.Height != in.Height {
			return nil, fmt.Errorf("Fuse: depth map %v does not match the %vx%v image", i, in.Height, in.Width)
		}
	}
	kernel := p.Kernel
	if kernel == nil {
		kernel = &CPUKernel{}
	}

	truncation := p.TruncationFactor / float64(p.Resolution)
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(views) {
		workers = max(1, len(views))
	}

	parts := make([]*Accumulator, workers)
	g, ctx := errgroup.WithContext(ctx)
	for w := range parts {
		g.Go(func() error {
			acc := NewAccumulator(p.Resolution, truncation)
			for i := w; i < len(views); i += workers {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := kernel.Integrate(acc, maps[i], views[i], in); err != nil {
					return fmt.Errorf("Fuse: view %v: %w", i, err)
				}
			}
			parts[w] = acc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	acc := parts[0]
	for _, part := range parts[1:] {
		if err := acc.Merge(part); err != nil {
			return nil, err
		}
	}
	return acc.Volume(), nil
}

// CPUKernel projects every voxel center into the view, in parallel over
// z-slices.
type CPUKernel struct {
	// Workers bounds the slices processed concurrently; <= 0 means
	// GOMAXPROCS.
	Workers int
}

var _ Kernel = (*CPUKernel)(nil)

// Integrate implements Kernel.
func (k *CPUKernel) Integrate(acc *Accumulator, m *depth.Map, v camera.View, in camera.Intrinsics) error {
	res := acc.Resolution
	workers := k.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for z := 0; z < res; z++ {
		g.Go(func() error {
			integrateSlice(acc, m, v, in, z)
			return nil
		})
	}
	return g.Wait()
}

func integrateSlice(acc *Accumulator, m *depth.Map, v camera.View, in camera.Intrinsics, k int) {
	res := acc.Resolution
	for j := 0; j < res; j++ {
		for i := 0; i < res; i++ {
			q := v.ToCamera(VoxelCenter(res, i, j, k))
			if q[2] <= 0 {
				continue
			}
			u, w := in.Project(q)
			x, y := int(math.Floor(u+0.5)), int(math.Floor(w+0.5))
			if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
				continue
			}
			observed := m.At(x, y)
			if math.IsInf(observed, 1) {
				// Background: the ray reaches the far plane, so the
				// voxel is seen as free space.
				observed = depth.Far
			}
			if !depth.Valid(observed) {
				continue
			}
			acc.Add(i+res*(j+res*k), observed-q[2])
		}
	}
}
