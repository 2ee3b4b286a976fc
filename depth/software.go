package depth

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/gmlewis/watertight/camera"
	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/sync/errgroup"
)

// SoftwareRasterizer is a CPU edge-function rasterizer with
// perspective-correct depth. Rows are split into bands rendered in
// parallel.
type SoftwareRasterizer struct {
	// Workers bounds the number of row bands; <= 0 means GOMAXPROCS.
	Workers int
}

var _ Rasterizer = (*SoftwareRasterizer)(nil)

// screenTri is a triangle projected to image space. W holds 1/z per vertex.
type screenTri struct {
	U, V, W    [3]float64
	minU, maxU float64
	minV, maxV float64
	area       float64
}

// Rasterize implements Rasterizer.
func (s *SoftwareRasterizer) Rasterize(ctx context.Context, vertices []mgl64.Vec3, faces [][3]int, in camera.Intrinsics, near, far float64) (*Map, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("Rasterize: %v", err)
	}
	if near <= 0 || far <= near {
		return nil, fmt.Errorf("Rasterize: invalid depth range [%v, %v]", near, far)
	}

	var tris []screenTri
	for i, f := range faces {
		for _, idx := range f {
			if idx < 0 || idx >= len(vertices) {
				return nil, fmt.Errorf("Rasterize: face %v references vertex %v", i, idx)
			}
		}
		poly := clipNear([]mgl64.Vec3{vertices[f[0]], vertices[f[1]], vertices[f[2]]}, near)
		for j := 1; j+1 < len(poly); j++ {
			if t, ok := project(in, poly[0], poly[j], poly[j+1]); ok {
				tris = append(tris, t)
			}
		}
	}

	m := NewMap(in.Width, in.Height)
	workers := s.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > in.Height {
		workers = in.Height
	}
	band := (in.Height + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for row0 := 0; row0 < in.Height; row0 += band {
		row0, row1 := row0, min(row0+band, in.Height)
		g.Go(func() error {
			for i := range tris {
				if i%1024 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				fill(m, &tris[i], row0, row1, near, far)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

// clipNear clips a convex polygon to the half-space z >= near.
func clipNear(poly []mgl64.Vec3, near float64) []mgl64.Vec3 {
	inside := 0
	for _, p := range poly {
		if p[2] >= near {
			inside++
		}
	}
	switch inside {
	case len(poly):
		return poly
	case 0:
		return nil
	}

	out := make([]mgl64.Vec3, 0, len(poly)+1)
	for i, a := range poly {
		b := poly[(i+1)%len(poly)]
		aIn, bIn := a[2] >= near, b[2] >= near
		if aIn {
			out = append(out, a)
		}
		if aIn != bIn {
			t := (near - a[2]) / (b[2] - a[2])
			p := a.Add(b.Sub(a).Mul(t))
			p[2] = near
			out = append(out, p)
		}
	}
	return out
}

func project(in camera.Intrinsics, a, b, c mgl64.Vec3) (screenTri, bool) {
	var t screenTri
	for i, p := range [3]mgl64.Vec3{a, b, c} {
		t.U[i], t.V[i] = in.Project(p)
		t.W[i] = 1 / p[2]
	}
	t.area = edge(t.U[0], t.V[0], t.U[1], t.V[1], t.U[2], t.V[2])
	if t.area == 0 || math.IsNaN(t.area) {
		return t, false
	}
	t.minU = math.Min(t.U[0], math.Min(t.U[1], t.U[2]))
	t.maxU = math.Max(t.U[0], math.Max(t.U[1], t.U[2]))
	t.minV = math.Min(t.V[0], math.Min(t.V[1], t.V[2]))
	t.maxV = math.Max(t.V[0], math.Max(t.V[1], t.V[2]))
	return t, true
}

// edge returns twice the signed area of (a, b, p).
func edge(ax, ay, bx, by, px, py float64) float64 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

func fill(m *Map, t *screenTri, row0, row1 int, near, far float64) {
	y0 := max(row0, int(math.Ceil(t.minV)))
	y1 := min(row1-1, int(math.Floor(t.maxV)))
	x0 := max(0, int(math.Ceil(t.minU)))
	x1 := min(m.Width-1, int(math.Floor(t.maxU)))
	if y0 > y1 || x0 > x1 {
		return
	}

	inv := 1 / t.area
	for y := y0; y <= y1; y++ {
		py := float64(y)
		for x := x0; x <= x1; x++ {
			px := float64(x)
			b0 := edge(t.U[1], t.V[1], t.U[2], t.V[2], px, py) * inv
			b1 := edge(t.U[2], t.V[2], t.U[0], t.V[0], px, py) * inv
			b2 := edge(t.U[0], t.V[0], t.U[1], t.V[1], px, py) * inv
			if b0 < 0 || b1 < 0 || b2 < 0 {
				continue
			}
			w := b0*t.W[0] + b1*t.W[1] + b2*t.W[2]
			if w <= 0 {
				continue
			}
			z := 1 / w
			if z < near || z > far {
				continue
			}
			if i := y*m.Width + x; z < m.Data[i] {
				m.Data[i] = z
			}
		}
	}
}
