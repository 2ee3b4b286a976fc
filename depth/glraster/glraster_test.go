package glraster

import (
	"context"
	"math"
	"testing"

	"github.com/gmlewis/watertight/camera"
	"github.com/gmlewis/watertight/depth"
	"github.com/gmlewis/watertight/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

func TestMatchesSoftwareRasterizer(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Skipf("no OpenGL 4.1 context available: %v", err)
	}
	defer r.Close()

	in := camera.Intrinsics{Fx: 64, Fy: 64, Cx: 32, Cy: 32, Width: 64, Height: 64}
	box := mesh.Box(mgl64.Vec3{-0.3, -0.3, -0.3}, mgl64.Vec3{0.3, 0.3, 0.3})
	views, err := camera.Sample(4)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	sw := &depth.SoftwareRasterizer{}
	for i, view := range views {
		vertices := make([]mgl64.Vec3, len(box.Vertices))
		for j, v := range box.Vertices {
			vertices[j] = view.ToCamera(v)
		}

		want, err := sw.Rasterize(ctx, vertices, box.Faces, in, depth.Near, depth.Far)
		if err != nil {
			t.Fatal(err)
		}
		got, err := r.Rasterize(ctx, vertices, box.Faces, in, depth.Near, depth.Far)
		if err != nil {
			t.Fatalf("view %v: %v", i, err)
		}

		// Coverage may differ along silhouette edges.
		var mismatched int
		for p := range want.Data {
			w, g := want.Data[p], got.Data[p]
			if math.IsInf(w, 1) != math.IsInf(g, 1) {
				mismatched++
				continue
			}
			if !math.IsInf(w, 1) && math.Abs(w-g) > 1e-3 {
				t.Errorf("view %v pixel %v: depth %v, want %v", i, p, g, w)
			}
		}
		if mismatched > len(want.Data)/20 {
			t.Errorf("view %v: %v pixels differ in coverage", i, mismatched)
		}
	}
}

func TestClosed(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Skipf("no OpenGL 4.1 context available: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	_, err = r.Rasterize(context.Background(), nil, nil, camera.DefaultIntrinsics(), depth.Near, depth.Far)
	if err != ErrClosed {
		t.Errorf("Rasterize after Close = %v, want ErrClosed", err)
	}
}
