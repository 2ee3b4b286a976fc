package depth

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/gmlewis/watertight/camera"
	"github.com/gmlewis/watertight/mesh"
	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Depth range rendered around a camera at unit distance from the origin.
const (
	Near = 0.25
	Far  = 1.75
)

// Synthesizer renders post-processed depth maps of a mesh.
//
// Every finite sample is moved Offset toward the camera and the map is
// then eroded with a 3x3 minimum filter, which thickens thin structures
// that would otherwise vanish at low fusion resolution.
type Synthesizer struct {
	Rasterizer Rasterizer
	Intrinsics camera.Intrinsics
	// Offset is subtracted from every finite depth sample.
	Offset float64
	// Workers bounds the number of views rendered concurrently;
	// <= 0 means GOMAXPROCS.
	Workers int

	log *zap.Logger
}

// NewSynthesizer returns a Synthesizer. A nil log discards output.
func NewSynthesizer(r Rasterizer, in camera.Intrinsics, offset float64, log *zap.Logger) *Synthesizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synthesizer{
		Rasterizer: r,
		Intrinsics: in,
		Offset:     offset,
		log:        log.With(zap.String("component", "depth")),
	}
}

// Render returns the depth map of m seen from view.
func (s *Synthesizer) Render(ctx context.Context, m *mesh.Mesh, view camera.View) (*Map, error) {
	vertices := make([]mgl64.Vec3, len(m.Vertices))
	for i, v := range m.Vertices {
		vertices[i] = view.ToCamera(v)
	}

	raw, err := s.Rasterizer.Rasterize(ctx, vertices, m.Faces, s.Intrinsics, Near, Far)
	if err != nil {
		return nil, fmt.Errorf("Render: %w", err)
	}
	if raw.Width != s.Intrinsics.Width || raw.Height != s.Intrinsics.Height {
		return nil, fmt.Errorf("Render: rasterizer returned %vx%v map, want %vx%v",
			raw.Width, raw.Height, s.Intrinsics.Width, s.Intrinsics.Height)
	}

	for i, d := range raw.Data {
		if !math.IsInf(d, 0) && !math.IsNaN(d) {
			raw.Data[i] = d - s.Offset
		}
	}
	return Erode(raw), nil
}

// RenderAll renders every view. The returned maps are in view order.
func (s *Synthesizer) RenderAll(ctx context.Context, m *mesh.Mesh, views []camera.View) ([]*Map, error) {
	maps := make([]*Map, len(views))
	workers := s.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, view := range views {
		g.Go(func() error {
			dm, err := s.Render(ctx, m, view)
			if err != nil {
				return fmt.Errorf("view %v: %w", i, err)
			}
			maps[i] = dm
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.log.Debug("rendered depth maps", zap.Int("views", len(views)), zap.Int("faces", m.NumFaces()))
	return maps, nil
}

// Erode returns the 3x3 minimum filter of m. Neighbors outside the image
// are ignored.
func Erode(m *Map) *Map {
	out := &Map{Width: m.Width, Height: m.Height, Data: make([]float64, len(m.Data))}
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			v := math.Inf(1)
			for dy := -1; dy <= 1; dy++ {
				yy := y + dy
				if yy < 0 || yy >= m.Height {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					xx := x + dx
					if xx < 0 || xx >= m.Width {
						continue
					}
					v = math.Min(v, m.Data[yy*m.Width+xx])
				}
			}
			out.Data[y*m.Width+x] = v
		}
	}
	return out
}
