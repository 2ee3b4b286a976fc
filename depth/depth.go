// Package depth renders per-view depth maps of a mesh for volumetric
// fusion.
package depth

import (
	"context"
	"math"

	"github.com/gmlewis/watertight/camera"
	"github.com/go-gl/mathgl/mgl64"
)

// NoHit marks pixels not covered by any triangle.
var NoHit = math.Inf(1)

// Map is a row-major depth image holding camera-space z per pixel.
type Map struct {
	Width, Height int
	Data          []float64
}

// NewMap returns a width x height map with every pixel set to NoHit.
func NewMap(width, height int) *Map {
	m := &Map{Width: width, Height: height, Data: make([]float64, width*height)}
	for i := range m.Data {
		m.Data[i] = NoHit
	}
	return m
}

// At returns the depth at column x, row y.
func (m *Map) At(x, y int) float64 { return m.Data[y*m.Width+x] }

// Set stores the depth at column x, row y.
func (m *Map) Set(x, y int, d float64) { m.Data[y*m.Width+x] = d }

// Valid reports whether d is a usable depth sample.
func Valid(d float64) bool {
	return d > 0 && !math.IsInf(d, 0) && !math.IsNaN(d)
}

// Hits returns the number of valid pixels.
func (m *Map) Hits() int {
	var n int
	for _, d := range m.Data {
		if Valid(d) {
			n++
		}
	}
	return n
}

// Rasterizer renders camera-space triangles into a depth map.
//
// Vertices are already in camera space with +z forward. Pixel (col, row)
// samples the image point (col, row) under the projection of in. Each
// pixel keeps the smallest z within [near, far] among the triangles
// covering it, else NoHit. Back faces are not culled.
type Rasterizer interface {
	Rasterize(ctx context.Context, vertices []mgl64.Vec3, faces [][3]int, in camera.Intrinsics, near, far float64) (*Map, error)
}
