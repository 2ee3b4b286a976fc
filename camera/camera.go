// Package camera defines pinhole intrinsics and samples virtual camera
// views evenly distributed on the unit sphere.
package camera

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Intrinsics describes a pinhole camera. A camera-space point (x, y, z)
// projects to the image point (Fx·x/z + Cx, Fy·y/z + Cy).
type Intrinsics struct {
	Fx, Fy float64
	Cx, Cy float64
	Width  int
	Height int
}

// DefaultIntrinsics returns a 640x640 image with focal lengths 640 and the
// principal point at the image center.
func DefaultIntrinsics() Intrinsics {
	return Intrinsics{Fx: 640, Fy: 640, Cx: 320, Cy: 320, Width: 640, Height: 640}
}

// Validate reports the first invalid parameter.
func (in Intrinsics) Validate() error {
	switch {
	case in.Width <= 0 || in.Height <= 0:
		return fmt.Errorf("image size %vx%v must be positive", in.Height, in.Width)
	case in.Fx <= 0 || in.Fy <= 0:
		return fmt.Errorf("focal lengths (%v, %v) must be positive", in.Fx, in.Fy)
	case in.Cx < 0 || in.Cx >= float64(in.Width) || in.Cy < 0 || in.Cy >= float64(in.Height):
		return fmt.Errorf("principal point (%v, %v) lies outside the %vx%v image", in.Cx, in.Cy, in.Height, in.Width)
	}
	return nil
}

// Project maps a camera-space point to continuous image coordinates.
func (in Intrinsics) Project(p mgl64.Vec3) (u, v float64) {
	return in.Fx*p[0]/p[2] + in.Cx, in.Fy*p[1]/p[2] + in.Cy
}

// Distance is the distance of every camera from the origin.
const Distance = 1.0

// View is a camera looking at the origin from a point on the unit sphere.
type View struct {
	// Direction is the unit sphere point the view was sampled from.
	Direction mgl64.Vec3
	// Rotation maps world space into camera orientation.
	Rotation mgl64.Mat3
}

// ToCamera maps a world point to camera space: R·p + (0, 0, Distance).
func (v View) ToCamera(p mgl64.Vec3) mgl64.Vec3 {
	q := v.Rotation.Mul3x1(p)
	q[2] += Distance
	return q
}

// Sample returns n views whose directions form a Fibonacci lattice on the
// unit sphere. The result is deterministic for a given n.
func Sample(n int) ([]View, error) {
	if n <= 0 {
		return nil, fmt.Errorf("number of views must be positive, got %v", n)
	}

	offset := 2 / float64(n)
	increment := math.Pi * (3 - math.Sqrt(5))

	views := make([]View, n)
	for i := range views {
		y := float64(i)*offset - 1 + offset/2
		r := math.Sqrt(math.Max(0, 1-y*y))
		phi := float64((i+1)%n) * increment
		d := mgl64.Vec3{math.Cos(phi) * r, y, math.Sin(phi) * r}
		views[i] = View{Direction: d, Rotation: lookRotation(d)}
	}
	return views, nil
}

func lookRotation(d mgl64.Vec3) mgl64.Mat3 {
	longitude := -math.Atan2(d[0], d[1])
	latitude := math.Atan2(d[2], math.Hypot(d[0], d[1]))
	return mgl64.Rotate3DY(longitude).Mul3(mgl64.Rotate3DX(latitude))
}
