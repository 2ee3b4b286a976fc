// Package tsdf fuses depth maps into a truncated signed distance volume
// over the cube [-0.5, 0.5]³.
package tsdf

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Volume is a fused TSDF grid. Data has Resolution³ entries, x fastest.
// Positive values lie outside the surface, negative values inside.
type Volume struct {
	Resolution int
	VoxelSize  float64
	Truncation float64
	Data       []float32
}

// NewVolume returns a volume with every voxel set to +truncation.
func NewVolume(resolution int, truncationFactor float64) (*Volume, error) {
	if resolution <= 0 {
		return nil, fmt.Errorf("resolution must be positive, got %v", resolution)
	}
	if truncationFactor <= 0 {
		return nil, fmt.Errorf("truncation factor must be positive, got %v", truncationFactor)
	}
	voxel := 1 / float64(resolution)
	v := &Volume{
		Resolution: resolution,
		VoxelSize:  voxel,
		Truncation: truncationFactor * voxel,
		Data:       make([]float32, resolution*resolution*resolution),
	}
	for i := range v.Data {
		v.Data[i] = float32(v.Truncation)
	}
	return v, nil
}

// Index returns the offset of voxel (i, j, k) in Data.
func (v *Volume) Index(i, j, k int) int {
	return i + v.Resolution*(j+v.Resolution*k)
}

// At returns the value of voxel (i, j, k).
func (v *Volume) At(i, j, k int) float32 { return v.Data[v.Index(i, j, k)] }

// Center returns the world-space center of voxel (i, j, k).
func (v *Volume) Center(i, j, k int) mgl64.Vec3 {
	return VoxelCenter(v.Resolution, i, j, k)
}

// VoxelCenter returns the world-space center of voxel (i, j, k) in a grid
// of the given resolution.
func VoxelCenter(resolution, i, j, k int) mgl64.Vec3 {
	r := float64(resolution)
	return mgl64.Vec3{
		(float64(i)+0.5)/r - 0.5,
		(float64(j)+0.5)/r - 0.5,
		(float64(k)+0.5)/r - 0.5,
	}
}

// Inside returns the number of voxels with a negative value.
func (v *Volume) Inside() int {
	var n int
	for _, d := range v.Data {
		if d < 0 {
			n++
		}
	}
	return n
}

// MaxAbsDiff returns the largest absolute difference between two volumes
// of equal resolution, or +Inf if they differ in size.
func (v *Volume) MaxAbsDiff(o *Volume) float64 {
	if v.Resolution != o.Resolution {
		return math.Inf(1)
	}
	var diff float64
	for i := range v.Data {
		diff = math.Max(diff, math.Abs(float64(v.Data[i])-float64(o.Data[i])))
	}
	return diff
}
