// Package binvox writes the occupancy of fused TSDF volumes as binvox
// files.
package binvox

import (
	"fmt"

	"github.com/gmlewis/stldice/v4/binvox"
	"github.com/gmlewis/watertight/tsdf"
)

// Voxels returns a binvox model holding every voxel of vol that lies
// inside the surface. The model spans the unit cube centered at the
// origin.
func Voxels(vol *tsdf.Volume) *binvox.BinVOX {
	r := vol.Resolution
	b := binvox.New(r, r, r, -0.5, -0.5, -0.5, 1, false)
	for k := 0; k < r; k++ {
		for j := 0; j < r; j++ {
			for i := 0; i < r; i++ {
				if vol.At(i, j, k) < 0 {
					b.Add(i, j, k)
				}
			}
		}
	}
	return b
}

// Write writes the occupancy of vol to filename.
func Write(filename string, vol *tsdf.Volume) error {
	b := Voxels(vol)
	if err := b.Write(filename, 0, 0, 0, b.NX, b.NY, b.NZ); err != nil {
		return fmt.Errorf("Write: %v", err)
	}
	return nil
}
