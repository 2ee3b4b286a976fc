package tsdf

import (
	"fmt"
	"math"
)

// Accumulator collects per-view signed distances for every voxel.
//
// A view that sees a voxel in front of or within the truncation band of
// the observed surface is visible and contributes its clamped distance.
// A view that sees it deeper than the band only records that the voxel is
// hidden. A voxel seen against the background is visible free space.
// Only voxels hidden from every view that observes them resolve to
// -Truncation. Accumulators are summed with Merge, so views may be
// integrated in any order or in parallel partitions.
type Accumulator struct {
	Resolution int
	Truncation float64

	sum     []float64
	visible []uint16
	hidden  []uint16
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator(resolution int, truncation float64) *Accumulator {
	n := resolution * resolution * resolution
	return &Accumulator{
		Resolution: resolution,
		Truncation: truncation,
		sum:        make([]float64, n),
		visible:    make([]uint16, n),
		hidden:     make([]uint16, n),
	}
}

// Add records the signed distance d observed for voxel idx.
func (a *Accumulator) Add(idx int, d float64) {
	t := a.Truncation
	if d < -t {
		a.hidden[idx]++
		return
	}
	a.sum[idx] += math.Min(d, t)
	a.visible[idx]++
}

// Merge adds the observations of o into a.
func (a *Accumulator) Merge(o *Accumulator) error {
	if a.Resolution != o.Resolution || a.Truncation != o.Truncation {
		return fmt.Errorf("Merge: accumulator %v/%v does not match %v/%v",
			o.Resolution, o.Truncation, a.Resolution, a.Truncation)
	}
	for i := range a.sum {
		a.sum[i] += o.sum[i]
		a.visible[i] += o.visible[i]
		a.hidden[i] += o.hidden[i]
	}
	return nil
}

// Observations returns the visible and hidden view counts of voxel idx.
func (a *Accumulator) Observations(idx int) (visible, hidden int) {
	return int(a.visible[idx]), int(a.hidden[idx])
}

// Volume resolves the accumulated observations into TSDF values.
func (a *Accumulator) Volume() *Volume {
	v := &Volume{
		Resolution: a.Resolution,
		VoxelSize:  1 / float64(a.Resolution),
		Truncation: a.Truncation,
		Data:       make([]float32, len(a.sum)),
	}
	for i := range a.sum {
		switch {
		case a.visible[i] > 0:
			v.Data[i] = float32(a.sum[i] / float64(a.visible[i]))
		case a.hidden[i] > 0:
			v.Data[i] = float32(-a.Truncation)
		default:
			v.Data[i] = float32(a.Truncation)
		}
	}
	return v
}
