package watertight

import (
	"context"
	"fmt"
	"time"

	"github.com/gmlewis/watertight/binvox"
	"github.com/gmlewis/watertight/camera"
	"github.com/gmlewis/watertight/depth"
	"github.com/gmlewis/watertight/isosurface"
	"github.com/gmlewis/watertight/mesh"
	"github.com/gmlewis/watertight/meshio"
	"github.com/gmlewis/watertight/tsdf"
	"github.com/gmlewis/watertight/zipper"
	"go.uber.org/zap"
)

// TSDFOptions configures TSDF fusion. Meshes are expected to fit the cube
// [-0.5, 0.5]³.
type TSDFOptions struct {
	Intrinsics        camera.Intrinsics
	Resolution        int
	TruncationFactor  float64 // truncation = TruncationFactor × voxel size
	DepthOffsetFactor float64 // depth offset = DepthOffsetFactor × voxel size
	NViews            int
	// Workers bounds the views rendered and fused concurrently.
	Workers int

	// Rasterizer defaults to depth.SoftwareRasterizer.
	Rasterizer depth.Rasterizer
	// Kernel defaults to tsdf.CPUKernel.
	Kernel tsdf.Kernel

	// Optional debug artifacts.
	BinvoxPath   string // occupancy of the fused volume
	SVXPath      string // occupancy slices of the fused volume
	DepthArchive string // ZIP of the rendered depth maps

	Log *zap.Logger
}

// DefaultTSDFOptions returns the default fusion parameters.
func DefaultTSDFOptions() TSDFOptions {
	return TSDFOptions{
		Intrinsics:        camera.DefaultIntrinsics(),
		Resolution:        256,
		TruncationFactor:  15,
		DepthOffsetFactor: 1.5,
		NViews:            100,
	}
}

// Validate returns a ConfigurationError for the first invalid parameter.
func (o TSDFOptions) Validate() error {
	in := o.Intrinsics
	switch {
	case o.Resolution <= 0:
		return configErrorf("resolution", "must be positive, got %v", o.Resolution)
	case o.NViews <= 0:
		return configErrorf("n_views", "must be positive, got %v", o.NViews)
	case in.Width <= 0 || in.Height <= 0:
		return configErrorf("image_size", "must be positive, got %vx%v", in.Height, in.Width)
	case in.Fx <= 0 || in.Fy <= 0:
		return configErrorf("focal_point", "must be positive, got %v,%v", in.Fx, in.Fy)
	case o.TruncationFactor <= 0:
		return configErrorf("truncation_factor", "must be positive, got %v", o.TruncationFactor)
	case o.DepthOffsetFactor < 0:
		return configErrorf("depth_offset_factor", "must not be negative, got %v", o.DepthOffsetFactor)
	}
	if err := in.Validate(); err != nil {
		return configErrorf("principal_point", "%v", err)
	}
	return nil
}

// TSDFFusion renders depth maps of a mesh from views spread over the unit
// sphere, fuses them into a TSDF volume and extracts its zero level set.
type TSDFFusion struct {
	opts  TSDFOptions
	views []camera.View
	synth *depth.Synthesizer
	log   *zap.Logger
}

var _ Transformer = (*TSDFFusion)(nil)

// NewTSDFFusion validates opts and samples the views.
func NewTSDFFusion(opts TSDFOptions) (*TSDFFusion, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	views, err := camera.Sample(opts.NViews)
	if err != nil {
		return nil, configErrorf("n_views", "%v", err)
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := opts.Rasterizer
	if r == nil {
		r = &depth.SoftwareRasterizer{}
	}

	voxel := 1 / float64(opts.Resolution)
	synth := depth.NewSynthesizer(r, opts.Intrinsics, opts.DepthOffsetFactor*voxel, log)
	synth.Workers = opts.Workers

	return &TSDFFusion{
		opts:  opts,
		views: views,
		synth: synth,
		log:   log.With(zap.String("component", "tsdf_fusion")),
	}, nil
}

// Views returns the sampled camera views.
func (t *TSDFFusion) Views() []camera.View { return t.views }

// Fuse renders m from every view and returns the fused volume.
func (t *TSDFFusion) Fuse(ctx context.Context, m *mesh.Mesh) (*tsdf.Volume, error) {
	maps, err := t.synth.RenderAll(ctx, m, t.views)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	if t.opts.DepthArchive != "" {
		if err := zipper.WriteDepthMaps(t.opts.DepthArchive, maps); err != nil {
			return nil, fmt.Errorf("depth archive: %w", err)
		}
	}

	vol, err := tsdf.Fuse(ctx, maps, t.views, t.opts.Intrinsics, tsdf.Params{
		Resolution:       t.opts.Resolution,
		TruncationFactor: t.opts.TruncationFactor,
		Workers:          t.opts.Workers,
		Kernel:           t.opts.Kernel,
	})
	if err != nil {
		return nil, fmt.Errorf("fuse: %w", err)
	}
	return vol, nil
}

// ToWatertight implements Transformer.
func (t *TSDFFusion) ToWatertight(ctx context.Context, m *mesh.Mesh, outputPath string, format meshio.Format) (*mesh.Mesh, error) {
	start := time.Now()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("ToWatertight: %w", err)
	}

	vol, err := t.Fuse(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("ToWatertight: %w", err)
	}
	if t.opts.BinvoxPath != "" {
		if err := binvox.Write(t.opts.BinvoxPath, vol); err != nil {
			return nil, fmt.Errorf("ToWatertight: binvox: %w", err)
		}
	}
	if t.opts.SVXPath != "" {
		if err := zipper.WriteSVX(t.opts.SVXPath, vol, vol.VoxelSize, "watertight"); err != nil {
			return nil, fmt.Errorf("ToWatertight: svx: %w", err)
		}
	}

	out, err := isosurface.Extract(vol)
	if err != nil {
		return nil, fmt.Errorf("ToWatertight: %w", err)
	}
	if outputPath != "" {
		if err := meshio.Save(outputPath, out, format); err != nil {
			return nil, fmt.Errorf("ToWatertight: %w", err)
		}
	}

	t.log.Debug("fused mesh",
		zap.Int("views", len(t.views)),
		zap.Int("resolution", vol.Resolution),
		zap.Int("inside_voxels", vol.Inside()),
		zap.Int("vertices", out.NumVertices()),
		zap.Int("faces", out.NumFaces()),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}
