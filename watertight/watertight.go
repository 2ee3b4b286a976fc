// Package watertight converts arbitrary triangle meshes into closed,
// watertight meshes, either by volumetric TSDF fusion or by delegating to
// the external ManifoldPlus repair tool.
package watertight

import (
	"context"

	"github.com/gmlewis/watertight/mesh"
	"github.com/gmlewis/watertight/meshio"
	"go.uber.org/zap"
)

// Transformer makes meshes watertight. When outputPath is not empty the
// result is also written there in the given format.
type Transformer interface {
	ToWatertight(ctx context.Context, m *mesh.Mesh, outputPath string, format meshio.Format) (*mesh.Mesh, error)
}

// Method names a Transformer strategy.
type Method string

const (
	MethodTSDFFusion   Method = "tsdf_fusion"
	MethodManifoldPlus Method = "manifoldplus"
)

// Options holds the parameters of every strategy. Only those of the
// selected method are used.
type Options struct {
	TSDF         TSDFOptions
	ManifoldPlus ManifoldPlusOptions
}

// New returns the Transformer for method.
func New(method Method, opts Options, log *zap.Logger) (Transformer, error) {
	switch method {
	case MethodTSDFFusion:
		o := opts.TSDF
		if o.Log == nil {
			o.Log = log
		}
		return NewTSDFFusion(o)
	case MethodManifoldPlus:
		o := opts.ManifoldPlus
		if o.Log == nil {
			o.Log = log
		}
		return NewManifoldPlus(o)
	}
	return nil, configErrorf("method", "unknown method %q, want %q or %q", method, MethodTSDFFusion, MethodManifoldPlus)
}
