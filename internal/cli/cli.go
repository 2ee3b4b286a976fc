// Package cli wires a config.Config into the objects the command-line
// tools run.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/gmlewis/watertight/config"
	"github.com/gmlewis/watertight/depth/glraster"
	"github.com/gmlewis/watertight/logger"
	"github.com/gmlewis/watertight/watertight"
	"go.uber.org/zap"
)

// Stderr is where console logs go.
var Stderr io.Writer = os.Stderr

// NewLogger returns the logger described by cfg.Logging.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(cfg.Logging.Level, cfg.Logging.File, Stderr)
}

// NewTransformer returns the transformer selected by cfg.Method and a
// function releasing its resources. tsdf may carry extra options such as
// debug artifact paths; its parameters are overwritten by cfg.
func NewTransformer(cfg *config.Config, tsdf watertight.TSDFOptions, log *zap.Logger) (watertight.Transformer, func(), error) {
	if log == nil {
		log = zap.NewNop()
	}
	opts := watertight.Options{ManifoldPlus: cfg.ManifoldPlusOptions()}
	closer := func() {}

	if watertight.Method(cfg.Method) == watertight.MethodTSDFFusion {
		base := cfg.TSDFOptions()
		base.Workers = tsdf.Workers
		base.Kernel = tsdf.Kernel
		base.BinvoxPath = tsdf.BinvoxPath
		base.SVXPath = tsdf.SVXPath
		base.DepthArchive = tsdf.DepthArchive
		base.Rasterizer = tsdf.Rasterizer

		switch cfg.TSDF.Rasterizer {
		case config.RasterizerCPU, "":
		case config.RasterizerGL:
			r, err := glraster.New()
			if err != nil {
				return nil, nil, fmt.Errorf("OpenGL rasterizer: %w", err)
			}
			base.Rasterizer = r
			closer = func() {
				if err := r.Close(); err != nil {
					log.Warn("closing OpenGL rasterizer", zap.Error(err))
				}
			}
		default:
			return nil, nil, &watertight.ConfigurationError{Param: "rasterizer", Reason: fmt.Sprintf("unknown rasterizer %q", cfg.TSDF.Rasterizer)}
		}
		opts.TSDF = base
	}

	t, err := watertight.New(watertight.Method(cfg.Method), opts, log)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return t, closer, nil
}
