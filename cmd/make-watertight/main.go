// make-watertight converts a single mesh into a watertight mesh written
// to path_to_output_directory/model_watertight.<file_type>.
//
// Usage:
//
//	make-watertight [flags] path_to_mesh path_to_output_directory
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gmlewis/watertight/config"
	"github.com/gmlewis/watertight/dataset"
	"github.com/gmlewis/watertight/internal/cli"
	"github.com/gmlewis/watertight/pipeline"
	"github.com/gmlewis/watertight/watertight"
	"go.uber.org/zap"
)

var (
	force = flag.Bool("force", false, "Replace an existing watertight mesh")

	writeBinvox = flag.Bool("binvox", false, "Also write the fused occupancy as model_watertight.binvox (tsdf_fusion only)")
	writeSVX    = flag.Bool("svx", false, "Also write the fused occupancy as model_watertight.svx (tsdf_fusion only)")
	writeDepth  = flag.Bool("depth_maps", false, "Also write the rendered depth maps to depth_maps.zip (tsdf_fusion only)")
)

func main() {
	flags := config.NewFlags(flag.CommandLine, config.ConvertFlags)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %v [flags] path_to_mesh path_to_output_directory\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	check("%v", run(flags, flag.Arg(0), flag.Arg(1)))
}

// run returns instead of exiting so that its deferred cleanup always runs.
func run(flags *config.Flags, src, outDir string) error {
	cfg, err := flags.Config()
	if err != nil {
		return err
	}
	cfg.Output.UnitCube = cfg.Output.UnitCube || len(cfg.Output.BBox) == 0
	if err := cfg.Validate(); err != nil {
		return err
	}

	zl, err := cli.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer zl.Sync()

	target := filepath.Join(outDir, dataset.WatertightBase+cfg.Format().Ext())
	debug := func(enabled bool, name string) string {
		if !enabled {
			return ""
		}
		return filepath.Join(outDir, name)
	}
	opts := watertight.TSDFOptions{
		BinvoxPath:   debug(*writeBinvox, dataset.WatertightBase+".binvox"),
		SVXPath:      debug(*writeSVX, dataset.WatertightBase+".svx"),
		DepthArchive: debug(*writeDepth, "depth_maps.zip"),
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	t, done, err := cli.NewTransformer(cfg, opts, zl)
	if err != nil {
		return err
	}
	defer done()

	if *force {
		if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	p, err := pipeline.New(t, pipeline.Options{
		Format:              cfg.Format(),
		UnitCube:            cfg.Output.UnitCube,
		BBox:                cfg.BBoxArray(),
		Decimator:           cfg.Decimator(zl),
		SkipWatertightCheck: cfg.Output.SkipWatertightCheck,
	}, zl)
	if err != nil {
		return err
	}

	tag := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	outcome, err := p.Process(context.Background(), dataset.NewSample(tag, "", src, target))
	if err != nil {
		return err
	}
	zl.Info("done", zap.String("path", target), zap.Stringer("outcome", outcome))
	if outcome == pipeline.OutcomeLocked {
		zl.Warn("another process is building this mesh", zap.String("lock", target+pipeline.LockSuffix))
	}
	return nil
}

func check(fmtStr string, args ...interface{}) {
	if err := args[len(args)-1]; err != nil {
		log.Fatalf(fmtStr, args...)
	}
}
