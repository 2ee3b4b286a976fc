// watertight converts every mesh of a dataset into a watertight mesh,
// either by TSDF fusion of rendered depth maps or with the external
// ManifoldPlus tool.
//
// Any number of watertight processes may run over the same dataset at
// once: each artifact is built by exactly one of them, under a lock
// directory next to it. Meshes already converted are skipped, so an
// interrupted run is resumed by running it again.
//
// Usage:
//
//	watertight [flags] dataset_directory
//	watertight [flags] -path_to_meshes dir
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gmlewis/watertight/config"
	"github.com/gmlewis/watertight/internal/cli"
	"github.com/gmlewis/watertight/metrics"
	"github.com/gmlewis/watertight/pipeline"
	"github.com/gmlewis/watertight/watertight"
	"go.uber.org/zap"
)

var (
	writeConfig = flag.String("write_config", "", "Write the effective configuration to this .yaml or .toml file and exit")
	tsdfWorkers = flag.Int("tsdf_workers", 0, "Views rendered and fused concurrently per sample (default GOMAXPROCS)")
)

func main() {
	flags := config.NewFlags(flag.CommandLine, config.DatasetFlags|config.ConvertFlags|config.RunFlags)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %v [flags] dataset_directory\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	err := run(flags)
	if errors.Is(err, flag.ErrHelp) {
		flag.Usage()
		os.Exit(2)
	}
	check("%v", err)
}

// run returns instead of exiting so that its deferred cleanup always runs.
func run(flags *config.Flags) error {
	cfg, err := flags.Config()
	if err != nil {
		return err
	}
	if flag.NArg() > 0 {
		cfg.Dataset.Directory = flag.Arg(0)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if *writeConfig != "" {
		if err := cfg.SaveTo(*writeConfig); err != nil {
			return fmt.Errorf("write_config: %w", err)
		}
		return nil
	}
	if cfg.Dataset.Directory == "" {
		return flag.ErrHelp
	}

	zl, err := cli.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer zl.Sync()

	t, done, err := cli.NewTransformer(cfg, watertight.TSDFOptions{Workers: *tsdfWorkers}, zl)
	if err != nil {
		return err
	}
	defer done()

	c, err := cfg.DatasetBuilder(zl).Build(cfg.Dataset.Directory)
	if err != nil {
		return fmt.Errorf("dataset: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	observers := pipeline.MultiObserver{pipeline.NewLogObserver(zl)}
	var m *metrics.Observer
	if cfg.Metrics.Textfile != "" || cfg.Metrics.Addr != "" {
		m = metrics.New(cfg.Metrics.Namespace, zl)
		observers = append(observers, m)
	}
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr); err != nil {
				zl.Error("metrics server", zap.Error(err))
			}
		}()
	}

	p, err := pipeline.New(t, pipeline.Options{
		Workers:             cfg.Workers,
		Format:              cfg.Format(),
		UnitCube:            cfg.Output.UnitCube,
		BBox:                cfg.BBoxArray(),
		Decimator:           cfg.Decimator(zl),
		Observer:            observers,
		SkipWatertightCheck: cfg.Output.SkipWatertightCheck,
	}, zl)
	if err != nil {
		return err
	}

	report, runErr := p.Run(ctx, c)
	if m != nil && cfg.Metrics.Textfile != "" {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			zl.Error("metrics textfile", zap.Error(err))
		}
	}
	for _, f := range report.Failures {
		zl.Warn("failed sample", zap.String("tag", f.Tag), zap.String("path", f.Path), zap.Error(f.Err))
	}
	if runErr != nil {
		return fmt.Errorf("run interrupted: %w", runErr)
	}
	return nil
}

func check(fmtStr string, args ...interface{}) {
	if err := args[len(args)-1]; err != nil {
		log.Fatalf(fmtStr, args...)
	}
}
