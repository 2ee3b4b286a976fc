// check-watertight verifies that the watertight meshes of a dataset exist
// and are watertight. The paths of missing, unreadable or open meshes are
// written to text_directory/non_watertight_list.txt, one per line.
//
// With -stale_locks it also lists the lock directories left behind by
// conversions that died. Those must be removed by hand before the samples
// can be converted again.
//
// Usage:
//
//	check-watertight [flags] dataset_directory text_directory
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/gmlewis/watertight/config"
	"github.com/gmlewis/watertight/internal/cli"
	"github.com/gmlewis/watertight/meshio"
	"github.com/gmlewis/watertight/pipeline"
	"go.uber.org/zap"
)

// ListName is the name of the report written to text_directory.
const ListName = "non_watertight_list.txt"

var staleLocks = flag.Bool("stale_locks", false, "Also report lock directories whose owner process is gone")

func main() {
	flags := config.NewFlags(flag.CommandLine, config.DatasetFlags)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %v [flags] dataset_directory text_directory\n", os.Args[0])
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
func run(flags *config.Flags, datasetDir, textDir string) error {
	cfg, err := flags.Config()
	if err != nil {
		return err
	}
	cfg.Dataset.Directory = datasetDir
	if err := cfg.Validate(); err != nil {
		return err
	}

	zl, err := cli.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer zl.Sync()

	c, err := cfg.DatasetBuilder(zl).Build(cfg.Dataset.Directory)
	if err != nil {
		return fmt.Errorf("dataset: %w", err)
	}

	if err := os.MkdirAll(textDir, 0755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.Create(filepath.Join(textDir, ListName))
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	var count int
	for i := 0; i < c.Len(); i++ {
		s := c.Get(i)
		path := s.WatertightPath()
		m, err := meshio.Load(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			zl.Warn("file does not exist", zap.String("tag", s.Tag()), zap.String("path", path))
		case err != nil:
			zl.Error("unable to load mesh", zap.String("tag", s.Tag()), zap.String("path", path), zap.Error(err))
		case m.IsWatertight():
			continue
		default:
			topo := m.Topology()
			zl.Info("not watertight", zap.String("tag", s.Tag()), zap.String("path", path),
				zap.Int("boundary_edges", topo.BoundaryEdges), zap.Int("non_manifold_edges", topo.NonManifoldEdges))
		}
		count++
		fmt.Fprintln(w, path)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("Flush: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("Close: %w", err)
	}

	if count == 0 {
		zl.Info("all meshes are watertight", zap.Int("samples", c.Len()))
	} else {
		zl.Info("found meshes to redo", zap.Int("count", count), zap.Int("samples", c.Len()), zap.String("list", f.Name()))
	}

	if *staleLocks {
		root := cfg.Output.Dir
		if root == "" {
			root = cfg.Dataset.Directory
		}
		stale, err := pipeline.FindStaleLocks(root)
		if err != nil {
			return fmt.Errorf("FindStaleLocks: %w", err)
		}
		for _, l := range stale {
			zl.Warn("stale lock", zap.String("lock", l.Path), zap.String("reason", l.Reason),
				zap.String("host", l.Owner.Host), zap.Int("pid", l.Owner.PID))
		}
		if len(stale) == 0 {
			zl.Info("no stale locks", zap.String("root", root))
		}
	}
	return nil
}

func check(fmtStr string, args ...interface{}) {
	if err := args[len(args)-1]; err != nil {
		log.Fatalf(fmtStr, args...)
	}
}
