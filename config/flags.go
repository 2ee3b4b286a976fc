package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/gmlewis/watertight/dataset"
)

// Group selects the flags NewFlags registers.
type Group uint

const (
	// DatasetFlags select the samples and where their artifacts go.
	DatasetFlags Group = 1 << iota
	// ConvertFlags configure the watertight method, normalization and
	// simplification.
	ConvertFlags
	// RunFlags configure the worker pool and metrics.
	RunFlags
)

// Flags binds command-line flags to a Config.
type Flags struct {
	fs     *flag.FlagSet
	groups Group
	cfg    *Config
	path   string
}

// NewFlags registers -config, the logging flags and the flags of groups
// on fs.
func NewFlags(fs *flag.FlagSet, groups Group) *Flags {
	f := &Flags{fs: fs, groups: groups, cfg: Default()}
	fs.StringVar(&f.path, "config", "", "Path to a YAML or TOML config file")
	bind(fs, groups, f.cfg)
	return f
}

// Config returns the settings once fs has been parsed: the defaults,
// overridden by the -config file, overridden by every flag set on the
// command line.
func (f *Flags) Config() (*Config, error) {
	if f.path == "" {
		return f.cfg, nil
	}
	cfg, err := Load(f.path)
	if err != nil {
		return nil, err
	}

	over := flag.NewFlagSet(f.fs.Name(), flag.ContinueOnError)
	bind(over, f.groups, cfg)
	f.fs.Visit(func(fl *flag.Flag) {
		if err != nil || over.Lookup(fl.Name) == nil {
			return
		}
		if serr := over.Set(fl.Name, fl.Value.String()); serr != nil {
			err = fmt.Errorf("flag -%v: %w", fl.Name, serr)
		}
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func bind(fs *flag.FlagSet, groups Group, c *Config) {
	fs.Var(debugFlag{&c.Logging.Level}, "debug", "Enable debug logging")
	fs.StringVar(&c.Logging.Level, "log_level", c.Logging.Level, "Log level: debug, info, warn or error")
	fs.StringVar(&c.Logging.File.Path, "log_file", c.Logging.File.Path, "Also log to this rotating file")

	if groups&DatasetFlags != 0 {
		var types []string
		for _, t := range dataset.Types {
			types = append(types, string(t))
		}
		fs.StringVar(&c.Dataset.Type, "dataset_type", c.Dataset.Type, "Dataset layout: "+strings.Join(types, ", "))
		fs.Var(pathToMeshes{&c.Dataset}, "path_to_meshes", "Use every mesh under this directory (implies -dataset_type=directory)")
		fs.Var(stringList{&c.Dataset.ModelTags}, "model_tags", "Comma-separated tags of the models to keep")
		fs.Var(stringList{&c.Dataset.CategoryTags}, "category_tags", "Comma-separated categories of the models to keep")
		fs.Float64Var(&c.Dataset.RandomSubset, "random_subset", c.Dataset.RandomSubset, "Fraction of the models to keep, chosen at random")
		fs.Int64Var(&c.Dataset.Seed, "seed", c.Dataset.Seed, "Seed of -random_subset")
		fs.IntVar(&c.Dataset.CacheSize, "lru_cache", c.Dataset.CacheSize, "Number of loaded meshes kept in memory")
		fs.StringVar(&c.Output.Dir, "output_dir", c.Output.Dir, "Directory of the watertight meshes (default next to each source)")
	}

	if groups&(DatasetFlags|ConvertFlags) != 0 {
		fs.StringVar(&c.Output.FileType, "file_type", c.Output.FileType, "Format of the watertight meshes: obj, off or stl")
	}

	if groups&ConvertFlags != 0 {
		fs.StringVar(&c.Method, "method", c.Method, "Watertight method: tsdf_fusion or manifoldplus")
		fs.BoolVar(&c.Output.UnitCube, "unit_cube", c.Output.UnitCube, "Rescale every mesh into [-0.5,0.5]^3")
		fs.Var(floatList{p: &c.Output.BBox, n: 6}, "bbox", "Map the box x0,y0,z0,x1,y1,z1 of every mesh onto [-0.5,0.5]^3")
		fs.BoolVar(&c.Output.SkipWatertightCheck, "skip_watertight_check", c.Output.SkipWatertightCheck, "Transform meshes that are already watertight")

		fs.BoolVar(&c.Simplify.Enabled, "simplify", c.Simplify.Enabled, "Decimate the watertight meshes")
		fs.IntVar(&c.Simplify.TargetFaces, "num_target_faces", c.Simplify.TargetFaces, "Face count after decimation")
		fs.Float64Var(&c.Simplify.TargetRatio, "ratio_target_faces", c.Simplify.TargetRatio, "Fraction of faces kept by decimation, if -num_target_faces is 0")
		fs.Float64Var(&c.Simplify.QualityThreshold, "quality_threshold", c.Simplify.QualityThreshold, "Lowest accepted ratio of triangle quality after decimation")

		fs.IntVar(&c.TSDF.NViews, "n_views", c.TSDF.NViews, "Number of depth maps fused")
		fs.Var(intPair{&c.TSDF.ImageHeight, &c.TSDF.ImageWidth}, "image_size", "Depth map size as height,width")
		fs.Var(floatPair{&c.TSDF.Fx, &c.TSDF.Fy}, "focal_point", "Focal lengths as fx,fy in pixels")
		fs.Var(floatPair{&c.TSDF.Cx, &c.TSDF.Cy}, "principal_point", "Principal point as cx,cy in pixels")
		fs.IntVar(&c.TSDF.Resolution, "resolution", c.TSDF.Resolution, "Voxels along each edge of the TSDF volume")
		fs.Float64Var(&c.TSDF.TruncationFactor, "truncation_factor", c.TSDF.TruncationFactor, "Truncation distance in voxels")
		fs.Float64Var(&c.TSDF.DepthOffsetFactor, "depth_offset_factor", c.TSDF.DepthOffsetFactor, "Depth map offset in voxels")
		fs.StringVar(&c.TSDF.Rasterizer, "rasterizer", c.TSDF.Rasterizer, "Depth rasterizer: cpu or gl")

		fs.StringVar(&c.ManifoldPlus.Script, "manifoldplus_script", c.ManifoldPlus.Script, "Path to the ManifoldPlus executable")
		fs.IntVar(&c.ManifoldPlus.Depth, "depth", c.ManifoldPlus.Depth, "Octree depth passed to ManifoldPlus")
	}

	if groups&RunFlags != 0 {
		fs.IntVar(&c.Workers, "workers", c.Workers, "Number of samples converted concurrently")
		fs.StringVar(&c.Metrics.Textfile, "metrics_textfile", c.Metrics.Textfile, "Write Prometheus metrics to this file when done")
		fs.StringVar(&c.Metrics.Addr, "metrics_addr", c.Metrics.Addr, "Serve Prometheus metrics on this address while running")
	}
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := splitList(s)
	if len(parts) != n {
		return nil, fmt.Errorf("want %v comma-separated values, got %q", n, s)
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func formatFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// The flag values below may be called with a zero receiver by the flag
// package.

type stringList struct{ p *[]string }

func (v stringList) String() string {
	if v.p == nil {
		return ""
	}
	return strings.Join(*v.p, ",")
}

func (v stringList) Set(s string) error {
	*v.p = splitList(s)
	return nil
}

type floatList struct {
	p *[]float64
	n int
}

func (v floatList) String() string {
	if v.p == nil {
		return ""
	}
	return formatFloats(*v.p)
}

func (v floatList) Set(s string) error {
	vs, err := parseFloats(s, v.n)
	if err != nil {
		return err
	}
	*v.p = vs
	return nil
}

type floatPair struct{ a, b *float64 }

func (v floatPair) String() string {
	if v.a == nil {
		return ""
	}
	return formatFloats([]float64{*v.a, *v.b})
}

func (v floatPair) Set(s string) error {
	vs, err := parseFloats(s, 2)
	if err != nil {
		return err
	}
	*v.a, *v.b = vs[0], vs[1]
	return nil
}

type intPair struct{ a, b *int }

func (v intPair) String() string {
	if v.a == nil {
		return ""
	}
	return fmt.Sprintf("%v,%v", *v.a, *v.b)
}

func (v intPair) Set(s string) error {
	parts := splitList(s)
	if len(parts) != 2 {
		return fmt.Errorf("want 2 comma-separated integers, got %q", s)
	}
	a, err := strconv.Atoi(parts[0])
	if err != nil {
		return err
	}
	b, err := strconv.Atoi(parts[1])
	if err != nil {
		return err
	}
	*v.a, *v.b = a, b
	return nil
}

type debugFlag struct{ level *string }

func (v debugFlag) IsBoolFlag() bool { return true }

func (v debugFlag) String() string {
	if v.level == nil {
		return "false"
	}
	return strconv.FormatBool(*v.level == "debug")
}

func (v debugFlag) Set(s string) error {
	on, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if on {
		*v.level = "debug"
	}
	return nil
}

type pathToMeshes struct{ d *DatasetConfig }

func (v pathToMeshes) String() string {
	if v.d == nil || v.d.Type != string(dataset.Directory) {
		return ""
	}
	return v.d.Directory
}

func (v pathToMeshes) Set(s string) error {
	v.d.Directory = s
	v.d.Type = string(dataset.Directory)
	return nil
}
