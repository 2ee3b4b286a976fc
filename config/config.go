// Package config holds the settings of the command-line tools, loaded
// with priority defaults < file < flags.
package config

import (
	"fmt"

	"github.com/gmlewis/watertight/camera"
	"github.com/gmlewis/watertight/dataset"
	"github.com/gmlewis/watertight/decimate"
	"github.com/gmlewis/watertight/logger"
	"github.com/gmlewis/watertight/meshio"
	"github.com/gmlewis/watertight/watertight"
	"go.uber.org/zap"
)

// Config holds every setting.
type Config struct {
	Dataset      DatasetConfig      `yaml:"dataset" toml:"dataset"`
	Output       OutputConfig       `yaml:"output" toml:"output"`
	Method       string             `yaml:"method" toml:"method"`
	TSDF         TSDFConfig         `yaml:"tsdf" toml:"tsdf"`
	ManifoldPlus ManifoldPlusConfig `yaml:"manifoldplus" toml:"manifoldplus"`
	Simplify     SimplifyConfig     `yaml:"simplify" toml:"simplify"`
	Workers      int                `yaml:"workers" toml:"workers"`
	Logging      LoggingConfig      `yaml:"logging" toml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics" toml:"metrics"`
}

// DatasetConfig selects the source meshes.
type DatasetConfig struct {
	Directory    string   `yaml:"directory" toml:"directory"`
	Type         string   `yaml:"type" toml:"type"`
	ModelTags    []string `yaml:"model_tags,omitempty" toml:"model_tags,omitempty"`
	CategoryTags []string `yaml:"category_tags,omitempty" toml:"category_tags,omitempty"`
	RandomSubset float64  `yaml:"random_subset" toml:"random_subset"`
	Seed         int64    `yaml:"seed" toml:"seed"`
	CacheSize    int      `yaml:"cache_size" toml:"cache_size"`
}

// OutputConfig places and normalizes the artifacts.
type OutputConfig struct {
	Dir      string `yaml:"dir" toml:"dir"`
	FileType string `yaml:"file_type" toml:"file_type"`
	UnitCube bool   `yaml:"unit_cube" toml:"unit_cube"`
	// BBox is x0,y0,z0,x1,y1,z1 or empty.
	BBox                []float64 `yaml:"bbox,omitempty" toml:"bbox,omitempty"`
	SkipWatertightCheck bool      `yaml:"skip_watertight_check" toml:"skip_watertight_check"`
}

// TSDFConfig holds the tsdf_fusion parameters.
type TSDFConfig struct {
	NViews            int     `yaml:"n_views" toml:"n_views"`
	ImageHeight       int     `yaml:"image_height" toml:"image_height"`
	ImageWidth        int     `yaml:"image_width" toml:"image_width"`
	Fx                float64 `yaml:"fx" toml:"fx"`
	Fy                float64 `yaml:"fy" toml:"fy"`
	Cx                float64 `yaml:"cx" toml:"cx"`
	Cy                float64 `yaml:"cy" toml:"cy"`
	Resolution        int     `yaml:"resolution" toml:"resolution"`
	TruncationFactor  float64 `yaml:"truncation_factor" toml:"truncation_factor"`
	DepthOffsetFactor float64 `yaml:"depth_offset_factor" toml:"depth_offset_factor"`
	// Rasterizer is "cpu" or "gl".
	Rasterizer string `yaml:"rasterizer" toml:"rasterizer"`
}

// ManifoldPlusConfig holds the manifoldplus parameters.
type ManifoldPlusConfig struct {
	Script string `yaml:"script" toml:"script"`
	Depth  int    `yaml:"depth" toml:"depth"`
}

// SimplifyConfig holds the decimation parameters.
type SimplifyConfig struct {
	Enabled          bool    `yaml:"enabled" toml:"enabled"`
	TargetFaces      int     `yaml:"num_target_faces" toml:"num_target_faces"`
	TargetRatio      float64 `yaml:"ratio_target_faces" toml:"ratio_target_faces"`
	QualityThreshold float64 `yaml:"quality_threshold" toml:"quality_threshold"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string            `yaml:"level" toml:"level"`
	File  logger.FileConfig `yaml:"file" toml:"file"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Namespace string `yaml:"namespace" toml:"namespace"`
	Textfile  string `yaml:"textfile" toml:"textfile"`
	Addr      string `yaml:"addr" toml:"addr"`
}

// Rasterizer names.
const (
	RasterizerCPU = "cpu"
	RasterizerGL  = "gl"
)

// Default returns a Config with default values.
func Default() *Config {
	tsdf := watertight.DefaultTSDFOptions()
	in := tsdf.Intrinsics
	return &Config{
		Dataset: DatasetConfig{
			Type:         string(dataset.ShapeNetV1),
			RandomSubset: 1,
		},
		Output: OutputConfig{
			FileType: string(meshio.OBJ),
		},
		Method: string(watertight.MethodTSDFFusion),
		TSDF: TSDFConfig{
			NViews:            tsdf.NViews,
			ImageHeight:       in.Height,
			ImageWidth:        in.Width,
			Fx:                in.Fx,
			Fy:                in.Fy,
			Cx:                in.Cx,
			Cy:                in.Cy,
			Resolution:        tsdf.Resolution,
			TruncationFactor:  tsdf.TruncationFactor,
			DepthOffsetFactor: tsdf.DepthOffsetFactor,
			Rasterizer:        RasterizerCPU,
		},
		ManifoldPlus: ManifoldPlusConfig{
			Depth: watertight.DefaultManifoldPlusDepth,
		},
		Simplify: SimplifyConfig{
			QualityThreshold: 0.5,
		},
		Workers: 1,
		Logging: LoggingConfig{
			Level: "info",
			File:  logger.DefaultFileConfig(""),
		},
		Metrics: MetricsConfig{
			Namespace: "watertight",
		},
	}
}

func configErrorf(param, format string, args ...interface{}) error {
	return &watertight.ConfigurationError{Param: param, Reason: fmt.Sprintf(format, args...)}
}

// Validate returns a *watertight.ConfigurationError for the first invalid
// setting. Parameters of the unselected method are not checked.
func (c *Config) Validate() error {
	if _, err := dataset.ParseType(c.Dataset.Type); err != nil {
		return configErrorf("dataset_type", "%v", err)
	}
	if r := c.Dataset.RandomSubset; r <= 0 || r > 1 {
		return configErrorf("random_subset", "must be in (0,1], got %v", r)
	}
	if c.Dataset.CacheSize < 0 {
		return configErrorf("cache_size", "must not be negative, got %v", c.Dataset.CacheSize)
	}
	if _, err := meshio.ParseFormat(c.Output.FileType); err != nil {
		return configErrorf("file_type", "%v", err)
	}
	if b := c.Output.BBox; len(b) > 0 {
		if len(b) != 6 {
			return configErrorf("bbox", "want 6 values x0,y0,z0,x1,y1,z1, got %v", len(b))
		}
		if b[3] <= b[0] || b[4] <= b[1] || b[5] <= b[2] {
			return configErrorf("bbox", "max corner %v must exceed min corner %v", b[3:], b[:3])
		}
	}
	if c.Workers <= 0 {
		return configErrorf("workers", "must be positive, got %v", c.Workers)
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return configErrorf("log_level", "%v", err)
	}

	switch watertight.Method(c.Method) {
	case watertight.MethodTSDFFusion:
		if err := c.TSDFOptions().Validate(); err != nil {
			return err
		}
		if r := c.TSDF.Rasterizer; r != RasterizerCPU && r != RasterizerGL {
			return configErrorf("rasterizer", "want %q or %q, got %q", RasterizerCPU, RasterizerGL, r)
		}
	case watertight.MethodManifoldPlus:
		if c.ManifoldPlus.Script == "" {
			return configErrorf("manifoldplus_script", "required by the manifoldplus method")
		}
		if c.ManifoldPlus.Depth <= 0 {
			return configErrorf("depth", "must be positive, got %v", c.ManifoldPlus.Depth)
		}
	default:
		return configErrorf("method", "unknown method %q, want %q or %q", c.Method, watertight.MethodTSDFFusion, watertight.MethodManifoldPlus)
	}

	if s := c.Simplify; s.Enabled {
		if s.TargetFaces <= 0 && (s.TargetRatio <= 0 || s.TargetRatio >= 1) {
			return configErrorf("num_target_faces", "simplification needs a positive face count or a ratio in (0,1)")
		}
		if s.QualityThreshold < 0 || s.QualityThreshold > 1 {
			return configErrorf("quality_threshold", "must be in [0,1], got %v", s.QualityThreshold)
		}
	}
	return nil
}

// Format returns the artifact format. Call Validate first.
func (c *Config) Format() meshio.Format {
	f, _ := meshio.ParseFormat(c.Output.FileType)
	return f
}

// BBoxArray returns the normalization box, or nil if none is set.
func (c *Config) BBoxArray() *[6]float64 {
	if len(c.Output.BBox) != 6 {
		return nil
	}
	var b [6]float64
	copy(b[:], c.Output.BBox)
	return &b
}

// Intrinsics returns the camera intrinsics.
func (c *Config) Intrinsics() camera.Intrinsics {
	t := c.TSDF
	return camera.Intrinsics{Fx: t.Fx, Fy: t.Fy, Cx: t.Cx, Cy: t.Cy, Width: t.ImageWidth, Height: t.ImageHeight}
}

// TSDFOptions returns the tsdf_fusion options. The rasterizer is left
// for the caller to set.
func (c *Config) TSDFOptions() watertight.TSDFOptions {
	return watertight.TSDFOptions{
		Intrinsics:        c.Intrinsics(),
		Resolution:        c.TSDF.Resolution,
		TruncationFactor:  c.TSDF.TruncationFactor,
		DepthOffsetFactor: c.TSDF.DepthOffsetFactor,
		NViews:            c.TSDF.NViews,
	}
}

// ManifoldPlusOptions returns the manifoldplus options.
func (c *Config) ManifoldPlusOptions() watertight.ManifoldPlusOptions {
	return watertight.ManifoldPlusOptions{Script: c.ManifoldPlus.Script, Depth: c.ManifoldPlus.Depth}
}

// Decimator returns the configured decimator, or nil when simplification
// is disabled.
func (c *Config) Decimator(log *zap.Logger) decimate.Decimator {
	s := c.Simplify
	if !s.Enabled {
		return nil
	}
	q := decimate.NewQuadric(s.TargetFaces, s.TargetRatio, log)
	q.QualityThreshold = s.QualityThreshold
	return q
}

// DatasetBuilder returns a dataset builder with the configured layout
// and filters.
func (c *Config) DatasetBuilder(log *zap.Logger) *dataset.Builder {
	d := c.Dataset
	return dataset.NewBuilder().
		WithDataset(dataset.Type(d.Type)).
		WithOutputDir(c.Output.Dir).
		WithFileType(c.Format()).
		FilterTags(d.ModelTags).
		FilterCategories(d.CategoryTags).
		RandomSubset(d.RandomSubset, d.Seed).
		LRUCache(d.CacheSize).
		WithLogger(log)
}
