package dataset

import (
	"fmt"
	"os"

	"github.com/gmlewis/watertight/meshio"
	"go.uber.org/zap"
)

// Builder assembles a Collection from a dataset layout and its decorators.
// The zero value is not usable; call NewBuilder.
type Builder struct {
	typ        Type
	outputDir  string
	format     meshio.Format
	tags       []string
	categories []string
	fraction   float64
	seed       int64
	cacheSize  int
	log        *zap.Logger
}

// NewBuilder returns a Builder for the shapenet_v1 layout writing OBJ
// artifacts next to their sources.
func NewBuilder() *Builder {
	return &Builder{typ: ShapeNetV1, format: meshio.OBJ, fraction: 1, log: zap.NewNop()}
}

// WithDataset selects the dataset layout.
func (b *Builder) WithDataset(t Type) *Builder { b.typ = t; return b }

// WithOutputDir places watertight artifacts under dir instead of next to
// their sources.
func (b *Builder) WithOutputDir(dir string) *Builder { b.outputDir = dir; return b }

// WithFileType selects the artifact format.
func (b *Builder) WithFileType(f meshio.Format) *Builder { b.format = f; return b }

// FilterTags keeps only the given tags. An empty list keeps everything.
func (b *Builder) FilterTags(tags []string) *Builder { b.tags = tags; return b }

// FilterCategories keeps only the given categories. An empty list keeps
// everything.
func (b *Builder) FilterCategories(categories []string) *Builder {
	b.categories = categories
	return b
}

// RandomSubset keeps a seeded random fraction of the samples.
func (b *Builder) RandomSubset(fraction float64, seed int64) *Builder {
	b.fraction, b.seed = fraction, seed
	return b
}

// LRUCache keeps up to n loaded meshes in memory. Zero disables caching.
func (b *Builder) LRUCache(n int) *Builder { b.cacheSize = n; return b }

// WithLogger sets the logger. A nil log discards output.
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	b.log = log
	return b
}

// Build scans dir and applies, in order, the mesh cache, the tag filter,
// the category filter and the random subset.
func (b *Builder) Build(dir string) (Collection, error) {
	scan, ok := scanners[b.typ]
	if !ok {
		return nil, fmt.Errorf("Build: unknown dataset type %q", b.typ)
	}
	format, err := meshio.ParseFormat(string(b.format))
	if err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	}
	if fi, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	} else if !fi.IsDir() {
		return nil, fmt.Errorf("Build: %v is not a directory", dir)
	}

	log := b.log.With(zap.String("component", "dataset"), zap.String("dataset_type", string(b.typ)))
	samples, err := scan(dir, layout{outputDir: b.outputDir, format: format})
	if err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	}
	log.Info("found models", zap.Int("count", len(samples)), zap.String("dir", dir))

	var c Collection = List(samples)
	if b.cacheSize > 0 {
		c = NewMeshCache(c, b.cacheSize)
	}
	if len(b.tags) > 0 {
		prev := c.Len()
		c = TagSubset(c, b.tags)
		log.Info("filtered by tags", zap.Int("kept", c.Len()), zap.Int("total", prev))
	}
	if len(b.categories) > 0 {
		prev := c.Len()
		c = CategorySubset(c, b.categories)
		log.Info("filtered by categories", zap.Int("kept", c.Len()), zap.Int("total", prev))
	}
	if b.fraction < 1 {
		prev := c.Len()
		if c, err = RandomSubset(c, b.fraction, b.seed); err != nil {
			return nil, fmt.Errorf("Build: %w", err)
		}
		log.Info("random subset", zap.Int("kept", c.Len()), zap.Int("total", prev))
	}
	return c, nil
}
