// Package dataset enumerates the source meshes of a model collection and
// the paths their watertight counterparts are written to.
package dataset

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gmlewis/watertight/mesh"
	"github.com/gmlewis/watertight/meshio"
)

// Sample is one source model of a collection.
type Sample interface {
	// Tag uniquely identifies the sample within its collection.
	Tag() string
	Category() string
	MeshPath() string
	// WatertightPath is where the watertight artifact is written.
	WatertightPath() string
	// Mesh loads the source mesh. It is read on every call unless the
	// collection is wrapped in a MeshCache.
	Mesh() (*mesh.Mesh, error)
}

// Collection is an indexed, read-only list of samples.
type Collection interface {
	Len() int
	Get(i int) Sample
}

// List is a Collection backed by a slice.
type List []Sample

// Len implements Collection.
func (l List) Len() int { return len(l) }

// Get implements Collection.
func (l List) Get(i int) Sample { return l[i] }

// Type names a dataset layout.
type Type string

const (
	ShapeNetV1       Type = "shapenet_v1"
	DynamicFaust     Type = "dynamic_faust"
	FreiHand         Type = "freihand"
	TurbosquidAnimal Type = "turbosquid_animal"
	Directory        Type = "directory"
)

// Types lists every supported dataset layout.
var Types = []Type{ShapeNetV1, DynamicFaust, FreiHand, TurbosquidAnimal, Directory}

// ParseType returns the Type named s.
func ParseType(s string) (Type, error) {
	for _, t := range Types {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown dataset type %q", s)
}

// WatertightBase is the file name stem of watertight artifacts.
const WatertightBase = "model_watertight"

type sample struct {
	tag            string
	category       string
	meshPath       string
	watertightPath string
}

var _ Sample = (*sample)(nil)

// NewSample returns a Sample with explicit paths.
func NewSample(tag, category, meshPath, watertightPath string) Sample {
	return &sample{tag: tag, category: category, meshPath: meshPath, watertightPath: watertightPath}
}

func (s *sample) Tag() string               { return s.tag }
func (s *sample) Category() string          { return s.category }
func (s *sample) MeshPath() string          { return s.meshPath }
func (s *sample) WatertightPath() string    { return s.watertightPath }
func (s *sample) Mesh() (*mesh.Mesh, error) { return meshio.Load(s.meshPath) }

// layout places watertight artifacts.
type layout struct {
	outputDir string
	format    meshio.Format
}

// path returns the artifact path for a sample. With an output directory
// the tag becomes a directory, ':' separating levels. Otherwise the
// artifact sits next to its source: in the same directory when the source
// owns it, or beside the source file with a "_watertight" suffix when
// several sources share one directory.
func (l layout) path(tag, meshPath string, shared bool) string {
	ext := l.format.Ext()
	if l.outputDir != "" {
		rel := filepath.FromSlash(strings.ReplaceAll(tag, ":", "/"))
		return filepath.Join(l.outputDir, rel, WatertightBase+ext)
	}
	if shared {
		return strings.TrimSuffix(meshPath, filepath.Ext(meshPath)) + "_watertight" + ext
	}
	return filepath.Join(filepath.Dir(meshPath), WatertightBase+ext)
}

func isWatertightArtifact(name string) bool {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return stem == WatertightBase || strings.HasSuffix(stem, "_watertight")
}
