// Package decimate reduces the face count of watertight mesh files with
// quadric edge collapse, refusing results that reopen the surface.
package decimate

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fogleman/simplify"
	"github.com/gmlewis/watertight/mesh"
	"github.com/gmlewis/watertight/meshio"
	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"
)

var (
	// ErrTopologyChanged is returned when decimation would open or
	// pinch the surface.
	ErrTopologyChanged = errors.New("decimation changed the mesh topology")
	// ErrQualityTooLow is returned when decimation would leave
	// triangles that are too thin.
	ErrQualityTooLow = errors.New("decimated triangle quality below threshold")
)

// Decimator rewrites a mesh file in place with fewer faces. sourceFaces
// is the face count of the mesh the file was built from; relative targets
// are fractions of it.
type Decimator interface {
	Decimate(ctx context.Context, path string, format meshio.Format, sourceFaces int) error
}

// Quadric decimates with fogleman/simplify. A rejected result leaves the
// file untouched; no cleanup of the mesh is ever attempted.
type Quadric struct {
	// TargetFaces takes precedence over TargetRatio when positive.
	TargetFaces int
	// TargetRatio is the fraction of the source mesh faces to keep.
	TargetRatio float64
	// QualityThreshold is the lowest acceptable ratio of the decimated
	// to the original mean triangle quality.
	QualityThreshold float64
	// PreserveTopology rejects results that are not watertight.
	PreserveTopology bool

	log      *zap.Logger
	simplify func(m *mesh.Mesh, factor float64) *mesh.Mesh
}

var _ Decimator = (*Quadric)(nil)

// NewQuadric returns a Quadric decimator with a quality threshold of 0.5
// and topology preservation enabled. A nil log discards output.
func NewQuadric(targetFaces int, targetRatio float64, log *zap.Logger) *Quadric {
	if log == nil {
		log = zap.NewNop()
	}
	return &Quadric{
		TargetFaces:      targetFaces,
		TargetRatio:      targetRatio,
		QualityThreshold: 0.5,
		PreserveTopology: true,
		log:              log.With(zap.String("component", "decimate")),
	}
}

// Target returns the number of faces to aim for given the face count of
// the source mesh.
func (q *Quadric) Target(sourceFaces int) int {
	if q.TargetFaces > 0 {
		return q.TargetFaces
	}
	return int(q.TargetRatio * float64(sourceFaces))
}

// Decimate implements Decimator.
func (q *Quadric) Decimate(ctx context.Context, path string, format meshio.Format, sourceFaces int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := meshio.LoadFormat(path, format)
	if err != nil {
		return fmt.Errorf("Decimate: %w", err)
	}

	out, err := q.Simplify(m, q.Target(sourceFaces))
	if err != nil {
		return fmt.Errorf("Decimate %v: %w", path, err)
	}
	if out == m {
		return nil
	}

	tmp := path + ".decimate"
	if err := meshio.Save(tmp, out, format); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("Decimate: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("Decimate: %w", err)
	}
	return nil
}

// Simplify returns m decimated to about target faces, or m itself when it
// already has no more faces than the target.
func (q *Quadric) Simplify(m *mesh.Mesh, target int) (*mesh.Mesh, error) {
	faces := m.NumFaces()
	if target <= 0 {
		return nil, fmt.Errorf("target face count %v must be positive", target)
	}
	if target >= faces {
		return m, nil
	}

	fn := q.simplify
	if fn == nil {
		fn = quadricSimplify
	}
	out := fn(m, float64(target)/float64(faces))

	log := q.log
	if log == nil {
		log = zap.NewNop()
	}
	if q.PreserveTopology && !out.IsWatertight() {
		log.Debug("rejected decimation", zap.Int("faces", out.NumFaces()), zap.Any("topology", out.Topology()))
		return nil, ErrTopologyChanged
	}
	before, after := m.MeanTriangleQuality(), out.MeanTriangleQuality()
	if after < q.QualityThreshold*before {
		return nil, fmt.Errorf("%w: %.3f < %v × %.3f", ErrQualityTooLow, after, q.QualityThreshold, before)
	}

	log.Debug("decimated mesh",
		zap.Int("faces_before", faces),
		zap.Int("faces_after", out.NumFaces()),
		zap.Float64("quality_before", before),
		zap.Float64("quality_after", after))
	return out, nil
}

func quadricSimplify(m *mesh.Mesh, factor float64) *mesh.Mesh {
	tris := make([]*simplify.Triangle, len(m.Faces))
	for i, f := range m.Faces {
		tris[i] = simplify.NewTriangle(vector(m.Vertices[f[0]]), vector(m.Vertices[f[1]]), vector(m.Vertices[f[2]]))
	}
	out := simplify.NewMesh(tris).Simplify(factor)

	soup := make([][3]mgl64.Vec3, 0, len(out.Triangles))
	for _, t := range out.Triangles {
		soup = append(soup, [3]mgl64.Vec3{vec3(t.V1), vec3(t.V2), vec3(t.V3)})
	}
	return mesh.FromTriangles(soup)
}

func vector(v mgl64.Vec3) simplify.Vector { return simplify.Vector{X: v[0], Y: v[1], Z: v[2]} }

func vec3(v simplify.Vector) mgl64.Vec3 { return mgl64.Vec3{v.X, v.Y, v.Z} }
