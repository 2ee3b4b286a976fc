package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gmlewis/watertight/mesh"
	"github.com/gmlewis/watertight/meshio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCube(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := meshio.FormatFromPath(path)
	require.NoError(t, err)
	require.NoError(t, meshio.Save(path, mesh.UnitCube(), f))
}

func tags(c Collection) []string {
	var out []string
	for i := 0; i < c.Len(); i++ {
		out = append(out, c.Get(i).Tag())
	}
	return out
}

func TestShapeNetV1(t *testing.T) {
	base := t.TempDir()
	for _, tag := range []string{"chair/b", "chair/a", "table/c"} {
		writeCube(t, filepath.Join(base, filepath.FromSlash(tag), "model.obj"))
	}

	c, err := NewBuilder().WithDataset(ShapeNetV1).Build(base)
	require.NoError(t, err)
	assert.Equal(t, []string{"chair:a", "chair:b", "table:c"}, tags(c))

	s := c.Get(0)
	assert.Equal(t, "chair", s.Category())
	assert.Equal(t, filepath.Join(base, "chair", "a", "model.obj"), s.MeshPath())
	assert.Equal(t, filepath.Join(base, "chair", "a", "model_watertight.obj"), s.WatertightPath())
	m, err := s.Mesh()
	require.NoError(t, err)
	assert.Equal(t, 12, m.NumFaces())

	out := t.TempDir()
	c, err = NewBuilder().WithOutputDir(out).WithFileType(meshio.OFF).Build(base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "table", "c", "model_watertight.off"), c.Get(2).WatertightPath())
}

func TestDynamicFaust(t *testing.T) {
	base := t.TempDir()
	for i := 0; i < DynamicFaustSkip+3; i++ {
		writeCube(t, filepath.Join(base, "50002", "mesh_seq", fmt.Sprintf("%05d.obj", i)))
	}
	for i := 0; i < DynamicFaustSkip; i++ {
		writeCube(t, filepath.Join(base, "50004", "mesh_seq", fmt.Sprintf("%05d.obj", i)))
	}

	c, err := NewBuilder().WithDataset(DynamicFaust).Build(base)
	require.NoError(t, err)
	assert.Equal(t, []string{"50002:00020", "50002:00021", "50002:00022"}, tags(c))
	assert.Equal(t, "50002", c.Get(0).Category())
	assert.Equal(t, filepath.Join(base, "50002", "mesh_seq", "00020_watertight.obj"), c.Get(0).WatertightPath())
}

func TestFreiHandAndTurbosquid(t *testing.T) {
	base := t.TempDir()
	writeCube(t, filepath.Join(base, "00000001.obj"))
	writeCube(t, filepath.Join(base, "00000000.obj"))
	writeCube(t, filepath.Join(base, "00000000_watertight.obj"))

	c, err := NewBuilder().WithDataset(FreiHand).Build(base)
	require.NoError(t, err)
	assert.Equal(t, []string{"00000000", "00000001"}, tags(c))
	assert.Equal(t, "", c.Get(0).Category())

	base = t.TempDir()
	writeCube(t, filepath.Join(base, "cat", "model.obj"))
	writeCube(t, filepath.Join(base, "dog", "model.obj"))
	c, err = NewBuilder().WithDataset(TurbosquidAnimal).Build(base)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog"}, tags(c))
	assert.Equal(t, filepath.Join(base, "dog", "model_watertight.obj"), c.Get(1).WatertightPath())
}

func TestDirectory(t *testing.T) {
	base := t.TempDir()
	writeCube(t, filepath.Join(base, "a.obj"))
	writeCube(t, filepath.Join(base, "sub", "b.off"))
	writeCube(t, filepath.Join(base, "sub", "c.stl"))
	writeCube(t, filepath.Join(base, "sub", "c_watertight.obj"))
	writeCube(t, filepath.Join(base, "x", "model_watertight.off"))
	require.NoError(t, os.Mkdir(filepath.Join(base, "sub", "d_watertight.obj.lock"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "notes.txt"), []byte("hi"), 0644))

	c, err := NewBuilder().WithDataset(Directory).Build(base)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "sub/b", "sub/c"}, tags(c))
	assert.Equal(t, "", c.Get(0).Category())
	assert.Equal(t, "sub", c.Get(1).Category())
	assert.Equal(t, filepath.Join(base, "sub", "c_watertight.obj"), c.Get(2).WatertightPath())

	out := t.TempDir()
	c, err = NewBuilder().WithDataset(Directory).WithOutputDir(out).Build(base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "sub", "b", "model_watertight.obj"), c.Get(1).WatertightPath())
}

func TestBuildErrors(t *testing.T) {
	base := t.TempDir()
	tests := []struct {
		name string
		b    *Builder
		dir  string
	}{
		{name: "unknown type", b: NewBuilder().WithDataset("nope"), dir: base},
		{name: "bad format", b: NewBuilder().WithFileType("ply"), dir: base},
		{name: "missing dir", b: NewBuilder(), dir: filepath.Join(base, "missing")},
		{name: "bad fraction", b: NewBuilder().RandomSubset(0, 1), dir: base},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("test #%v: %v", i, tt.name), func(t *testing.T) {
			_, err := tt.b.Build(tt.dir)
			assert.Error(t, err)
		})
	}
}

func TestParseType(t *testing.T) {
	for _, typ := range Types {
		got, err := ParseType(string(typ))
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := ParseType("3d_future")
	assert.Error(t, err)
}

func listOf(tagsAndCats ...string) List {
	var l List
	for i := 0; i < len(tagsAndCats); i += 2 {
		l = append(l, NewSample(tagsAndCats[i], tagsAndCats[i+1], "", ""))
	}
	return l
}

func TestSubsets(t *testing.T) {
	l := listOf("a:1", "a", "a:2", "a", "b:1", "b", "c:1", "c")

	assert.Equal(t, []string{"a:2", "c:1"}, tags(TagSubset(l, []string{"c:1", "a:2", "zzz"})))
	assert.Equal(t, []string{"a:1", "a:2", "c:1"}, tags(CategorySubset(l, []string{"a", "c"})))
	assert.Equal(t, 0, TagSubset(l, nil).Len())

	chained := CategorySubset(TagSubset(l, []string{"a:1", "b:1"}), []string{"b"})
	assert.Equal(t, []string{"b:1"}, tags(chained))
}

func TestRandomSubset(t *testing.T) {
	var l List
	for i := 0; i < 100; i++ {
		l = append(l, NewSample(fmt.Sprintf("m%03d", i), "", "", ""))
	}

	s, err := RandomSubset(l, 0.3, 42)
	require.NoError(t, err)
	got := tags(s)
	assert.Len(t, got, 30)
	assert.IsIncreasing(t, got)

	again, err := RandomSubset(l, 0.3, 42)
	require.NoError(t, err)
	assert.Equal(t, got, tags(again))

	all, err := RandomSubset(l, 1, 7)
	require.NoError(t, err)
	assert.Equal(t, tags(l), tags(all))

	_, err = RandomSubset(l, 1.5, 7)
	assert.Error(t, err)
}

type countingSample struct {
	Sample
	mu    sync.Mutex
	loads int
}

func (s *countingSample) Mesh() (*mesh.Mesh, error) {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()
	return mesh.UnitCube(), nil
}

func TestMeshCache(t *testing.T) {
	var samples []*countingSample
	var l List
	for _, tag := range []string{"a", "b", "c"} {
		s := &countingSample{Sample: NewSample(tag, "", "", "")}
		samples = append(samples, s)
		l = append(l, s)
	}

	mc := NewMeshCache(l, 2)
	assert.Equal(t, 3, mc.Len())
	get := func(i int) {
		_, err := mc.Get(i).Mesh()
		require.NoError(t, err)
	}

	get(0)
	get(1)
	get(0) // hit; b is now least recently used
	get(2) // evicts b
	get(0) // hit
	get(1) // reload

	assert.Equal(t, 1, samples[0].loads)
	assert.Equal(t, 2, samples[1].loads)
	assert.Equal(t, 1, samples[2].loads)
	hits, misses := mc.Stats()
	assert.Equal(t, 2, hits)
	assert.Equal(t, 4, misses)
	assert.Equal(t, "c", mc.Get(2).Tag())
}

func TestMeshCacheConcurrent(t *testing.T) {
	s := &countingSample{Sample: NewSample("a", "", "", "")}
	mc := NewMeshCache(List{s}, 4)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := mc.Get(0).Mesh()
			assert.NoError(t, err)
			assert.Equal(t, 12, m.NumFaces())
		}()
	}
	wg.Wait()
	hits, misses := mc.Stats()
	assert.Equal(t, 16, hits+misses)
}

func TestBuilderCacheAndFilters(t *testing.T) {
	base := t.TempDir()
	for _, tag := range []string{"chair/a", "chair/b", "table/c", "table/d"} {
		writeCube(t, filepath.Join(base, filepath.FromSlash(tag), "model.obj"))
	}

	c, err := NewBuilder().
		LRUCache(8).
		FilterTags([]string{"chair:a", "table:c", "table:d"}).
		FilterCategories([]string{"table"}).
		WithLogger(nil).
		Build(base)
	require.NoError(t, err)
	assert.Equal(t, []string{"table:c", "table:d"}, tags(c))

	m1, err := c.Get(0).Mesh()
	require.NoError(t, err)
	m2, err := c.Get(0).Mesh()
	require.NoError(t, err)
	assert.Same(t, m1, m2)
}
