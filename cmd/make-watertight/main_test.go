package main

import (
	"flag"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/gmlewis/watertight/config"
	"github.com/gmlewis/watertight/dataset"
	"github.com/gmlewis/watertight/internal/cli"
	"github.com/gmlewis/watertight/mesh"
	"github.com/gmlewis/watertight/meshio"
	"github.com/gmlewis/watertight/pipeline"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags() *config.Flags {
	return config.NewFlags(flag.NewFlagSet("make-watertight", flag.ContinueOnError), config.ConvertFlags)
}

func TestRun(t *testing.T) {
	cli.Stderr = io.Discard
	dir := t.TempDir()
	src := filepath.Join(dir, "box.obj")
	require.NoError(t, meshio.Save(src, mesh.Box(mgl64.Vec3{1, 1, 1}, mgl64.Vec3{3, 2, 2}), meshio.OBJ))
	out := filepath.Join(dir, "out")

	require.NoError(t, run(newFlags(), src, out))

	m, err := meshio.Load(filepath.Join(out, dataset.WatertightBase+".obj"))
	require.NoError(t, err)
	assert.True(t, m.IsWatertight())
	min, max := m.Bounds()
	assert.InDelta(t, -0.5, min[0], 1e-9)
	assert.InDelta(t, 0.5, max[0], 1e-9)
}

func TestRunReturnsErrors(t *testing.T) {
	cli.Stderr = io.Discard
	dir := t.TempDir()
	out := filepath.Join(dir, "out")

	err := run(newFlags(), filepath.Join(dir, "missing.obj"), out)
	require.Error(t, err)

	// The lock is released on the way out.
	_, err = os.Stat(filepath.Join(out, dataset.WatertightBase+".obj"+pipeline.LockSuffix))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
