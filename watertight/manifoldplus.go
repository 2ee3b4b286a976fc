package watertight

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gmlewis/watertight/mesh"
	"github.com/gmlewis/watertight/meshio"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ManifoldPlusOptions configures the external repair tool.
type ManifoldPlusOptions struct {
	// Script is the path to the ManifoldPlus executable.
	Script string
	// Depth is the octree depth passed to the tool.
	Depth int
	// TempDir holds the intermediate files; empty means os.TempDir().
	TempDir string

	Log *zap.Logger
}

// DefaultManifoldPlusDepth is the default octree depth.
const DefaultManifoldPlusDepth = 10

// ManifoldPlus runs
//
//	<script> --input <in> --output <out> --depth <n>
//
// on a temporary copy of the mesh and loads the result.
type ManifoldPlus struct {
	script string
	opts   ManifoldPlusOptions
	log    *zap.Logger
}

var _ Transformer = (*ManifoldPlus)(nil)

// NewManifoldPlus checks that the script can be executed.
func NewManifoldPlus(opts ManifoldPlusOptions) (*ManifoldPlus, error) {
	if opts.Script == "" {
		return nil, configErrorf("manifoldplus_script", "required by the manifoldplus method")
	}
	script, err := exec.LookPath(opts.Script)
	if err != nil {
		return nil, configErrorf("manifoldplus_script", "%v", err)
	}
	if opts.Depth <= 0 {
		return nil, configErrorf("depth", "must be positive, got %v", opts.Depth)
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &ManifoldPlus{
		script: script,
		opts:   opts,
		log:    log.With(zap.String("component", "manifoldplus")),
	}, nil
}

// ToWatertight implements Transformer.
func (mp *ManifoldPlus) ToWatertight(ctx context.Context, m *mesh.Mesh, outputPath string, format meshio.Format) (*mesh.Mesh, error) {
	start := time.Now()
	dir := mp.opts.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	id := uuid.NewString()
	input := filepath.Join(dir, "manifoldplus-"+id+"-input"+format.Ext())
	output := filepath.Join(dir, "manifoldplus-"+id+"-output"+format.Ext())
	defer os.Remove(input)
	defer os.Remove(output)

	if err := meshio.Save(input, m, format); err != nil {
		return nil, fmt.Errorf("ToWatertight: %w", err)
	}

	args := []string{"--input", input, "--output", output, "--depth", strconv.Itoa(mp.opts.Depth)}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, mp.script, args...)
	cmd.Stdout = nil // discarded
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return nil, &ExternalToolError{Tool: mp.script, Args: args, ExitCode: code, Stderr: stderr.String(), Err: err}
	}

	out, err := meshio.LoadFormat(output, format)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &ExternalToolError{Tool: mp.script, Args: args, Stderr: stderr.String(), Err: errors.New("no output file was written")}
	}
	if err != nil {
		return nil, &ExternalToolError{Tool: mp.script, Args: args, Stderr: stderr.String(), Err: err}
	}

	if outputPath != "" {
		if err := meshio.Save(outputPath, out, format); err != nil {
			return nil, fmt.Errorf("ToWatertight: %w", err)
		}
	}
	mp.log.Debug("repaired mesh",
		zap.Int("depth", mp.opts.Depth),
		zap.Int("faces", out.NumFaces()),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}
