package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gmlewis/watertight/config"
	"github.com/gmlewis/watertight/watertight"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	Stderr = &buf
	cfg := config.Default()
	log, err := NewLogger(cfg)
	require.NoError(t, err)
	log.Info("hello")
	assert.Contains(t, buf.String(), "hello")

	cfg.Logging.Level = "nope"
	_, err = NewLogger(cfg)
	assert.Error(t, err)
}

func TestNewTransformer(t *testing.T) {
	cfg := config.Default()
	cfg.TSDF.Resolution = 16
	cfg.TSDF.NViews = 4
	tr, done, err := NewTransformer(cfg, watertight.TSDFOptions{Workers: 2}, nil)
	require.NoError(t, err)
	defer done()
	f, ok := tr.(*watertight.TSDFFusion)
	require.True(t, ok)
	assert.Len(t, f.Views(), 4)

	cfg.TSDF.Rasterizer = "vulkan"
	_, _, err = NewTransformer(cfg, watertight.TSDFOptions{}, nil)
	var ce *watertight.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "rasterizer", ce.Param)

	cfg.Method = "manifoldplus"
	_, _, err = NewTransformer(cfg, watertight.TSDFOptions{}, nil)
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "manifoldplus_script", ce.Param)
}
