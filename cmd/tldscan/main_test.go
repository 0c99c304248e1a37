package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-tld/config"
	"github.com/nvr-ai/go-tld/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	w, h, err := parseSize("40x30")
	require.NoError(t, err)
	assert.Equal(t, 40, w)
	assert.Equal(t, 30, h)

	for _, bad := range []string{"40", "ax3", "4x", "1x2x3"} {
		_, _, err := parseSize(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseBox(t *testing.T) {
	box, err := parseBox("10, 20, 30, 40")
	require.NoError(t, err)
	assert.Equal(t, images.Rect{X1: 10, Y1: 20, X2: 40, Y2: 60}, box)

	for _, bad := range []string{"1,2,3", "1,2,0,4", "a,b,c,d"} {
		_, err := parseBox(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cascade.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: opencv\nworkers: 2\n"), 0o600))

	cfg, err := loadConfig(options{
		configPath:  path,
		object:      "24x32",
		workers:     -1,
		minVariance: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, "opencv", cfg.Backend)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 24, cfg.Object.Width)
	assert.Equal(t, 32, cfg.Object.Height)
	assert.Equal(t, 5.0, cfg.Variance.MinVariance)

	_, err = loadConfig(options{backend: "cuda", workers: -1, minVariance: -1})
	assert.Error(t, err)
}

func TestLoadConfig_Size(t *testing.T) {
	cfg, err := loadConfig(options{size: "320x240", workers: -1, minVariance: -1})
	require.NoError(t, err)
	assert.Equal(t, config.Image{Width: 320, Height: 240, Stride: 320}, cfg.Image)

	_, err = loadConfig(options{size: "320", workers: -1, minVariance: -1})
	assert.Error(t, err)
}

func TestNewDirectorySource_Thumbnail(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "frame-1.jpg"), []byte("jpg"), 0o600))

	_, err := newDirectorySource(dir, 0, 0, true)
	assert.Error(t, err, "no target size")

	src, err := newDirectorySource(dir, 160, 120, true)
	require.NoError(t, err)
	assert.True(t, src.thumbnail)
	assert.Len(t, src.files, 1)

	_, err = newDirectorySource(t.TempDir(), 0, 0, false)
	assert.Error(t, err, "empty directory")
}
