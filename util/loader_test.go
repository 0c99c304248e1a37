package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-tld/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o600))
	}
}

func TestLoadFrameFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "frame-10.jpg", "frame-2.png", "frame-1.webp", "3.JPEG", "notes.txt")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "frame-4.jpg"), 0o700))

	frames, err := LoadFrameFiles(dir)
	require.NoError(t, err)
	require.Len(t, frames, 4)

	var indices []int
	for _, f := range frames {
		indices = append(indices, f.Index)
		assert.Equal(t, filepath.Base(f.Path), string(f.Data))
	}
	assert.Equal(t, []int{1, 2, 3, 10}, indices)
	assert.Equal(t, images.FormatWebP, frames[0].Format)
	assert.Equal(t, images.FormatPNG, frames[1].Format)
	assert.Equal(t, images.FormatJPEG, frames[2].Format)
}

func TestLoadFrameFiles_Errors(t *testing.T) {
	_, err := LoadFrameFiles(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	dir := t.TempDir()
	writeFiles(t, dir, "frame-x.jpg")
	_, err = LoadFrameFiles(dir)
	assert.Error(t, err)
}
