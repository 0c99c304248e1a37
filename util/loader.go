package util

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nvr-ai/go-tld/images"
	"github.com/pkg/errors"
)

// FrameFile is one encoded frame of a recorded sequence.
type FrameFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Index is the frame number parsed from the file name.
	Index int
	// Format is the encoding guessed from the extension.
	Format images.ImageFormat
}

// frameExtensions lists the encodings the loader picks up.
var frameExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".webp": true,
}

// LoadFrameFiles reads a directory of frames named "frame-N.<ext>" (or just
// "N.<ext>") and returns them ordered by frame number. Other files are ignored.
//
// Arguments:
//   - dir: Directory path containing the frames.
//
// Returns:
//   - []FrameFile: The frames, ascending by Index.
//   - error: Error if the directory or a frame cannot be read, or a frame name
//     carries no number.
func LoadFrameFiles(dir string) ([]FrameFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read frame directory %s", dir)
	}

	var frames []FrameFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !frameExtensions[ext] {
			continue
		}

		index, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSuffix(name, filepath.Ext(name)), "frame-"))
		if err != nil {
			return nil, errors.Wrapf(err, "frame number of %s", name)
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read frame %s", path)
		}
		frames = append(frames, FrameFile{
			Path:   path,
			Data:   data,
			Index:  index,
			Format: images.FormatFromPath(path),
		})
	}

	sort.Slice(frames, func(i, j int) bool {
		return frames[i].Index < frames[j].Index
	})

	return frames, nil
}
