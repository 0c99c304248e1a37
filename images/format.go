package images

import (
	"path/filepath"
	"strings"
)

// ImageFormat represents supported encoded frame formats.
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)

// FormatFromPath guesses the encoded format from a file extension.
// Unknown extensions map to JPEG, which DecodeFrame treats as "let the
// registered decoders sniff it".
func FormatFromPath(path string) ImageFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".webp":
		return FormatWebP
	case ".png":
		return FormatPNG
	default:
		return FormatJPEG
	}
}
