package images

import (
	"fmt"

	"github.com/cshum/vipsgen/vips"
)

// ThumbnailFrame shrinks an encoded frame with libvips before decoding it.
// Large sources (4K camera stills) are downsampled during load, which is much
// cheaper than decoding at full size and rescaling afterwards.
//
// Arguments:
//   - data: The encoded image (any format libvips loads).
//   - width: The target width.
//   - height: The target height.
//
// Returns:
//   - *Frame: A single-channel frame of exactly width x height.
//   - error: An error if the image fails to load or resize.
func ThumbnailFrame(data []byte, width, height int) (*Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: width=%d, height=%d", width, height)
	}

	img, err := vips.NewImageFromBuffer(data, &vips.LoadOptions{
		Access: vips.AccessSequential,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	defer img.Close()

	// Fits inside width x height; the aspect ratio is kept.
	err = img.ThumbnailImage(width, &vips.ThumbnailImageOptions{
		Height: height,
		FailOn: vips.FailOnError,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}

	resized, err := img.JpegsaveBuffer(&vips.JpegsaveBufferOptions{})
	if err != nil || len(resized) == 0 {
		return nil, fmt.Errorf("failed to encode resized image")
	}

	return DecodeFrameCV(resized, width, height)
}
