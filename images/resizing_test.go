package images

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getTestImage returns a 100x100 image, dark on the left and bright on the right.
func getTestImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			v := uint8(30)
			if x >= 50 {
				v = 220
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func encode(t *testing.T, format ImageFormat) []byte {
	t.Helper()
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatJPEG:
		err = jpeg.Encode(&buf, getTestImage(), &jpeg.Options{Quality: 95})
	case FormatPNG:
		err = png.Encode(&buf, getTestImage())
	case FormatWebP:
		err = webp.Encode(&buf, getTestImage(), &webp.Options{Lossless: true})
	}
	require.NoError(t, err)
	return buf.Bytes()
}

func TestDecodeFrame(t *testing.T) {
	for _, format := range []ImageFormat{FormatJPEG, FormatPNG, FormatWebP} {
		t.Run(string(format), func(t *testing.T) {
			data := encode(t, format)

			f, err := DecodeFrame(data, format, 0, 0)
			require.NoError(t, err)
			assert.Equal(t, 100, f.Width)
			assert.Equal(t, 100, f.Height)
			assert.InDelta(t, 30, int(f.At(10, 10)), 4)
			assert.InDelta(t, 220, int(f.At(90, 10)), 4)

			f, err = DecodeFrame(data, format, 50, 40)
			require.NoError(t, err)
			assert.True(t, f.Matches(50, 40, 50))
			require.NoError(t, f.Validate())
		})
	}

	_, err := DecodeFrame(nil, FormatJPEG, 0, 0)
	assert.Error(t, err)
	_, err = DecodeFrame([]byte("not an image"), FormatPNG, 0, 0)
	assert.Error(t, err)
}

func TestDecodeFrameCV(t *testing.T) {
	data := encode(t, FormatPNG)

	f, err := DecodeFrameCV(data, 0, 0)
	require.NoError(t, err)
	assert.True(t, f.Matches(100, 100, 100))
	assert.InDelta(t, 30, int(f.At(10, 10)), 2)

	f, err = DecodeFrameCV(data, 64, 48)
	require.NoError(t, err)
	assert.True(t, f.Matches(64, 48, 64))

	_, err = DecodeFrameCV([]byte("not an image"), 0, 0)
	assert.Error(t, err)
}

func TestThumbnailFrame(t *testing.T) {
	data := encode(t, FormatJPEG)

	f, err := ThumbnailFrame(data, 50, 50)
	require.NoError(t, err)
	assert.True(t, f.Matches(50, 50, 50))
	assert.Less(t, int(f.At(5, 25)), int(f.At(45, 25)))

	_, err = ThumbnailFrame([]byte("not a jpeg"), 50, 50)
	assert.Error(t, err)
	_, err = ThumbnailFrame(data, 0, 0)
	assert.Error(t, err)
}
