package images

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder

	"github.com/chai2010/webp"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Frame is a single-channel 8-bit image buffer. Row y starts at Pix[y*Stride];
// Stride may exceed Width when rows are padded.
type Frame struct {
	Width  int
	Height int
	Stride int
	Pix    []uint8
}

// NewFrame allocates a zeroed frame.
//
// Arguments:
//   - width: Frame width in pixels.
//   - height: Frame height in pixels.
//   - stride: Row stride in bytes, at least width.
//
// Returns:
//   - *Frame: The allocated frame.
//   - error: An error if the geometry is invalid.
func NewFrame(width, height, stride int) (*Frame, error) {
	f := &Frame{Width: width, Height: height, Stride: stride}
	if err := f.validateGeometry(); err != nil {
		return nil, err
	}
	f.Pix = make([]uint8, stride*height)
	return f, nil
}

// UniformFrame allocates a frame where every pixel holds value.
func UniformFrame(width, height int, value uint8) *Frame {
	f := &Frame{Width: width, Height: height, Stride: width, Pix: make([]uint8, width*height)}
	for i := range f.Pix {
		f.Pix[i] = value
	}
	return f
}

func (f *Frame) validateGeometry() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions: %dx%d", f.Width, f.Height)
	}
	if f.Stride < f.Width {
		return fmt.Errorf("frame stride %d smaller than width %d", f.Stride, f.Width)
	}
	return nil
}

// Validate checks that the frame geometry is consistent with its buffer.
func (f *Frame) Validate() error {
	if f == nil {
		return errors.New("frame is nil")
	}
	if err := f.validateGeometry(); err != nil {
		return err
	}
	if need := (f.Height-1)*f.Stride + f.Width; len(f.Pix) < need {
		return fmt.Errorf("frame buffer too small: has %d, needs %d", len(f.Pix), need)
	}
	return nil
}

// Matches reports whether the frame has the given geometry and enough pixels
// to back it.
func (f *Frame) Matches(width, height, stride int) bool {
	return f.Width == width && f.Height == height && f.Stride == stride &&
		len(f.Pix) >= (height-1)*stride+width
}

// At returns the intensity at (x, y).
func (f *Frame) At(x, y int) uint8 {
	return f.Pix[y*f.Stride+x]
}

// Set writes the intensity at (x, y).
func (f *Frame) Set(x, y int, v uint8) {
	f.Pix[y*f.Stride+x] = v
}

// Gray returns an *image.Gray sharing the frame's pixels.
func (f *Frame) Gray() *image.Gray {
	return &image.Gray{Pix: f.Pix, Stride: f.Stride, Rect: image.Rect(0, 0, f.Width, f.Height)}
}

// FrameFromImage converts an arbitrary image to a single-channel frame of the
// requested size. Images of a different size are rescaled first.
//
// Arguments:
//   - img: The source image.
//   - width: The target width, or 0 to keep the source width.
//   - height: The target height, or 0 to keep the source height.
//
// Returns:
//   - *Frame: A frame with Stride == width.
func FrameFromImage(img image.Image, width, height int) *Frame {
	b := img.Bounds()
	if width <= 0 {
		width = b.Dx()
	}
	if height <= 0 {
		height = b.Dy()
	}
	if b.Dx() != width || b.Dy() != height {
		img = resize.Resize(uint(width), uint(height), img, resize.Bilinear)
		b = img.Bounds()
	}

	gray, ok := img.(*image.Gray)
	if !ok || gray.Rect.Min != (image.Point{}) {
		gray = image.NewGray(image.Rect(0, 0, width, height))
		draw.Draw(gray, gray.Rect, img, b.Min, draw.Src)
	}

	return &Frame{Width: width, Height: height, Stride: gray.Stride, Pix: gray.Pix}
}

// FrameFromMat copies a gocv.Mat into a frame. Three and four channel Mats are
// converted from BGR(A) to grayscale.
//
// Arguments:
//   - mat: The source Mat (8-bit, 1, 3 or 4 channels).
//
// Returns:
//   - *Frame: A frame with Stride == mat.Cols().
//   - error: An error if the Mat is empty or of an unsupported type.
func FrameFromMat(mat gocv.Mat) (*Frame, error) {
	if mat.Empty() {
		return nil, errors.New("mat is empty")
	}

	gray := mat
	switch mat.Channels() {
	case 1:
	case 3, 4:
		gray = gocv.NewMat()
		defer gray.Close()
		code := gocv.ColorBGRToGray
		if mat.Channels() == 4 {
			code = gocv.ColorBGRAToGray
		}
		gocv.CvtColor(mat, &gray, code)
		if gray.Empty() {
			return nil, errors.New("grayscale conversion failed")
		}
	default:
		return nil, fmt.Errorf("unsupported channel count: %d", mat.Channels())
	}

	if gray.Type() != gocv.MatTypeCV8UC1 {
		return nil, fmt.Errorf("unsupported mat type: %v", gray.Type())
	}

	data, err := gray.DataPtrUint8()
	if err != nil {
		return nil, errors.Wrap(err, "mat data access failed")
	}

	f := &Frame{Width: gray.Cols(), Height: gray.Rows(), Stride: gray.Cols()}
	f.Pix = make([]uint8, len(data))
	copy(f.Pix, data)
	return f, nil
}

// DecodeFrame decodes an encoded image into a frame of the requested size.
//
// Arguments:
//   - data: The encoded bytes.
//   - format: The encoding; WebP is decoded explicitly, everything else is
//     sniffed by the registered decoders.
//   - width, height: Target geometry, 0 to keep the decoded size.
//
// Returns:
//   - *Frame: The decoded single-channel frame.
//   - error: An error if decoding fails.
func DecodeFrame(data []byte, format ImageFormat, width, height int) (*Frame, error) {
	if len(data) == 0 {
		return nil, errors.New("image data is empty")
	}

	var (
		img image.Image
		err error
	)
	switch format {
	case FormatWebP:
		img, err = webp.Decode(bytes.NewReader(data))
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s frame failed", format)
	}

	return FrameFromImage(img, width, height), nil
}

// DecodeFrameCV decodes any format OpenCV reads (BMP, TIFF, ...) into a frame
// of the requested size.
func DecodeFrameCV(data []byte, width, height int) (*Frame, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadGrayScale)
	if err != nil || mat.Empty() {
		return nil, errors.New("cv decode failed")
	}
	defer mat.Close()

	if width <= 0 || height <= 0 || (mat.Cols() == width && mat.Rows() == height) {
		return FrameFromMat(mat)
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(mat, &resized, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)
	return FrameFromMat(resized)
}
