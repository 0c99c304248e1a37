package accel

import (
	"image"

	"github.com/nvr-ai/go-tld/images"
	"github.com/nvr-ai/go-tld/scanning"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// OpenCVOptions contains arguments for the OpenCV device.
type OpenCVOptions struct {
	// Workers bounds the goroutines used for per-window variance evaluation.
	Workers int `json:"workers" yaml:"workers"`
	// BlurSigma is the Gaussian sigma used by Smooth (default 1.5).
	BlurSigma float64 `json:"blurSigma" yaml:"blurSigma"`
}

func (OpenCVOptions) isOptions() {}

// OpenCVDevice implements Device with OpenCV for the image-wide passes.
type OpenCVDevice struct {
	options OpenCVOptions
}

// NewOpenCVDevice creates a new OpenCV device.
func NewOpenCVDevice(args OpenCVOptions) *OpenCVDevice {
	if args.BlurSigma <= 0 {
		args.BlurSigma = 1.5
	}
	return &OpenCVDevice{options: args}
}

// Backend returns the backend of the OpenCV device.
func (d *OpenCVDevice) Backend() BackendName {
	return OpenCVBackend
}

// AllocateWindows copies the offset table.
func (d *OpenCVDevice) AllocateWindows(offsets []scanning.Offset) (WindowBuffer, error) {
	return newHostBuffer(offsets), nil
}

// Integrate computes integral images with cv::integral.
//
// OpenCV returns (rows+1)x(cols+1) images with a zero first row and column; they
// are shifted into the inclusive, frame-strided layout used by the gates.
func (d *OpenCVDevice) Integrate(f *images.Frame) (*images.Integral, error) {
	src, err := toMat(f)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	sum := gocv.NewMat()
	defer sum.Close()
	sqSum := gocv.NewMat()
	defer sqSum.Close()
	tilted := gocv.NewMat()
	defer tilted.Close()

	gocv.Integral(src, &sum, &sqSum, &tilted)
	if sum.Empty() || sqSum.Empty() {
		return nil, errors.New("cv integral failed")
	}

	ii := images.NewIntegral(f.Width, f.Height, f.Stride)
	for y := 0; y < f.Height; y++ {
		row := y * f.Stride
		for x := 0; x < f.Width; x++ {
			ii.Sum[row+x] = float64(sum.GetIntAt(y+1, x+1))
			ii.SqSum[row+x] = sqSum.GetDoubleAt(y+1, x+1)
		}
	}
	return ii, nil
}

// Smooth applies a Gaussian blur with a (2*radius+1) square kernel.
func (d *OpenCVDevice) Smooth(f *images.Frame, radius int) (*images.Frame, error) {
	out := &images.Frame{Width: f.Width, Height: f.Height, Stride: f.Stride, Pix: make([]uint8, len(f.Pix))}
	if radius <= 0 {
		copy(out.Pix, f.Pix)
		return out, nil
	}

	src, err := toMat(f)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	k := 2*radius + 1
	gocv.GaussianBlur(src, &dst, image.Pt(k, k), d.options.BlurSigma, d.options.BlurSigma, gocv.BorderDefault)
	if dst.Empty() {
		return nil, errors.New("cv gaussian blur failed")
	}

	data, err := dst.DataPtrUint8()
	if err != nil {
		return nil, errors.Wrap(err, "blurred data access failed")
	}
	for y := 0; y < f.Height; y++ {
		copy(out.Pix[y*f.Stride:y*f.Stride+f.Width], data[y*f.Width:(y+1)*f.Width])
	}
	return out, nil
}

// Variances evaluates candidate variances on the host from the integral images.
func (d *OpenCVDevice) Variances(ii *images.Integral, buf WindowBuffer, candidates []int, out []float32) error {
	return windowVariances(d.options.Workers, ii, buf, candidates, out)
}

// Close is a no-op; Mats are released per call.
func (d *OpenCVDevice) Close() error {
	return nil
}

// toMat packs a possibly padded frame into a continuous 8-bit Mat.
func toMat(f *images.Frame) (gocv.Mat, error) {
	if err := f.Validate(); err != nil {
		return gocv.NewMat(), errors.Wrap(err, "frame to mat")
	}

	data := f.Pix[:f.Width*f.Height]
	if f.Stride != f.Width {
		data = make([]byte, f.Width*f.Height)
		for y := 0; y < f.Height; y++ {
			copy(data[y*f.Width:(y+1)*f.Width], f.Pix[y*f.Stride:y*f.Stride+f.Width])
		}
	}

	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC1, data)
	if err != nil {
		return gocv.NewMat(), errors.Wrap(err, "mat from frame failed")
	}
	return mat, nil
}
