// Package accel - The accelerator boundary of the detection cascade. A Device
// owns device-resident copies of the window table and runs the bulk,
// data-parallel per-window work (integral images, variances, smoothing).
package accel

import (
	"github.com/nvr-ai/go-tld/images"
	"github.com/nvr-ai/go-tld/scanning"
	"github.com/pkg/errors"
)

// BackendName identifies a Device implementation.
type BackendName string

const (
	// CPUBackend runs per-window work on goroutines over disjoint index ranges.
	CPUBackend BackendName = "cpu"
	// OpenCVBackend computes integral images and smoothing through OpenCV.
	OpenCVBackend BackendName = "opencv"
)

var (
	// ErrUnknownBackend is returned for options no backend accepts.
	ErrUnknownBackend = errors.New("unknown accelerator backend")
	// ErrBufferReleased is returned when a freed WindowBuffer is used.
	ErrBufferReleased = errors.New("window buffer already released")
)

// Options is a marker interface for backend-specific configuration.
type Options interface {
	isOptions()
}

// WindowBuffer is a device-resident copy of the window offset table. The
// cascade allocates exactly one per init and frees it on release.
type WindowBuffer interface {
	// Len returns the number of windows held.
	Len() int
	// Free releases the buffer. Freeing twice is a no-op.
	Free() error
}

// Device is the contract every accelerator backend implements.
type Device interface {
	// Backend returns the backend name.
	Backend() BackendName
	// AllocateWindows copies the offset table into device memory.
	AllocateWindows(offsets []scanning.Offset) (WindowBuffer, error)
	// Integrate computes the sum and squared-sum integral images of f.
	Integrate(f *images.Frame) (*images.Integral, error)
	// Smooth returns a low-pass filtered copy of f.
	Smooth(f *images.Frame, radius int) (*images.Frame, error)
	// Variances writes the intensity variance of every candidate window into
	// out[candidate]. Writes go to disjoint indices only.
	Variances(ii *images.Integral, buf WindowBuffer, candidates []int, out []float32) error
	// Close releases backend resources.
	Close() error
}

// NewDevice creates a device for the given backend options.
//
// Arguments:
//   - options: CPUOptions or OpenCVOptions.
//
// Returns:
//   - Device: The device.
//   - error: ErrUnknownBackend for unsupported options.
func NewDevice(options Options) (Device, error) {
	switch opts := options.(type) {
	case CPUOptions:
		return NewCPUDevice(opts), nil
	case OpenCVOptions:
		return NewOpenCVDevice(opts), nil
	case nil:
		return NewCPUDevice(CPUOptions{}), nil
	default:
		return nil, errors.Wrapf(ErrUnknownBackend, "%T", opts)
	}
}

// OptionsFor returns default options for a backend name.
func OptionsFor(name BackendName, workers int) (Options, error) {
	switch name {
	case CPUBackend, "":
		return CPUOptions{Workers: workers}, nil
	case OpenCVBackend:
		return OpenCVOptions{Workers: workers}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownBackend, "%q", name)
	}
}

// hostBuffer keeps the offset table in host memory. Both shipped backends
// address windows from the host side.
type hostBuffer struct {
	offsets []scanning.Offset
	freed   bool
}

func newHostBuffer(offsets []scanning.Offset) *hostBuffer {
	buf := &hostBuffer{offsets: make([]scanning.Offset, len(offsets))}
	copy(buf.offsets, offsets)
	return buf
}

func (b *hostBuffer) Len() int {
	if b.freed {
		return 0
	}
	return len(b.offsets)
}

func (b *hostBuffer) Free() error {
	b.offsets = nil
	b.freed = true
	return nil
}

// hostOffsets unwraps a buffer allocated by one of this package's devices.
func hostOffsets(buf WindowBuffer) ([]scanning.Offset, error) {
	hb, ok := buf.(*hostBuffer)
	if !ok {
		return nil, errors.Errorf("window buffer of type %T not allocated by this device", buf)
	}
	if hb.freed {
		return nil, ErrBufferReleased
	}
	return hb.offsets, nil
}

// windowVariances evaluates the variance of each candidate in parallel.
func windowVariances(workers int, ii *images.Integral, buf WindowBuffer, candidates []int, out []float32) error {
	offsets, err := hostOffsets(buf)
	if err != nil {
		return err
	}

	return ParallelFor(workers, len(candidates), func(lo, hi int) error {
		for _, idx := range candidates[lo:hi] {
			if idx < 0 || idx >= len(offsets) || idx >= len(out) {
				return errors.Errorf("candidate %d out of range [0, %d)", idx, len(offsets))
			}
			o := offsets[idx]
			sum, sq := ii.Moments(o.TopLeft, o.BottomLeft, o.TopRight, o.BottomRight)
			out[idx] = float32(images.Variance(sum, sq, o.Area))
		}
		return nil
	})
}
