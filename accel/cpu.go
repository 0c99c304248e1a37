package accel

import (
	"github.com/nvr-ai/go-tld/images"
	"github.com/nvr-ai/go-tld/scanning"
	"github.com/pkg/errors"
)

// CPUOptions contains arguments for the CPU device.
type CPUOptions struct {
	// Workers bounds the goroutines used per stage; 0 uses runtime.NumCPU().
	Workers int `json:"workers" yaml:"workers"`
}

func (CPUOptions) isOptions() {}

// CPUDevice implements Device on the host.
type CPUDevice struct {
	options CPUOptions
}

// NewCPUDevice creates a new CPU device.
func NewCPUDevice(args CPUOptions) *CPUDevice {
	return &CPUDevice{options: args}
}

// Backend returns the backend of the CPU device.
func (d *CPUDevice) Backend() BackendName {
	return CPUBackend
}

// AllocateWindows copies the offset table.
func (d *CPUDevice) AllocateWindows(offsets []scanning.Offset) (WindowBuffer, error) {
	return newHostBuffer(offsets), nil
}

// Integrate computes integral images on the host.
func (d *CPUDevice) Integrate(f *images.Frame) (*images.Integral, error) {
	if err := f.Validate(); err != nil {
		return nil, errors.Wrap(err, "integrate")
	}
	return images.ComputeIntegral(f), nil
}

// Smooth applies a box blur.
func (d *CPUDevice) Smooth(f *images.Frame, radius int) (*images.Frame, error) {
	if err := f.Validate(); err != nil {
		return nil, errors.Wrap(err, "smooth")
	}
	return images.BoxBlur(f, radius, d.options.Workers != 1), nil
}

// Variances evaluates candidate variances across goroutines.
func (d *CPUDevice) Variances(ii *images.Integral, buf WindowBuffer, candidates []int, out []float32) error {
	return windowVariances(d.options.Workers, ii, buf, candidates, out)
}

// Close is a no-op for the CPU device.
func (d *CPUDevice) Close() error {
	return nil
}
