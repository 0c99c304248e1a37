package gates

import (
	"github.com/nvr-ai/go-tld/accel"
	"github.com/nvr-ai/go-tld/detection"
	"github.com/nvr-ai/go-tld/images"
	"github.com/pkg/errors"
)

// VarianceGate rejects low-texture windows whose intensity variance is below a
// threshold. It runs over every window of every frame on the accelerator.
type VarianceGate struct {
	minVariance float64

	device  accel.Device
	windows accel.WindowBuffer
	result  *detection.Result

	integral *images.Integral
}

// NewVarianceGate creates a variance gate with the given threshold.
func NewVarianceGate(minVariance float64) *VarianceGate {
	return &VarianceGate{minVariance: minVariance}
}

// Name returns "variance".
func (g *VarianceGate) Name() string { return "variance" }

// Bind hands the gate the device, the cascade-owned window buffer and the
// shared result. The gate does not own either buffer.
func (g *VarianceGate) Bind(device accel.Device, windows accel.WindowBuffer, result *detection.Result) {
	g.device = device
	g.windows = windows
	g.result = result
}

// MinVariance returns the current threshold.
func (g *VarianceGate) MinVariance() float64 { return g.minVariance }

// SetMinVariance updates the threshold, typically from the learning component
// after the object's appearance is known.
func (g *VarianceGate) SetMinVariance(v float64) { g.minVariance = v }

// Integral returns the integral images of the last filtered frame.
func (g *VarianceGate) Integral() *images.Integral { return g.integral }

// Filter computes the integral images of frame and keeps the candidates whose
// variance is at least the threshold. Rejected windows keep a zero posterior.
//
// Arguments:
//   - frame: The current frame.
//   - candidates: Candidate window indices, ascending.
//
// Returns:
//   - []int: The surviving indices, in input order.
//   - error: A device error.
func (g *VarianceGate) Filter(frame *images.Frame, candidates []int) ([]int, error) {
	if len(candidates) == 0 || g.device == nil || g.result == nil {
		return []int{}, nil
	}

	ii, err := g.device.Integrate(frame)
	if err != nil {
		return nil, errors.Wrap(err, "variance gate")
	}
	g.integral = ii

	if err := g.device.Variances(ii, g.windows, candidates, g.result.Variances); err != nil {
		return nil, errors.Wrap(err, "variance gate")
	}

	min := float32(g.minVariance)
	out := make([]int, 0, len(candidates))
	for _, idx := range candidates {
		if g.result.Variances[idx] < min {
			g.result.Posteriors[idx] = 0
			continue
		}
		out = append(out, idx)
	}
	return out, nil
}

// Release drops the bound references. The window buffer is freed by its owner.
func (g *VarianceGate) Release() {
	g.device = nil
	g.windows = nil
	g.result = nil
	g.integral = nil
}
