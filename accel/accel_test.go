package accel

import (
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/nvr-ai/go-tld/images"
	"github.com/nvr-ai/go-tld/scanning"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noiseFrame(t *testing.T, width, height int) *images.Frame {
	t.Helper()
	f, err := images.NewFrame(width, height, width)
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(1, 2))
	for i := range f.Pix {
		f.Pix[i] = uint8(rng.IntN(256))
	}
	return f
}

func testGrid(t *testing.T, size int) ([]scanning.Window, []scanning.Offset) {
	t.Helper()
	grid, err := scanning.Generate(scanning.Params{
		ObjectWidth: 16, ObjectHeight: 16,
		ImageWidth: size, ImageHeight: size,
		MinScale: -1, MaxScale: 1, ScaleStep: 1.2,
		MinSize: 8, Shift: 0.1, UseShift: true,
	})
	require.NoError(t, err)
	return grid.Windows, scanning.ComputeOffsets(grid.Windows, size, 3, 2)
}

func TestNewDevice(t *testing.T) {
	tests := []struct {
		name    string
		options Options
		want    BackendName
	}{
		{name: "nil defaults to cpu", options: nil, want: CPUBackend},
		{name: "cpu", options: CPUOptions{Workers: 2}, want: CPUBackend},
		{name: "opencv", options: OpenCVOptions{}, want: OpenCVBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDevice(tt.options)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Backend())
			assert.NoError(t, d.Close())
		})
	}
}

func TestOptionsFor(t *testing.T) {
	opts, err := OptionsFor("", 4)
	require.NoError(t, err)
	assert.Equal(t, CPUOptions{Workers: 4}, opts)

	opts, err = OptionsFor(OpenCVBackend, 2)
	require.NoError(t, err)
	assert.Equal(t, OpenCVOptions{Workers: 2}, opts)

	_, err = OptionsFor("cuda", 1)
	assert.True(t, errors.Is(err, ErrUnknownBackend))
}

func TestWindowBuffer(t *testing.T) {
	_, offsets := testGrid(t, 64)
	d := NewCPUDevice(CPUOptions{})

	buf, err := d.AllocateWindows(offsets)
	require.NoError(t, err)
	assert.Equal(t, len(offsets), buf.Len())

	offsets[0].Area = -1
	held, err := hostOffsets(buf)
	require.NoError(t, err)
	assert.NotEqual(t, -1, held[0].Area, "buffer holds a copy")

	require.NoError(t, buf.Free())
	require.NoError(t, buf.Free())
	assert.Zero(t, buf.Len())

	ii := images.ComputeIntegral(images.UniformFrame(64, 64, 1))
	err = d.Variances(ii, buf, []int{0}, make([]float32, len(offsets)))
	assert.True(t, errors.Is(err, ErrBufferReleased))
}

func TestCPUDevice_Variances(t *testing.T) {
	const size = 64
	windows, offsets := testGrid(t, size)
	frame := noiseFrame(t, size, size)
	d := NewCPUDevice(CPUOptions{Workers: 3})

	buf, err := d.AllocateWindows(offsets)
	require.NoError(t, err)
	ii, err := d.Integrate(frame)
	require.NoError(t, err)

	out := make([]float32, len(windows))
	candidates := []int{0, 7, len(windows) - 1}
	require.NoError(t, d.Variances(ii, buf, candidates, out))

	for _, idx := range candidates {
		w := windows[idx]
		var sum, sq float64
		for y := w.Y; y < w.Y+w.H; y++ {
			for x := w.X; x < w.X+w.W; x++ {
				v := float64(frame.At(x, y))
				sum += v
				sq += v * v
			}
		}
		n := float64(w.W * w.H)
		want := sq/n - (sum/n)*(sum/n)
		assert.InDelta(t, want, out[idx], 1e-2, "window %d", idx)
	}
	assert.Zero(t, out[1], "non-candidates untouched")

	err = d.Variances(ii, buf, []int{len(windows)}, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	err = d.Variances(ii, foreignBuffer{}, candidates, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accel.foreignBuffer")
}

type foreignBuffer struct{}

func (foreignBuffer) Len() int     { return 0 }
func (foreignBuffer) Free() error { return nil }

func TestOpenCVDevice_MatchesCPU(t *testing.T) {
	frame := noiseFrame(t, 48, 40)
	cpu := NewCPUDevice(CPUOptions{})
	cv := NewOpenCVDevice(OpenCVOptions{})

	want, err := cpu.Integrate(frame)
	require.NoError(t, err)
	got, err := cv.Integrate(frame)
	require.NoError(t, err)
	assert.Equal(t, want.Sum, got.Sum)
	assert.Equal(t, want.SqSum, got.SqSum)

	flat := images.UniformFrame(48, 40, 99)
	smoothed, err := cv.Smooth(flat, 1)
	require.NoError(t, err)
	assert.Equal(t, flat.Pix, smoothed.Pix)

	same, err := cv.Smooth(frame, 0)
	require.NoError(t, err)
	assert.Equal(t, frame.Pix, same.Pix)
}

func TestParallelFor(t *testing.T) {
	for _, n := range []int{0, 1, 255, 1000, 4097} {
		var total atomic.Int64
		seen := make([]int32, n)
		err := ParallelFor(4, n, func(lo, hi int) error {
			for i := lo; i < hi; i++ {
				seen[i]++
			}
			total.Add(int64(hi - lo))
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(n), total.Load())
		for i, c := range seen {
			require.Equal(t, int32(1), c, "index %d", i)
		}
	}

	boom := errors.New("boom")
	err := ParallelFor(2, 2000, func(lo, hi int) error {
		if lo > 0 {
			return boom
		}
		return nil
	})
	assert.True(t, errors.Is(err, boom))
}
