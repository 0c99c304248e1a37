// Package scanning - Enumeration of candidate sub-windows across a bounded scale
// pyramid, and the per-window offsets that downstream gates index with.
package scanning

import (
	"math"

	"github.com/nvr-ai/go-tld/images"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidObjectSize is returned when the object dimensions are not positive.
	ErrInvalidObjectSize = errors.New("object dimensions must be positive")
	// ErrWindowCountMismatch signals that generation disagreed with the predicted
	// window count. Tables built from such a grid are inconsistent.
	ErrWindowCountMismatch = errors.New("generated window count differs from prediction")
)

// Window is a candidate sub-window in frame coordinates.
type Window struct {
	X, Y, W, H int
	// ScaleIndex is the window's level in the Pyramid.
	ScaleIndex int
}

// Rect returns the window as an exclusive-corner box.
func (w Window) Rect() images.Rect {
	return images.RectXYWH(w.X, w.Y, w.W, w.H)
}

// Scale is the window size of a retained pyramid level.
type Scale struct {
	Width  int
	Height int
}

// Pyramid is the ordered set of retained scale levels.
type Pyramid []Scale

// Len returns the number of retained levels.
func (p Pyramid) Len() int { return len(p) }

// ScanArea is the region windows are placed in. It is the frame shrunk by one
// pixel on the top and left, since integral image lookups read (x-1, y-1).
type ScanArea struct {
	X, Y, W, H int
}

// NewScanArea returns the scan area of a frame of the given size.
func NewScanArea(imageWidth, imageHeight int) ScanArea {
	return ScanArea{X: 1, Y: 1, W: imageWidth - 1, H: imageHeight - 1}
}

// Params configures window generation.
type Params struct {
	ObjectWidth  int
	ObjectHeight int
	ImageWidth   int
	ImageHeight  int
	// MinScale and MaxScale bound the integer exponent applied to ScaleStep.
	MinScale  int
	MaxScale  int
	ScaleStep float64
	// MinSize rejects levels whose width or height falls below it.
	MinSize int
	// Shift is the step size as a fraction of the window dimension.
	Shift    float64
	UseShift bool
}

// Grid is the immutable output of generation.
type Grid struct {
	Area    ScanArea
	Pyramid Pyramid
	Windows []Window
}

// NumWindows returns the total window count.
func (g *Grid) NumWindows() int {
	if g == nil {
		return 0
	}
	return len(g.Windows)
}

// StepSize returns the placement step along one axis for a window dimension.
//
// Arguments:
//   - dim: The window width or height.
//   - shift: Step as a fraction of dim.
//   - useShift: When false every pixel position is visited.
//
// Returns:
//   - int: max(1, round(dim*shift)), or 1 when shifting is disabled.
func StepSize(dim int, shift float64, useShift bool) int {
	if !useShift {
		return 1
	}
	return max(1, int(math.Round(float64(dim)*shift)))
}

// PredictCount returns how many windows of scale s fit into the scan area with
// the given steps. Generation must emit exactly this many.
func PredictCount(area ScanArea, s Scale, stepX, stepY int) int {
	if s.Width > area.W || s.Height > area.H {
		return 0
	}
	nx := (area.W - s.Width + stepX) / stepX
	ny := (area.H - s.Height + stepY) / stepY
	return nx * ny
}

// BuildPyramid computes the retained scale levels for p.
//
// Level i yields w = floor(ObjectWidth * ScaleStep^i) and likewise for h. A level
// is dropped when either side is below MinSize or exceeds the scan area.
//
// Arguments:
//   - p: The generation parameters.
//
// Returns:
//   - Pyramid: The retained levels in ascending exponent order (possibly empty).
//   - error: ErrInvalidObjectSize for non-positive object dimensions.
func BuildPyramid(p Params) (Pyramid, error) {
	if p.ObjectWidth <= 0 || p.ObjectHeight <= 0 {
		return nil, errors.Wrapf(ErrInvalidObjectSize, "got %dx%d", p.ObjectWidth, p.ObjectHeight)
	}

	area := NewScanArea(p.ImageWidth, p.ImageHeight)
	var pyramid Pyramid
	for i := p.MinScale; i <= p.MaxScale; i++ {
		scale := math.Pow(p.ScaleStep, float64(i))
		w := int(math.Floor(float64(p.ObjectWidth) * scale))
		h := int(math.Floor(float64(p.ObjectHeight) * scale))

		if w < p.MinSize || h < p.MinSize || w > area.W || h > area.H {
			continue
		}
		pyramid = append(pyramid, Scale{Width: w, Height: h})
	}
	return pyramid, nil
}

// Generate builds the scale pyramid and the full window sequence.
//
// The total is predicted per level before generation and storage is sized
// exactly; emitting more or fewer windows than predicted is reported as
// ErrWindowCountMismatch. An empty pyramid is not an error and yields a grid
// with no windows.
//
// Arguments:
//   - p: The generation parameters.
//
// Returns:
//   - *Grid: The pyramid and windows, swept per level by y then x.
//   - error: ErrInvalidObjectSize or ErrWindowCountMismatch.
//
// Example:
//
// ```go
//
//	grid, err := scanning.Generate(scanning.Params{
//	    ObjectWidth: 24, ObjectHeight: 24,
//	    ImageWidth: 101, ImageHeight: 101,
//	    MinScale: 0, MaxScale: 0,
//	    ScaleStep: 1.2, MinSize: 20,
//	})
//	// grid.NumWindows() == 77*77
//
// ```
func Generate(p Params) (*Grid, error) {
	pyramid, err := BuildPyramid(p)
	if err != nil {
		return nil, err
	}

	area := NewScanArea(p.ImageWidth, p.ImageHeight)
	total := 0
	for _, s := range pyramid {
		total += PredictCount(area, s, StepSize(s.Width, p.Shift, p.UseShift), StepSize(s.Height, p.Shift, p.UseShift))
	}

	windows := make([]Window, total)
	n := 0
	for scaleIndex, s := range pyramid {
		stepX := StepSize(s.Width, p.Shift, p.UseShift)
		stepY := StepSize(s.Height, p.Shift, p.UseShift)

		for y := area.Y; y+s.Height <= area.Y+area.H; y += stepY {
			for x := area.X; x+s.Width <= area.X+area.W; x += stepX {
				if n >= total {
					return nil, errors.Wrapf(ErrWindowCountMismatch, "overflow at scale %d (predicted %d)", scaleIndex, total)
				}
				windows[n] = Window{X: x, Y: y, W: s.Width, H: s.Height, ScaleIndex: scaleIndex}
				n++
			}
		}
	}
	if n != total {
		return nil, errors.Wrapf(ErrWindowCountMismatch, "emitted %d, predicted %d", n, total)
	}

	return &Grid{Area: area, Pyramid: pyramid, Windows: windows}, nil
}

// IndexSequence returns the identity candidate set 0..n-1.
func IndexSequence(n int) []int {
	if n <= 0 {
		return []int{}
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
