package images

// Integral holds the running-sum and running-squared-sum images of a frame.
//
// Entry y*Stride+x is the inclusive sum over all pixels (i, j) with i <= x and
// j <= y, so a rectangle sum needs the four corners one pixel up and left of the
// rectangle. The cascade only scans windows starting at (1, 1) for that reason.
type Integral struct {
	Width  int
	Height int
	Stride int
	Sum    []float64
	SqSum  []float64
}

// NewIntegral allocates integral buffers for the given geometry.
func NewIntegral(width, height, stride int) *Integral {
	return &Integral{
		Width:  width,
		Height: height,
		Stride: stride,
		Sum:    make([]float64, stride*height),
		SqSum:  make([]float64, stride*height),
	}
}

// ComputeIntegral builds both integral images of f on the host.
//
// Arguments:
//   - f: The source frame.
//
// Returns:
//   - *Integral: Integral images sharing the frame's stride.
func ComputeIntegral(f *Frame) *Integral {
	ii := NewIntegral(f.Width, f.Height, f.Stride)
	for y := 0; y < f.Height; y++ {
		var rowSum, rowSq float64
		row := y * f.Stride
		for x := 0; x < f.Width; x++ {
			v := float64(f.Pix[row+x])
			rowSum += v
			rowSq += v * v
			if y == 0 {
				ii.Sum[row+x] = rowSum
				ii.SqSum[row+x] = rowSq
				continue
			}
			ii.Sum[row+x] = ii.Sum[row-f.Stride+x] + rowSum
			ii.SqSum[row+x] = ii.SqSum[row-f.Stride+x] + rowSq
		}
	}
	return ii
}

// Moments returns the pixel sum and squared sum of the rectangle described by
// its four corner offsets (top-left, bottom-left, top-right, bottom-right).
func (ii *Integral) Moments(tl, bl, tr, br int) (sum, sqSum float64) {
	sum = ii.Sum[br] - ii.Sum[tr] - ii.Sum[bl] + ii.Sum[tl]
	sqSum = ii.SqSum[br] - ii.SqSum[tr] - ii.SqSum[bl] + ii.SqSum[tl]
	return sum, sqSum
}

// Variance turns rectangle moments into the intensity variance E[x²] - E[x]².
func Variance(sum, sqSum float64, area int) float64 {
	if area <= 0 {
		return 0
	}
	mean := sum / float64(area)
	v := sqSum/float64(area) - mean*mean
	if v < 0 {
		// Rounding on flat regions.
		return 0
	}
	return v
}
