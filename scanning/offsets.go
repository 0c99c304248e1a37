package scanning

// Offset is the precomputed addressing of one window.
//
// The four corners are linear offsets into an integral image of known stride,
// taken one pixel up and left of the window. FeatureTable is the start of the
// window's scale block in the fern feature table.
type Offset struct {
	TopLeft      int
	BottomLeft   int
	TopRight     int
	BottomRight  int
	FeatureTable int
	Area         int
}

// LinearIndex maps (col, row) to row*stride + col.
func LinearIndex(col, row, stride int) int {
	return row*stride + col
}

// FeatureTableStride is the number of table entries per scale level: every
// feature of every tree contributes two pixel-pair endpoints.
func FeatureTableStride(numFeatures, numTrees int) int {
	return 2 * numFeatures * numTrees
}

// ComputeOffsets derives the offset table for a window sequence. It must be
// rebuilt whenever the windows or the stride change.
//
// Arguments:
//   - windows: The window sequence.
//   - stride: The integral image row stride.
//   - numFeatures: Features per weak learner.
//   - numTrees: Number of weak learners.
//
// Returns:
//   - []Offset: One entry per window, in window order.
func ComputeOffsets(windows []Window, stride, numFeatures, numTrees int) []Offset {
	perScale := FeatureTableStride(numFeatures, numTrees)
	offsets := make([]Offset, len(windows))
	for i, w := range windows {
		offsets[i] = Offset{
			TopLeft:      LinearIndex(w.X-1, w.Y-1, stride),
			BottomLeft:   LinearIndex(w.X-1, w.Y+w.H-1, stride),
			TopRight:     LinearIndex(w.X+w.W-1, w.Y-1, stride),
			BottomRight:  LinearIndex(w.X+w.W-1, w.Y+w.H-1, stride),
			FeatureTable: w.ScaleIndex * perScale,
			Area:         w.W * w.H,
		}
	}
	return offsets
}
