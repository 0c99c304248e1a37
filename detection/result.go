// Package detection - Frame-scoped state shared by the cascade stages.
package detection

// Stats records how many windows survived each stage of one frame.
type Stats struct {
	Windows         int
	AfterVariance   int
	AfterEnsemble   int
	AfterAppearance int
	Clusters        int
}

// Result is the per-frame mutable state of a cascade. It is owned by the
// cascade; gates write disjoint per-window fields or append to Confident.
type Result struct {
	// Posteriors holds one score per window, reset to 0 every frame.
	Posteriors []float32
	// Variances holds the window intensity variance computed by the variance gate.
	Variances []float32
	// Confidences holds the appearance similarity of windows that reached the
	// appearance gate.
	Confidences []float32
	// FeatureVectors holds NumTrees fern codes per window, window-major.
	FeatureVectors []int
	// Confident lists the windows that passed every gate, ascending.
	Confident []int
	// Valid is set once clustering of the current frame completed.
	Valid bool
	// Stats describes the current frame.
	Stats Stats

	numTrees int
}

// New allocates a result for numWindows windows and numTrees weak learners.
func New(numWindows, numTrees int) *Result {
	r := &Result{}
	r.Init(numWindows, numTrees)
	return r
}

// Init (re)allocates all per-window storage.
func (r *Result) Init(numWindows, numTrees int) {
	r.Posteriors = make([]float32, numWindows)
	r.Variances = make([]float32, numWindows)
	r.Confidences = make([]float32, numWindows)
	r.FeatureVectors = make([]int, numWindows*numTrees)
	r.Confident = make([]int, 0, 64)
	r.numTrees = numTrees
	r.Valid = false
	r.Stats = Stats{Windows: numWindows}
}

// NumWindows returns the number of windows the result was sized for.
func (r *Result) NumWindows() int {
	return len(r.Posteriors)
}

// NumTrees returns the number of fern codes stored per window.
func (r *Result) NumTrees() int {
	return r.numTrees
}

// Features returns the fern codes of one window. The slice aliases the result.
func (r *Result) Features(window int) []int {
	return r.FeatureVectors[window*r.numTrees : (window+1)*r.numTrees]
}

// Reset clears the frame-scoped state for a new frame.
func (r *Result) Reset() {
	clear(r.Posteriors)
	clear(r.Variances)
	clear(r.Confidences)
	clear(r.FeatureVectors)
	r.Confident = r.Confident[:0]
	r.Valid = false
	r.Stats = Stats{Windows: len(r.Posteriors)}
}

// Release drops all storage.
func (r *Result) Release() {
	r.Posteriors = nil
	r.Variances = nil
	r.Confidences = nil
	r.FeatureVectors = nil
	r.Confident = nil
	r.Valid = false
	r.Stats = Stats{}
	r.numTrees = 0
}
