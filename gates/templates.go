package gates

import (
	"sync"

	"github.com/chewxy/math32"
)

// TemplateSet is a nearest-neighbour object model of positive and negative
// zero-mean patches. It is safe for concurrent Match calls; Add takes a write
// lock.
type TemplateSet struct {
	mu        sync.RWMutex
	positives [][]float32
	negatives [][]float32
}

// NewTemplateSet creates an empty model.
func NewTemplateSet() *TemplateSet {
	return &TemplateSet{}
}

// Add stores a copy of patch as a positive or negative example.
func (s *TemplateSet) Add(patch []float32, positive bool) {
	cp := make([]float32, len(patch))
	copy(cp, patch)

	s.mu.Lock()
	defer s.mu.Unlock()
	if positive {
		s.positives = append(s.positives, cp)
	} else {
		s.negatives = append(s.negatives, cp)
	}
}

// Len returns the number of positive and negative examples.
func (s *TemplateSet) Len() (positives, negatives int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positives), len(s.negatives)
}

// Match implements Matcher.
//
// Similarities are (NCC+1)/2. The relative similarity is d-/(d- + d+) with d
// the distance to the nearest negative and positive. The conservative variant
// only looks at the earlier half of the positives.
//
// Arguments:
//   - patch: A zero-mean patch of the model's size.
//
// Returns:
//   - relative: 0 without positives, 1 without negatives.
//   - conservative: Same rule over the first half of the positives.
func (s *TemplateSet) Match(patch []float32) (relative, conservative float32) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.positives) == 0 {
		return 0, 0
	}
	if len(s.negatives) == 0 {
		return 1, 1
	}

	half := (len(s.positives) + 1) / 2
	var maxP, maxPHalf, maxN float32
	for i, p := range s.positives {
		sim := (NCC(patch, p) + 1) / 2
		maxP = math32.Max(maxP, sim)
		if i < half {
			maxPHalf = math32.Max(maxPHalf, sim)
		}
	}
	for _, n := range s.negatives {
		maxN = math32.Max(maxN, (NCC(patch, n)+1)/2)
	}

	return ratio(1-maxN, 1-maxP), ratio(1-maxN, 1-maxPHalf)
}

func ratio(dN, dP float32) float32 {
	if dN+dP == 0 {
		return 0
	}
	return dN / (dN + dP)
}

// NCC returns the normalised cross-correlation of two equally sized patches,
// in [-1, 1]. Flat or mismatched inputs yield 0.
func NCC(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var ab, aa, bb float32
	for i := range a {
		ab += a[i] * b[i]
		aa += a[i] * a[i]
		bb += b[i] * b[i]
	}
	norm := math32.Sqrt(aa * bb)
	if norm == 0 {
		return 0
	}
	return math32.Max(-1, math32.Min(1, ab/norm))
}
