// Package gates - The filter stages of the detection cascade.
//
// Every gate consumes the indices that are still candidates and emits a subset
// in the same (ascending) order. A gate never adds windows back and does no work
// for an empty candidate set.
//
//	all windows ─► Variance ─► Ensemble ─► Appearance ─► confident windows
package gates

import (
	"github.com/nvr-ai/go-tld/images"
)

// Gate is the selection contract shared by all cascade stages.
type Gate interface {
	// Name identifies the stage in logs and metrics.
	Name() string
	// Filter returns the subset of candidates that pass the stage. The input
	// slice is not modified and the output preserves its order.
	Filter(frame *images.Frame, candidates []int) ([]int, error)
	// Release drops all state derived at bind time.
	Release()
}

// compact returns candidates[i] for every i with pass[i], preserving order.
func compact(candidates []int, pass []bool) []int {
	out := make([]int, 0, len(candidates))
	for i, idx := range candidates {
		if pass[i] {
			out = append(out, idx)
		}
	}
	return out
}
