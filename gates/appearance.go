package gates

import (
	"github.com/nvr-ai/go-tld/accel"
	"github.com/nvr-ai/go-tld/detection"
	"github.com/nvr-ai/go-tld/images"
	"github.com/nvr-ai/go-tld/scanning"
	"github.com/pkg/errors"
)

// Matcher compares a normalised patch with the object model.
type Matcher interface {
	// Match returns the relative and the conservative similarity in [0, 1].
	Match(patch []float32) (relative, conservative float32)
}

// AppearanceOptions configures the appearance gate.
type AppearanceOptions struct {
	// Threshold is the relative similarity a window must exceed.
	Threshold float32
	// PatchSize is the side of the square patch windows are sampled to.
	PatchSize int
	Workers   int
}

// AppearanceGate is the final, most expensive stage. It samples every
// remaining window into a patch and keeps those the matcher considers similar
// to the object.
type AppearanceGate struct {
	opts    AppearanceOptions
	matcher Matcher

	windows []scanning.Window
	result  *detection.Result
}

// NewAppearanceGate creates an appearance gate. A nil matcher rejects every
// window until one is set.
func NewAppearanceGate(opts AppearanceOptions, matcher Matcher) *AppearanceGate {
	return &AppearanceGate{opts: opts, matcher: matcher}
}

// Name returns "appearance".
func (g *AppearanceGate) Name() string { return "appearance" }

// Matcher returns the matcher in use.
func (g *AppearanceGate) Matcher() Matcher { return g.matcher }

// SetMatcher replaces the matcher. Must not be called during Filter.
func (g *AppearanceGate) SetMatcher(m Matcher) { g.matcher = m }

// Bind hands the gate the window sequence and the shared result.
func (g *AppearanceGate) Bind(windows []scanning.Window, result *detection.Result) {
	g.windows = windows
	g.result = result
}

// Filter keeps the candidates whose relative similarity exceeds Threshold and
// records it in Result.Confidences.
func (g *AppearanceGate) Filter(frame *images.Frame, candidates []int) ([]int, error) {
	if len(candidates) == 0 || g.matcher == nil || g.result == nil {
		return []int{}, nil
	}

	pass := make([]bool, len(candidates))
	err := accel.ParallelFor(g.opts.Workers, len(candidates), func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			idx := candidates[i]
			patch := images.Patch(frame, g.windows[idx].Rect(), g.opts.PatchSize)
			if patch == nil {
				continue
			}
			relative, _ := g.matcher.Match(patch)
			g.result.Confidences[idx] = relative
			pass[i] = relative > g.opts.Threshold
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "appearance gate")
	}
	return compact(candidates, pass), nil
}

// Release drops the bound references. The matcher is kept.
func (g *AppearanceGate) Release() {
	g.windows = nil
	g.result = nil
}
