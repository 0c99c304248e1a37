package gates

import (
	"math/rand/v2"

	"github.com/nvr-ai/go-tld/accel"
	"github.com/nvr-ai/go-tld/detection"
	"github.com/nvr-ai/go-tld/images"
	"github.com/nvr-ai/go-tld/scanning"
	"github.com/pkg/errors"
)

// EnsembleOptions configures the random fern ensemble.
type EnsembleOptions struct {
	NumTrees    int
	NumFeatures int
	// Threshold is the minimum mean posterior a window needs to pass.
	Threshold float32
	// Seed makes the sampled pixel comparisons reproducible.
	Seed uint64
	// SmoothingRadius is the low-pass radius applied before comparisons.
	SmoothingRadius int
	Workers         int
}

// Posteriors maps a fern code of one tree to its positive posterior.
type Posteriors interface {
	Posterior(tree, code int) float32
}

// PosteriorTable is a dense Posteriors store, one row of 2^NumFeatures codes per
// tree. A new table is untrained and reports 0 everywhere.
type PosteriorTable struct {
	numCodes int
	values   []float32
}

// NewPosteriorTable allocates a zeroed table.
func NewPosteriorTable(numTrees, numFeatures int) *PosteriorTable {
	numCodes := 1 << numFeatures
	return &PosteriorTable{numCodes: numCodes, values: make([]float32, numTrees*numCodes)}
}

// Posterior implements Posteriors.
func (p *PosteriorTable) Posterior(tree, code int) float32 {
	return p.values[tree*p.numCodes+code]
}

// Set stores the posterior of one code.
func (p *PosteriorTable) Set(tree, code int, v float32) {
	p.values[tree*p.numCodes+code] = v
}

// Fill sets every entry to v.
func (p *PosteriorTable) Fill(v float32) {
	for i := range p.values {
		p.values[i] = v
	}
}

// feature is a normalised pixel comparison inside a unit window.
type feature struct {
	x1, y1, x2, y2 float64
}

// EnsembleGate evaluates a random fern ensemble on the smoothed frame. Each tree
// turns NumFeatures pixel comparisons into a binary code; the window posterior
// is the mean of the per-tree code posteriors.
type EnsembleGate struct {
	opts       EnsembleOptions
	posteriors Posteriors

	features []feature
	// table holds, per scale, tree and feature, two pixel offsets relative to
	// the window's top-left integral offset.
	table []int

	device  accel.Device
	offsets []scanning.Offset
	result  *detection.Result
}

// NewEnsembleGate creates an ensemble gate. Nothing is sampled or allocated
// until Bind, so options that are not yet validated are never used.
func NewEnsembleGate(opts EnsembleOptions) *EnsembleGate {
	return &EnsembleGate{opts: opts}
}

// sampleFeatures draws n comparisons in [0, 1]^2 from a seeded source.
func sampleFeatures(n int, seed uint64) []feature {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]feature, n)
	for i := range out {
		out[i] = feature{x1: rng.Float64(), y1: rng.Float64(), x2: rng.Float64(), y2: rng.Float64()}
	}
	return out
}

// Name returns "ensemble".
func (g *EnsembleGate) Name() string { return "ensemble" }

// Options returns the gate configuration.
func (g *EnsembleGate) Options() EnsembleOptions { return g.opts }

// Posteriors returns the posterior store in use; nil before the first Bind
// unless one was set.
func (g *EnsembleGate) Posteriors() Posteriors { return g.posteriors }

// SetPosteriors replaces the posterior store, e.g. with trained values.
func (g *EnsembleGate) SetPosteriors(p Posteriors) { g.posteriors = p }

// Bind hands the gate its tables and builds the per-scale feature offsets.
// Features are sampled and an untrained posterior table is allocated on the
// first Bind. Options must be valid by then.
//
// Arguments:
//   - device: The accelerator used for smoothing.
//   - pyramid: The retained scale levels.
//   - offsets: The window offset table.
//   - stride: The frame row stride.
//   - result: The shared per-frame result.
func (g *EnsembleGate) Bind(device accel.Device, pyramid scanning.Pyramid, offsets []scanning.Offset, stride int, result *detection.Result) {
	if g.features == nil {
		g.features = sampleFeatures(g.opts.NumTrees*g.opts.NumFeatures, g.opts.Seed)
	}
	if g.posteriors == nil {
		g.posteriors = NewPosteriorTable(g.opts.NumTrees, g.opts.NumFeatures)
	}
	g.device = device
	g.offsets = offsets
	g.result = result
	g.table = g.buildTable(pyramid, stride)
}

func (g *EnsembleGate) buildTable(pyramid scanning.Pyramid, stride int) []int {
	perScale := scanning.FeatureTableStride(g.opts.NumFeatures, g.opts.NumTrees)
	table := make([]int, pyramid.Len()*perScale)
	for s, scale := range pyramid {
		sw, sh := float64(scale.Width-1), float64(scale.Height-1)
		base := s * perScale
		for i, f := range g.features {
			table[base+2*i] = scanning.LinearIndex(int(sw*f.x1)+1, int(sh*f.y1)+1, stride)
			table[base+2*i+1] = scanning.LinearIndex(int(sw*f.x2)+1, int(sh*f.y2)+1, stride)
		}
	}
	return table
}

// Table returns the per-scale feature offsets built at bind time.
func (g *EnsembleGate) Table() []int { return g.table }

// code computes the fern code of one tree for the window at offset o.
func (g *EnsembleGate) code(pix []uint8, o scanning.Offset, tree int) int {
	n := g.opts.NumFeatures
	base := o.FeatureTable + 2*n*tree
	code := 0
	for f := 0; f < n; f++ {
		code <<= 1
		p1 := pix[o.TopLeft+g.table[base+2*f]]
		p2 := pix[o.TopLeft+g.table[base+2*f+1]]
		if p1 > p2 {
			code |= 1
		}
	}
	return code
}

// Filter smooths frame, writes fern codes and posteriors of every candidate
// and keeps those with posterior >= Threshold.
func (g *EnsembleGate) Filter(frame *images.Frame, candidates []int) ([]int, error) {
	if len(candidates) == 0 || g.device == nil || g.result == nil {
		return []int{}, nil
	}

	smoothed, err := g.device.Smooth(frame, g.opts.SmoothingRadius)
	if err != nil {
		return nil, errors.Wrap(err, "ensemble gate")
	}

	numTrees := g.opts.NumTrees
	pass := make([]bool, len(candidates))
	err = accel.ParallelFor(g.opts.Workers, len(candidates), func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			idx := candidates[i]
			codes := g.result.Features(idx)
			var sum float32
			for t := 0; t < numTrees; t++ {
				c := g.code(smoothed.Pix, g.offsets[idx], t)
				codes[t] = c
				sum += g.posteriors.Posterior(t, c)
			}
			conf := float32(0)
			if numTrees > 0 {
				conf = sum / float32(numTrees)
			}
			g.result.Posteriors[idx] = conf
			pass[i] = conf >= g.opts.Threshold
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "ensemble gate")
	}
	return compact(candidates, pass), nil
}

// Release drops the bound tables. Sampled features and posteriors are kept.
func (g *EnsembleGate) Release() {
	g.device = nil
	g.offsets = nil
	g.result = nil
	g.table = nil
}
