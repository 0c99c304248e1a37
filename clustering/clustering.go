// Package clustering - Groups confident windows into final detections.
package clustering

import (
	"math"

	"github.com/nvr-ai/go-tld/images"
	"github.com/nvr-ai/go-tld/scanning"
	"gonum.org/v1/gonum/stat"
)

// DefaultCutoff links windows whose IoU exceeds one half.
const DefaultCutoff = 0.5

// Cluster is one final detection hypothesis.
type Cluster struct {
	// Box is the mean box of the members.
	Box images.Rect
	// Members are the contributing window indices, ascending.
	Members []int
	// Score is the mean member score.
	Score float32
}

// Clusterer partitions confident windows by overlap. Two windows are linked
// when their distance 1 - IoU is below Cutoff; clusters are the connected
// components of that graph.
type Clusterer struct {
	Cutoff float64

	windows []scanning.Window
}

// New creates a clusterer with the given distance cutoff.
func New(cutoff float64) *Clusterer {
	return &Clusterer{Cutoff: cutoff}
}

// Bind hands the clusterer the window table.
func (c *Clusterer) Bind(windows []scanning.Window) {
	c.windows = windows
}

// Release drops the window table.
func (c *Clusterer) Release() {
	c.windows = nil
}

// Cluster groups the confident windows.
//
// Arguments:
//   - confident: Window indices, ascending.
//   - scores: Per-window scores indexed by window; nil scores as 0.
//
// Returns:
//   - []Cluster: One entry per component, ordered by smallest member. Empty
//     input yields an empty, non-nil slice.
func (c *Clusterer) Cluster(confident []int, scores []float32) []Cluster {
	return Group(confident, c.windows, scores, c.Cutoff)
}

// Group is the stateless form of Clusterer.Cluster. The output depends only on
// its arguments.
func Group(confident []int, windows []scanning.Window, scores []float32, cutoff float64) []Cluster {
	n := len(confident)
	if n == 0 || len(windows) == 0 {
		return []Cluster{}
	}

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		// The smaller position becomes the root so components are keyed by
		// their first member.
		if rb < ra {
			ra, rb = rb, ra
		}
		parent[rb] = ra
	}

	for i := 0; i < n; i++ {
		ri := windows[confident[i]].Rect()
		for j := i + 1; j < n; j++ {
			iou := images.CalculateIoU(ri, windows[confident[j]].Rect())
			if 1-float64(iou) < cutoff {
				union(i, j)
			}
		}
	}

	index := make(map[int]int, n)
	var groups [][]int
	for i := 0; i < n; i++ {
		root := find(i)
		g, ok := index[root]
		if !ok {
			g = len(groups)
			index[root] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}

	out := make([]Cluster, 0, len(groups))
	for _, members := range groups {
		out = append(out, summarize(members, confident, windows, scores))
	}
	return out
}

func summarize(members, confident []int, windows []scanning.Window, scores []float32) Cluster {
	xs := make([]float64, len(members))
	ys := make([]float64, len(members))
	ws := make([]float64, len(members))
	hs := make([]float64, len(members))
	ss := make([]float64, len(members))
	indices := make([]int, len(members))

	for k, m := range members {
		idx := confident[m]
		w := windows[idx]
		indices[k] = idx
		xs[k], ys[k], ws[k], hs[k] = float64(w.X), float64(w.Y), float64(w.W), float64(w.H)
		if idx < len(scores) {
			ss[k] = float64(scores[idx])
		}
	}

	return Cluster{
		Box: images.RectXYWH(
			round(stat.Mean(xs, nil)),
			round(stat.Mean(ys, nil)),
			round(stat.Mean(ws, nil)),
			round(stat.Mean(hs, nil)),
		),
		Members: indices,
		Score:   float32(stat.Mean(ss, nil)),
	}
}

func round(v float64) int {
	return int(math.Round(v))
}
