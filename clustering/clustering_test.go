package clustering

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/nvr-ai/go-tld/images"
	"github.com/nvr-ai/go-tld/scanning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var approx = cmpopts.EquateApprox(0, 1e-6)

func TestGroup(t *testing.T) {
	windows := []scanning.Window{
		{X: 10, Y: 10, W: 20, H: 20},
		{X: 12, Y: 10, W: 20, H: 20},
		{X: 60, Y: 60, W: 20, H: 20},
		{X: 11, Y: 11, W: 20, H: 20},
		{X: 0, Y: 0, W: 20, H: 20},
		{X: 6, Y: 0, W: 20, H: 20},
		{X: 12, Y: 0, W: 20, H: 20},
	}
	scores := []float32{0.9, 0.7, 0.8, 0.8, 1, 1, 1}

	tests := []struct {
		name      string
		confident []int
		want      []Cluster
	}{
		{
			name:      "empty",
			confident: []int{},
			want:      []Cluster{},
		},
		{
			name:      "single window",
			confident: []int{2},
			want: []Cluster{
				{Box: images.Rect{X1: 60, Y1: 60, X2: 80, Y2: 80}, Members: []int{2}, Score: 0.8},
			},
		},
		{
			name:      "two groups",
			confident: []int{0, 1, 2, 3},
			want: []Cluster{
				{Box: images.Rect{X1: 11, Y1: 10, X2: 31, Y2: 30}, Members: []int{0, 1, 3}, Score: 0.8},
				{Box: images.Rect{X1: 60, Y1: 60, X2: 80, Y2: 80}, Members: []int{2}, Score: 0.8},
			},
		},
		{
			name:      "linkage is transitive",
			confident: []int{4, 5, 6},
			want: []Cluster{
				{Box: images.Rect{X1: 6, Y1: 0, X2: 26, Y2: 20}, Members: []int{4, 5, 6}, Score: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Group(tt.confident, windows, scores, DefaultCutoff)
			require.NotNil(t, got)
			if diff := cmp.Diff(tt.want, got, approx); diff != "" {
				t.Errorf("Group() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGroup_Deterministic(t *testing.T) {
	grid, err := scanning.Generate(scanning.Params{
		ObjectWidth: 24, ObjectHeight: 24,
		ImageWidth: 101, ImageHeight: 101,
		MinScale: -1, MaxScale: 1, ScaleStep: 1.2,
		MinSize: 10, Shift: 0.1, UseShift: true,
	})
	require.NoError(t, err)

	var confident []int
	for i := 0; i < grid.NumWindows(); i += 97 {
		confident = append(confident, i)
	}
	scores := make([]float32, grid.NumWindows())
	for i := range scores {
		scores[i] = float32(i%10) / 10
	}

	first := Group(confident, grid.Windows, scores, DefaultCutoff)
	second := Group(confident, grid.Windows, scores, DefaultCutoff)
	assert.Empty(t, cmp.Diff(first, second))

	seen := 0
	for _, c := range first {
		seen += len(c.Members)
		assert.IsIncreasing(t, c.Members)
	}
	assert.Equal(t, len(confident), seen, "clusters partition the confident set")
}

func TestClusterer(t *testing.T) {
	c := New(DefaultCutoff)
	assert.Empty(t, c.Cluster([]int{0}, nil))

	c.Bind([]scanning.Window{{X: 1, Y: 1, W: 10, H: 10}})
	got := c.Cluster([]int{0}, nil)
	require.Len(t, got, 1)
	assert.Equal(t, images.Rect{X1: 1, Y1: 1, X2: 11, Y2: 11}, got[0].Box)
	assert.Zero(t, got[0].Score)

	c.Release()
	assert.Empty(t, c.Cluster([]int{0}, nil))
}
