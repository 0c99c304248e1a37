package images

import "sync"

// BoxBlur applies a separable box blur with clamped edges and returns a new
// frame with the same geometry.
//
// Each pass keeps a sliding window sum per row or column, so the cost is
// O(W*H) regardless of radius. The ensemble gate uses it to suppress pixel
// noise before pixel-pair comparisons.
//
// Arguments:
//   - src: The source frame.
//   - radius: Blur radius (window size = 2*radius + 1). Values <= 0 copy.
//   - parallel: Split rows and columns across goroutines.
//
// Returns:
//   - *Frame: The blurred frame.
func BoxBlur(src *Frame, radius int, parallel bool) *Frame {
	dst := &Frame{Width: src.Width, Height: src.Height, Stride: src.Stride, Pix: make([]uint8, len(src.Pix))}
	if radius <= 0 {
		copy(dst.Pix, src.Pix)
		return dst
	}

	tmp := &Frame{Width: src.Width, Height: src.Height, Stride: src.Stride, Pix: make([]uint8, len(src.Pix))}
	boxBlurHoriz(src, tmp, radius, parallel)
	boxBlurVert(tmp, dst, radius, parallel)
	return dst
}

func boxBlurHoriz(src, dst *Frame, r int, parallel bool) {
	w := src.Width
	window := uint32(2*r + 1)
	rowTask := func(y int) {
		row := y * src.Stride
		load := func(x int) uint32 {
			return uint32(src.Pix[row+clamp(x, w)])
		}

		var sum uint32
		for dx := -r; dx <= r; dx++ {
			sum += load(dx)
		}
		for x := 0; x < w; x++ {
			dst.Pix[row+x] = uint8((sum + window/2) / window)
			// new = old - left + right
			sum += load(x+r+1) - load(x-r)
		}
	}
	run(src.Height, parallel, rowTask)
}

func boxBlurVert(src, dst *Frame, r int, parallel bool) {
	h := src.Height
	window := uint32(2*r + 1)
	colTask := func(x int) {
		load := func(y int) uint32 {
			return uint32(src.Pix[clamp(y, h)*src.Stride+x])
		}

		var sum uint32
		for dy := -r; dy <= r; dy++ {
			sum += load(dy)
		}
		for y := 0; y < h; y++ {
			dst.Pix[y*dst.Stride+x] = uint8((sum + window/2) / window)
			sum += load(y+r+1) - load(y-r)
		}
	}
	run(src.Width, parallel, colTask)
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// run executes task for 0..n-1, chunked across goroutines when parallel.
func run(n int, parallel bool, task func(int)) {
	if !parallel || n < 4 {
		for i := 0; i < n; i++ {
			task(i)
		}
		return
	}

	chunk := chooseChunk(n)
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				task(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// chooseChunk keeps goroutine counts low while preserving cache locality.
func chooseChunk(n int) int {
	switch {
	case n >= 2048:
		return 128
	case n >= 512:
		return 64
	default:
		return 32
	}
}
