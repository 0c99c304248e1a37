package images

import (
	"image"
	"image/draw"

	"github.com/nfnt/resize"
)

// Patch samples the region r of f onto a size x size grid and returns the
// zero-mean intensities in row-major order. The region is clipped to the frame;
// an empty intersection yields nil.
func Patch(f *Frame, r Rect, size int) []float32 {
	region := image.Rect(r.X1, r.Y1, r.X2, r.Y2).Intersect(image.Rect(0, 0, f.Width, f.Height))
	if region.Empty() || size <= 0 {
		return nil
	}

	sub := f.Gray().SubImage(region)
	scaled := resize.Resize(uint(size), uint(size), sub, resize.Bilinear)

	gray, ok := scaled.(*image.Gray)
	if !ok {
		gray = image.NewGray(scaled.Bounds())
		draw.Draw(gray, gray.Rect, scaled, scaled.Bounds().Min, draw.Src)
	}

	out := make([]float32, size*size)
	var mean float32
	b := gray.Bounds()
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := float32(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			out[y*size+x] = v
			mean += v
		}
	}
	mean /= float32(len(out))
	for i := range out {
		out[i] -= mean
	}
	return out
}
