package cascade

import (
	"math/rand/v2"
	"testing"

	"github.com/nvr-ai/go-tld/config"
	"github.com/nvr-ai/go-tld/images"
	log "github.com/sirupsen/logrus"
)

func genFrame(w, h int) *images.Frame {
	f := images.UniformFrame(w, h, 0)
	rng := rand.New(rand.NewPCG(1, 1))
	for i := range f.Pix {
		f.Pix[i] = uint8(rng.IntN(256))
	}
	return f
}

func benchmarkDetect(b *testing.B, width, height int, backend string) {
	cfg := config.Default()
	cfg.Object = config.Object{Width: 40, Height: 40}
	cfg.Image = config.Image{Width: width, Height: height, Stride: width}
	cfg.Backend = backend
	cfg.Variance.MinVariance = 100

	logger := log.New()
	logger.SetLevel(log.WarnLevel)
	c := New(cfg, WithLogger(log.NewEntry(logger)), WithPosteriors(confidentPosteriors(cfg)), WithMatcher(constMatcher(0.9)))
	if err := c.Init(); err != nil {
		b.Fatal(err)
	}
	defer func() { _ = c.Release() }()

	frame := genFrame(width, height)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Detect(frame); err != nil {
			b.Fatal(err)
		}
	}
	b.ReportMetric(float64(c.NumWindows()), "windows")
}

func BenchmarkDetect_QVGA_CPU(b *testing.B)    { benchmarkDetect(b, 320, 240, "cpu") }
func BenchmarkDetect_QVGA_OpenCV(b *testing.B) { benchmarkDetect(b, 320, 240, "opencv") }
func BenchmarkDetect_VGA_CPU(b *testing.B)     { benchmarkDetect(b, 640, 480, "cpu") }
