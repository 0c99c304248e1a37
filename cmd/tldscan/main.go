// Command tldscan runs the detection cascade over a recorded frame sequence and
// logs the detections of every frame.
//
//	tldscan -frames ./clip -bbox 120,80,40,60 -prior 1 -v
//
// The object model is bootstrapped from -bbox on the first frame: the boxed
// patch becomes the positive template and distant windows the negatives.
// With -size every frame is scaled first, and -bbox is read in the scaled
// frame. -thumbnail shrinks stills on load and therefore needs -size.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nvr-ai/go-tld/cascade"
	"github.com/nvr-ai/go-tld/config"
	"github.com/nvr-ai/go-tld/gates"
	"github.com/nvr-ai/go-tld/images"
	"github.com/nvr-ai/go-tld/profiler"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	// maxNegatives bounds the negative templates taken from the first frame.
	maxNegatives = 100
	// negativeOverlap is the IoU below which a window counts as background.
	negativeOverlap = 0.2
)

type options struct {
	configPath  string
	framesDir   string
	videoPath   string
	object      string
	size        string
	bbox        string
	backend     string
	workers     int
	minVariance float64
	prior       float64
	thumbnail   bool
	profile     bool
	verbose     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to a YAML cascade configuration")
	flag.StringVar(&opts.framesDir, "frames", "", "Directory of frame-N.{jpg,png,webp,bmp} stills")
	flag.StringVar(&opts.videoPath, "video", "", "Path to a video file (.mp4, .avi, .mov)")
	flag.StringVar(&opts.object, "object", "", "Object size as WxH (overrides the config)")
	flag.StringVar(&opts.size, "size", "", "Frame size as WxH; every frame is scaled to it (overrides the config)")
	flag.StringVar(&opts.bbox, "bbox", "", "Initial object box in the first frame as x,y,w,h")
	flag.StringVar(&opts.backend, "backend", "", "Accelerator backend: cpu or opencv")
	flag.IntVar(&opts.workers, "workers", -1, "Per-stage parallelism, 0 for every CPU")
	flag.Float64Var(&opts.minVariance, "min-variance", -1, "Variance gate threshold")
	flag.Float64Var(&opts.prior, "prior", 0, "Uniform fern posterior used in place of a trained ensemble")
	flag.BoolVar(&opts.thumbnail, "thumbnail", false, "Downscale stills with libvips while decoding, needs -size")
	flag.BoolVar(&opts.profile, "profile", false, "Log periodic stage timing reports")
	flag.BoolVar(&opts.verbose, "v", false, "Log per-frame stage statistics")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if opts.verbose {
		log.SetLevel(log.DebugLevel)
	}

	if err := run(opts); err != nil {
		log.WithError(err).Fatal("tldscan failed")
	}
}

func run(opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	var box images.Rect
	if opts.bbox != "" {
		if box, err = parseBox(opts.bbox); err != nil {
			return err
		}
		cfg.Object = config.Object{Width: box.Width(), Height: box.Height()}
	}

	source, err := openSource(opts, cfg)
	if err != nil {
		return err
	}
	defer source.Close()

	first, err := source.Next()
	if err != nil {
		return err
	}
	if first == nil {
		return errors.New("frame source is empty")
	}
	cfg.Image = config.Image{Width: first.Width, Height: first.Height, Stride: first.Stride}

	var prof *profiler.Profiler
	if opts.profile {
		prof = profiler.New(profiler.Options{ReportInterval: 5 * time.Second})
		prof.Start()
		defer prof.Stop()
	}

	posteriors := gates.NewPosteriorTable(cfg.Ensemble.NumTrees, cfg.Ensemble.NumFeatures)
	posteriors.Fill(float32(opts.prior))
	model := gates.NewTemplateSet()

	c := cascade.New(cfg, cascade.WithPosteriors(posteriors), cascade.WithMatcher(model), cascade.WithProfiler(prof))
	if err := c.Init(); err != nil {
		return err
	}
	defer func() {
		if err := c.Release(); err != nil {
			log.WithError(err).Warn("release failed")
		}
	}()

	if opts.bbox != "" {
		bootstrap(c, model, first, box)
	}

	for index, frame := 0, first; frame != nil; index++ {
		clusters, err := c.Detect(frame)
		if err != nil {
			return errors.Wrapf(err, "frame %d", index)
		}

		entry := log.WithFields(log.Fields{"frame": index, "detections": len(clusters)})
		for _, cl := range clusters {
			entry.WithFields(log.Fields{
				"box":     cl.Box.String(),
				"score":   fmt.Sprintf("%.3f", cl.Score),
				"windows": len(cl.Members),
			}).Info("detection")
		}
		if len(clusters) == 0 {
			entry.Info("no detection")
		}

		if frame, err = source.Next(); err != nil {
			return err
		}
	}
	return nil
}

func loadConfig(opts options) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return cfg, err
		}
	}

	if opts.object != "" {
		w, h, err := parseSize(opts.object)
		if err != nil {
			return cfg, err
		}
		cfg.Object = config.Object{Width: w, Height: h}
	}
	if opts.size != "" {
		w, h, err := parseSize(opts.size)
		if err != nil {
			return cfg, err
		}
		cfg.Image = config.Image{Width: w, Height: h, Stride: w}
	}
	if opts.backend != "" {
		cfg.Backend = opts.backend
	}
	if opts.workers >= 0 {
		cfg.Workers = opts.workers
	}
	if opts.minVariance >= 0 {
		cfg.Variance.MinVariance = opts.minVariance
	}
	return cfg, cfg.ValidateParameters()
}

func openSource(opts options, cfg config.Config) (frameSource, error) {
	width, height := max(cfg.Image.Width, 0), max(cfg.Image.Height, 0)
	switch {
	case opts.framesDir != "" && opts.videoPath != "":
		return nil, errors.New("-frames and -video are mutually exclusive")
	case opts.framesDir != "":
		return newDirectorySource(opts.framesDir, width, height, opts.thumbnail)
	case opts.videoPath != "":
		return newVideoSource(opts.videoPath, width, height)
	default:
		flag.Usage()
		os.Exit(2)
		return nil, nil
	}
}

// bootstrap seeds the object model from the first frame: the box itself is
// the positive example, windows that barely overlap it are negatives.
func bootstrap(c *cascade.Cascade, model *gates.TemplateSet, frame *images.Frame, box images.Rect) {
	size := c.Config().Appearance.PatchSize
	model.Add(images.Patch(frame, box, size), true)

	windows := c.Grid().Windows
	if len(windows) == 0 {
		return
	}
	step := max(1, len(windows)/(4*maxNegatives))
	negatives := 0
	for i := 0; i < len(windows) && negatives < maxNegatives; i += step {
		r := windows[i].Rect()
		if images.CalculateIoU(r, box) >= negativeOverlap {
			continue
		}
		if patch := images.Patch(frame, r, size); patch != nil {
			model.Add(patch, false)
			negatives++
		}
	}

	pos, neg := model.Len()
	log.WithFields(log.Fields{"box": box.String(), "positives": pos, "negatives": neg}).Info("object model bootstrapped")
}

func parseSize(s string) (int, int, error) {
	parts := strings.Split(strings.ToLower(s), "x")
	if len(parts) != 2 {
		return 0, 0, errors.Errorf("size %q is not WxH", s)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, errors.Wrapf(err, "size %q", s)
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, errors.Wrapf(err, "size %q", s)
	}
	return w, h, nil
}

func parseBox(s string) (images.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return images.Rect{}, errors.Errorf("box %q is not x,y,w,h", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return images.Rect{}, errors.Wrapf(err, "box %q", s)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return images.Rect{}, errors.Errorf("box %q has no area", s)
	}
	return images.RectXYWH(v[0], v[1], v[2], v[3]), nil
}
