// Package cascade - The detection cascade orchestrator.
//
// A Cascade owns the window and offset tables, the accelerator-resident window
// buffer and the per-frame result. Detect runs the gates strictly in order
//
//	Variance -> Ensemble -> Appearance -> Clustering
//
// over a shrinking candidate set. Calls made before Init are silent no-ops so
// callers can check a cascade's readiness.
//
// A Cascade is driven by a single goroutine; stages parallelize internally.
package cascade

import (
	"github.com/google/uuid"
	"github.com/nvr-ai/go-tld/accel"
	"github.com/nvr-ai/go-tld/clustering"
	"github.com/nvr-ai/go-tld/config"
	"github.com/nvr-ai/go-tld/detection"
	"github.com/nvr-ai/go-tld/gates"
	"github.com/nvr-ai/go-tld/images"
	"github.com/nvr-ai/go-tld/profiler"
	"github.com/nvr-ai/go-tld/scanning"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrAlreadyInitialized is returned by Init and the setters on a Ready cascade.
	ErrAlreadyInitialized = errors.New("cascade already initialized")
	// ErrFrameGeometry is returned when a frame does not match the configured geometry.
	ErrFrameGeometry = errors.New("frame geometry does not match configuration")
)

// State is the lifecycle state of a Cascade.
type State int

const (
	// Uninitialized is the state before Init and after Release.
	Uninitialized State = iota
	// Ready is the state after a successful Init.
	Ready
)

func (s State) String() string {
	if s == Ready {
		return "ready"
	}
	return "uninitialized"
}

// Option configures a Cascade at construction.
type Option func(*Cascade)

// WithLogger sets the log entry the cascade extends with its own fields.
func WithLogger(entry *log.Entry) Option {
	return func(c *Cascade) { c.logger = entry }
}

// WithProfiler records stage timings and survivor counts into p.
func WithProfiler(p *profiler.Profiler) Option {
	return func(c *Cascade) { c.profiler = p }
}

// WithDevice supplies an accelerator instead of creating one from the
// configured backend. The caller keeps ownership.
func WithDevice(d accel.Device) Option {
	return func(c *Cascade) { c.device = d }
}

// WithMatcher sets the appearance model.
func WithMatcher(m gates.Matcher) Option {
	return func(c *Cascade) { c.appearance.SetMatcher(m) }
}

// WithPosteriors sets the trained fern posteriors.
func WithPosteriors(p gates.Posteriors) Option {
	return func(c *Cascade) { c.ensemble.SetPosteriors(p) }
}

// InitOption modifies a single Init call.
type InitOption func(*initOptions)

type initOptions struct {
	force bool
}

// WithForce lets Init proceed with unset dimensions. The configuration error
// is still logged and the cascade becomes Ready with no windows.
func WithForce() InitOption {
	return func(o *initOptions) { o.force = true }
}

// Cascade is the scale-space window cascade detector.
type Cascade struct {
	id       uuid.UUID
	cfg      config.Config
	logger   *log.Entry
	profiler *profiler.Profiler

	device     accel.Device
	ownsDevice bool

	state   State
	grid    *scanning.Grid
	offsets []scanning.Offset
	buffer  accel.WindowBuffer
	result  *detection.Result

	variance   *gates.VarianceGate
	ensemble   *gates.EnsembleGate
	appearance *gates.AppearanceGate
	clusterer  *clustering.Clusterer
	clusters   []clustering.Cluster
}

// New creates an uninitialized cascade.
//
// Arguments:
//   - cfg: The configuration; dimensions may still be unset.
//   - opts: Optional collaborators.
//
// Returns:
//   - *Cascade: The cascade, in state Uninitialized.
func New(cfg config.Config, opts ...Option) *Cascade {
	c := &Cascade{
		id:       uuid.New(),
		cfg:      cfg,
		result:   &detection.Result{},
		variance: gates.NewVarianceGate(cfg.Variance.MinVariance),
		ensemble: gates.NewEnsembleGate(gates.EnsembleOptions{
			NumTrees:        cfg.Ensemble.NumTrees,
			NumFeatures:     cfg.Ensemble.NumFeatures,
			Threshold:       cfg.Ensemble.Threshold,
			Seed:            cfg.Ensemble.Seed,
			SmoothingRadius: cfg.Ensemble.SmoothingRadius,
			Workers:         cfg.Workers,
		}),
		appearance: gates.NewAppearanceGate(gates.AppearanceOptions{
			Threshold: cfg.Appearance.Threshold,
			PatchSize: cfg.Appearance.PatchSize,
			Workers:   cfg.Workers,
		}, nil),
		clusterer: clustering.New(cfg.Clustering.Cutoff),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.NewEntry(log.StandardLogger())
	}
	c.logger = c.logger.WithField("cascade_id", c.id.String())
	return c
}

// Init builds the window and offset tables, allocates the accelerator window
// buffer and binds every stage. It fails fast on unset dimensions unless
// WithForce is given, and on any invariant violation during generation.
func (c *Cascade) Init(opts ...InitOption) error {
	var o initOptions
	for _, opt := range opts {
		opt(&o)
	}

	if c.state == Ready {
		return ErrAlreadyInitialized
	}
	if err := c.cfg.ValidateParameters(); err != nil {
		c.logger.WithError(err).Error("invalid cascade configuration")
		return err
	}

	dimErr := c.cfg.ValidateDimensions()
	if dimErr != nil {
		c.logger.WithError(dimErr).Error("cascade dimensions unset")
		if !o.force {
			return dimErr
		}
	}

	device, owned, err := c.acquireDevice()
	if err != nil {
		return err
	}

	grid := &scanning.Grid{}
	if dimErr == nil {
		grid, err = scanning.Generate(c.cfg.ScanParams())
		if err != nil {
			c.dropDevice(device, owned)
			c.logger.WithError(err).Error("window generation failed")
			return errors.Wrap(err, "init")
		}
	}

	numTrees, numFeatures := c.cfg.Ensemble.NumTrees, c.cfg.Ensemble.NumFeatures
	offsets := scanning.ComputeOffsets(grid.Windows, c.cfg.Stride(), numFeatures, numTrees)

	buffer, err := device.AllocateWindows(offsets)
	if err != nil {
		c.dropDevice(device, owned)
		c.logger.WithError(err).Error("window buffer allocation failed")
		return errors.Wrap(err, "init")
	}

	c.device, c.ownsDevice = device, owned
	c.grid, c.offsets, c.buffer = grid, offsets, buffer
	c.result.Init(grid.NumWindows(), numTrees)

	c.variance.Bind(device, buffer, c.result)
	c.ensemble.Bind(device, grid.Pyramid, offsets, c.cfg.Stride(), c.result)
	c.appearance.Bind(grid.Windows, c.result)
	c.clusterer.Bind(grid.Windows)

	c.state = Ready
	c.logger.WithFields(log.Fields{
		"backend": device.Backend(),
		"scales":  grid.Pyramid.Len(),
		"windows": grid.NumWindows(),
	}).Info("cascade initialized")
	return nil
}

func (c *Cascade) acquireDevice() (accel.Device, bool, error) {
	if c.device != nil {
		return c.device, c.ownsDevice, nil
	}
	opts, err := accel.OptionsFor(accel.BackendName(c.cfg.Backend), c.cfg.Workers)
	if err != nil {
		return nil, false, err
	}
	device, err := accel.NewDevice(opts)
	if err != nil {
		return nil, false, err
	}
	return device, true, nil
}

func (c *Cascade) dropDevice(device accel.Device, owned bool) {
	if owned && device != c.device {
		if err := device.Close(); err != nil {
			c.logger.WithError(err).Warn("closing device")
		}
	}
}

// Release frees the tables and the window buffer and resets the object size
// to config.Unset. Releasing a cascade that is not Ready does nothing.
func (c *Cascade) Release() error {
	if c.state != Ready {
		return nil
	}

	var err error
	if c.buffer != nil {
		err = c.buffer.Free()
		c.buffer = nil
	}

	c.variance.Release()
	c.ensemble.Release()
	c.appearance.Release()
	c.clusterer.Release()
	c.result.Release()

	c.grid = nil
	c.offsets = nil
	c.clusters = nil
	c.cfg.Object = config.Object{Width: config.Unset, Height: config.Unset}

	if c.ownsDevice {
		if cerr := c.device.Close(); cerr != nil && err == nil {
			err = cerr
		}
		c.device, c.ownsDevice = nil, false
	}

	c.state = Uninitialized
	c.logger.Debug("cascade released")
	return errors.Wrap(err, "release")
}

// Detect runs the cascade on one frame.
//
// Arguments:
//   - frame: A frame matching the configured geometry.
//
// Returns:
//   - []clustering.Cluster: The detections, possibly empty. Nil when not Ready.
//   - error: A stage failure; the result stays invalid.
func (c *Cascade) Detect(frame *images.Frame) ([]clustering.Cluster, error) {
	if c.state != Ready {
		return nil, nil
	}
	if c.profiler != nil {
		defer c.profiler.StartOperation("detect")()
	}

	c.result.Reset()
	c.clusters = nil

	n := c.grid.NumWindows()
	if n > 0 {
		if frame == nil {
			return nil, errors.Wrap(ErrFrameGeometry, "nil frame")
		}
		if !frame.Matches(c.cfg.Image.Width, c.cfg.Image.Height, c.cfg.Stride()) {
			return nil, errors.Wrapf(ErrFrameGeometry, "got %dx%d/%d, want %dx%d/%d",
				frame.Width, frame.Height, frame.Stride, c.cfg.Image.Width, c.cfg.Image.Height, c.cfg.Stride())
		}
	}

	stats := &c.result.Stats
	stages := []struct {
		gate     gates.Gate
		survived *int
	}{
		{c.variance, &stats.AfterVariance},
		{c.ensemble, &stats.AfterEnsemble},
		{c.appearance, &stats.AfterAppearance},
	}

	candidates := scanning.IndexSequence(n)
	for _, stage := range stages {
		var done func()
		if c.profiler != nil {
			done = c.profiler.StartOperation(stage.gate.Name())
		}

		var err error
		candidates, err = stage.gate.Filter(frame, candidates)
		if done != nil {
			done()
		}
		if err != nil {
			c.logger.WithError(err).WithField("stage", stage.gate.Name()).Error("detection failed")
			return nil, errors.Wrapf(err, "%s stage", stage.gate.Name())
		}
		*stage.survived = len(candidates)
	}

	c.result.Confident = append(c.result.Confident, candidates...)
	c.clusters = c.clusterer.Cluster(c.result.Confident, c.result.Confidences)
	stats.Clusters = len(c.clusters)
	c.result.Valid = true

	c.record(*stats)
	return c.clusters, nil
}

func (c *Cascade) record(s detection.Stats) {
	c.logger.WithFields(log.Fields{
		"windows":    s.Windows,
		"variance":   s.AfterVariance,
		"ensemble":   s.AfterEnsemble,
		"appearance": s.AfterAppearance,
		"clusters":   s.Clusters,
	}).Debug("frame processed")

	if c.profiler == nil {
		return
	}
	c.profiler.RecordMetric("survivors.variance", float64(s.AfterVariance))
	c.profiler.RecordMetric("survivors.ensemble", float64(s.AfterEnsemble))
	c.profiler.RecordMetric("survivors.appearance", float64(s.AfterAppearance))
	c.profiler.RecordMetric("clusters", float64(s.Clusters))
}

// SetObjectSize sets the object dimensions for the next Init.
func (c *Cascade) SetObjectSize(width, height int) error {
	if c.state == Ready {
		return ErrAlreadyInitialized
	}
	c.cfg.Object = config.Object{Width: width, Height: height}
	return nil
}

// ID returns the cascade's instance id.
func (c *Cascade) ID() uuid.UUID { return c.id }

// State returns the lifecycle state.
func (c *Cascade) State() State { return c.state }

// Config returns the current configuration.
func (c *Cascade) Config() config.Config { return c.cfg }

// NumWindows returns the window count, 0 when not Ready.
func (c *Cascade) NumWindows() int { return c.grid.NumWindows() }

// Grid returns the window tables, nil when not Ready.
func (c *Cascade) Grid() *scanning.Grid { return c.grid }

// Offsets returns the offset table, nil when not Ready.
func (c *Cascade) Offsets() []scanning.Offset { return c.offsets }

// Result returns the per-frame result. It is overwritten by every Detect.
func (c *Cascade) Result() *detection.Result { return c.result }

// Clusters returns the detections of the last frame.
func (c *Cascade) Clusters() []clustering.Cluster { return c.clusters }

// VarianceGate returns the variance stage.
func (c *Cascade) VarianceGate() *gates.VarianceGate { return c.variance }

// EnsembleGate returns the ensemble stage.
func (c *Cascade) EnsembleGate() *gates.EnsembleGate { return c.ensemble }

// AppearanceGate returns the appearance stage.
func (c *Cascade) AppearanceGate() *gates.AppearanceGate { return c.appearance }
