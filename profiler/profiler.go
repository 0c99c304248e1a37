// Package profiler - Per-stage timings and survivor counts of the detection
// cascade, with optional periodic reports through logrus.
package profiler

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Options configures the profiler.
type Options struct {
	// ReportInterval specifies how often to emit reports (default: 2s).
	ReportInterval time.Duration
	// MaxSamples bounds the samples kept per series (default: 600).
	MaxSamples int
	// Logger receives the reports. Defaults to the standard logger.
	Logger *log.Entry
}

// Summary is the aggregate of one series over its retained samples.
type Summary struct {
	Avg     float64
	Min     float64
	Max     float64
	Samples int
	// Count is the number of samples ever recorded.
	Count int64
}

// series is a bounded window of samples.
type series struct {
	values []float64
	sum    float64
	count  int64
}

func (s *series) add(v float64, limit int) {
	s.values = append(s.values, v)
	s.sum += v
	s.count++
	if len(s.values) > limit {
		s.sum -= s.values[0]
		s.values = s.values[1:]
	}
}

func (s *series) summary() Summary {
	out := Summary{Samples: len(s.values), Count: s.count}
	if len(s.values) == 0 {
		return out
	}
	out.Min, out.Max = s.values[0], s.values[0]
	for _, v := range s.values[1:] {
		out.Min = min(out.Min, v)
		out.Max = max(out.Max, v)
	}
	out.Avg = s.sum / float64(len(s.values))
	return out
}

// Profiler records operation durations (in milliseconds) and numeric metrics.
// All methods are safe for concurrent use.
type Profiler struct {
	reportInterval time.Duration
	maxSamples     int
	logger         *log.Entry

	mu         sync.RWMutex
	operations map[string]*series
	metrics    map[string]*series

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a profiler with the specified options.
func New(opts Options) *Profiler {
	if opts.ReportInterval == 0 {
		opts.ReportInterval = 2 * time.Second
	}
	if opts.MaxSamples == 0 {
		opts.MaxSamples = 600
	}
	if opts.Logger == nil {
		opts.Logger = log.NewEntry(log.StandardLogger())
	}

	return &Profiler{
		reportInterval: opts.ReportInterval,
		maxSamples:     opts.MaxSamples,
		logger:         opts.Logger.WithField("component", "profiler"),
		operations:     make(map[string]*series),
		metrics:        make(map[string]*series),
	}
}

// StartOperation begins timing an operation.
//
// Returns:
//   - func(): Call when the operation completes.
func (p *Profiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		p.record(p.operations, name, float64(time.Since(start).Microseconds())/1000)
	}
}

// RecordMetric records a metric value, e.g. the survivors of a stage.
func (p *Profiler) RecordMetric(name string, value float64) {
	p.record(p.metrics, name, value)
}

func (p *Profiler) record(m map[string]*series, name string, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := m[name]
	if !ok {
		s = &series{values: make([]float64, 0, 16)}
		m[name] = s
	}
	s.add(value, p.maxSamples)
}

// Operation returns the duration summary (milliseconds) of an operation.
func (p *Profiler) Operation(name string) (Summary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.operations[name]
	if !ok {
		return Summary{}, false
	}
	return s.summary(), true
}

// Metric returns the summary of a metric.
func (p *Profiler) Metric(name string) (Summary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.metrics[name]
	if !ok {
		return Summary{}, false
	}
	return s.summary(), true
}

// Start begins periodic reporting. Calling it twice is a no-op.
func (p *Profiler) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(p.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Report()
			}
		}
	}()
}

// Stop ends periodic reporting and waits for the reporter to exit.
func (p *Profiler) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

// Report logs one line per series plus the heap and goroutine counts.
func (p *Profiler) Report() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	p.logger.WithFields(log.Fields{
		"goroutines": runtime.NumGoroutine(),
		"heap_alloc": mem.HeapAlloc,
		"gc_cycles":  mem.NumGC,
	}).Info("runtime")

	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, name := range sortedKeys(p.operations) {
		s := p.operations[name].summary()
		p.logger.WithFields(log.Fields{
			"operation": name,
			"avg_ms":    s.Avg,
			"min_ms":    s.Min,
			"max_ms":    s.Max,
			"count":     s.Count,
		}).Info("timing")
	}
	for _, name := range sortedKeys(p.metrics) {
		s := p.metrics[name].summary()
		p.logger.WithFields(log.Fields{
			"metric": name,
			"avg":    s.Avg,
			"min":    s.Min,
			"max":    s.Max,
			"count":  s.Count,
		}).Info("metric")
	}
}

func sortedKeys(m map[string]*series) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
