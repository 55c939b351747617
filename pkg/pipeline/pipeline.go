// Package pipeline runs the blurred clustering chain over the hits of an
// event: image building, Gaussian blurring, region extraction, collinear
// merging and mapping back to hits.
package pipeline

import (
	"log"
	"runtime"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"blurredcluster/internal/models"
	"blurredcluster/pkg/blur"
	"blurredcluster/pkg/clustering"
	"blurredcluster/pkg/geometry"
	"blurredcluster/pkg/hitimage"
)

// ErrInvalidParams is returned by NewPipeline for unusable parameters
var ErrInvalidParams = errors.New("invalid pipeline parameters")

// invalidParamsError reports a rejected parameter. It matches both
// ErrInvalidParams and the sentinel of the validator that rejected it.
type invalidParamsError struct {
	cause error
}

func invalidParams(err error) error {
	return &invalidParamsError{cause: err}
}

func (e *invalidParamsError) Error() string {
	return ErrInvalidParams.Error() + ": " + e.cause.Error()
}

func (e *invalidParamsError) Unwrap() []error {
	return []error{ErrInvalidParams, e.cause}
}

// Params holds the clustering configuration.
type Params struct {
	// Kernel sets the blur radii and width, in bins
	Kernel blur.KernelParams

	// ScaleTickByDrift recomputes the tick radius from the wire pitch and the
	// drift distance per tick. Requires WithDetector.
	ScaleTickByDrift bool

	// UseFFT selects the frequency-domain convolver
	UseFFT bool

	// Extract controls region growing on the blurred image
	Extract clustering.ExtractParams

	// Merge controls joining of collinear clusters
	Merge clustering.MergeParams

	// NumCores bounds how many planes are processed at once.
	// Zero or less means all available CPUs.
	NumCores int

	// Verbose enables progress logging
	Verbose bool
}

// Pipeline clusters hits plane by plane. A Pipeline is safe for concurrent
// use; the kernel cache is its only shared mutable state.
type Pipeline struct {
	params   Params
	kernel   blur.KernelParams
	geom     geometry.Geometry
	cache    *blur.KernelCache
	observer Observer
	logger   *log.Logger

	// observing is false for NopObserver, which skips the snapshot copies
	observing bool

	detector  *geometry.Detector
	wirePitch float64

	mu      sync.Mutex
	metrics Metrics
}

// Option customises a Pipeline
type Option func(*Pipeline)

// WithObserver installs an observer for intermediate results
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// WithKernelCache shares a kernel cache between pipelines
func WithKernelCache(c *blur.KernelCache) Option {
	return func(p *Pipeline) {
		p.cache = c
	}
}

// WithLogger sets the logger used for progress messages
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithDetector provides the timing and wire pitch used by ScaleTickByDrift
func WithDetector(d geometry.Detector, wirePitch float64) Option {
	return func(p *Pipeline) {
		p.detector = &d
		p.wirePitch = wirePitch
	}
}

// NewPipeline validates params and creates a pipeline.
// All configuration errors surface here, never during processing.
func NewPipeline(params *Params, geom geometry.Geometry, opts ...Option) (*Pipeline, error) {
	if params == nil {
		return nil, errors.Wrap(ErrInvalidParams, "nil params")
	}
	if geom == nil {
		return nil, errors.Wrap(ErrInvalidParams, "nil geometry")
	}

	p := &Pipeline{
		params:   *params,
		geom:     geom,
		observer: NopObserver{},
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cache == nil {
		p.cache = blur.NewKernelCache()
	}
	if p.observer == nil {
		p.observer = NopObserver{}
	}
	_, nop := p.observer.(NopObserver)
	p.observing = !nop
	if p.params.NumCores <= 0 {
		p.params.NumCores = runtime.NumCPU()
	}

	p.kernel = p.params.Kernel
	if p.params.ScaleTickByDrift {
		if p.detector == nil {
			return nil, errors.Wrap(ErrInvalidParams, "tick scaling needs detector properties")
		}
		if err := p.detector.Validate(); err != nil {
			return nil, invalidParams(errors.Wrap(err, "tick scaling"))
		}
		if p.wirePitch <= 0 {
			return nil, errors.Wrapf(ErrInvalidParams, "wire pitch %g must be positive", p.wirePitch)
		}
		p.kernel = blur.FindBlurringParameters(p.kernel, p.wirePitch, p.detector.TickLength())
	}

	if err := p.kernel.Validate(); err != nil {
		return nil, invalidParams(err)
	}
	if err := p.params.Extract.Validate(); err != nil {
		return nil, invalidParams(err)
	}
	if err := p.params.Merge.Validate(); err != nil {
		return nil, invalidParams(err)
	}

	return p, nil
}

// KernelParams returns the kernel parameters in use, after tick scaling
func (p *Pipeline) KernelParams() blur.KernelParams {
	return p.kernel
}

// ProcessPlane clusters the hits of one plane.
//
// The returned clusters hold pointers from hits. Clusters with fewer hits
// than the minimum cluster size are dropped.
func (p *Pipeline) ProcessPlane(key models.PlaneKey, hits []*models.Hit) ([]models.HitCluster, PlaneMetrics, error) {
	m := PlaneMetrics{Key: key, Hits: len(hits)}

	// Step 1: rasterise the hits
	img, hm, err := hitimage.Build(hits, p.geom, p.kernel.BlurWire, p.kernel.BlurTick)
	if err != nil {
		return nil, m, errors.Wrapf(err, "failed to build image for %s", key)
	}
	m.ImageWires, m.ImageTicks = img.Wires, img.Ticks
	m.InputCharge = img.Sum()
	if img.Empty() {
		return nil, m, nil
	}
	if p.observing {
		p.observer.ObserveImage(key, StageHits, img.Clone())
	}

	// Step 2: blur
	kernel, err := p.cache.Get(p.kernel)
	if err != nil {
		return nil, m, errors.Wrap(err, "failed to build blur kernel")
	}
	var blurred *hitimage.Image
	if p.params.UseFFT {
		blurred = blur.ConvolveFFT(img, kernel)
	} else {
		blurred = blur.Convolve(img, kernel)
	}
	m.BlurredCharge = blurred.Sum()
	for _, v := range blurred.Data {
		if v > p.params.Extract.MinSeed {
			m.QualifyingBins++
		}
	}
	if p.observing {
		p.observer.ObserveImage(key, StageBlurred, blurred.Clone())
	}

	// Step 3: find clusters on the blurred image
	raw := clustering.FindClusters(blurred, p.params.Extract)
	m.RawClusters = len(raw)
	if p.observing {
		p.observer.ObserveClusters(key, StageExtracted, blurred.Clone(), cloneClusters(raw))
	}

	// Step 4: merge collinear fragments
	merged := clustering.MergeClusters(blurred, raw, p.params.Merge)
	m.MergedClusters = len(merged)
	if p.observing {
		p.observer.ObserveClusters(key, StageMerged, blurred.Clone(), cloneClusters(merged))
	}

	// Step 5: back to hits
	converted := hitimage.ConvertBinsToClusters(blurred, hm, hits, merged, key)
	clusters := converted[:0]
	for _, c := range converted {
		if len(c.Hits) < p.params.Extract.MinSize {
			continue
		}
		clusters = append(clusters, c)
		m.ClusteredHits += len(c.Hits)
	}
	m.HitClusters = len(clusters)

	p.logf("%s: %d hits, %dx%d image, %d raw -> %d merged -> %d hit clusters",
		key, m.Hits, m.ImageWires, m.ImageTicks, m.RawClusters, m.MergedClusters, m.HitClusters)

	return clusters, m, nil
}

// ProcessEvent clusters all hits of an event.
//
// Hits are grouped by plane and the planes processed in parallel on up to
// NumCores goroutines. Clusters come back ordered by TPC and plane. The
// returned clusters point into hits, which must not be modified meanwhile.
func (p *Pipeline) ProcessEvent(hits []models.Hit) ([]models.HitCluster, error) {
	planes := make(map[models.PlaneKey][]*models.Hit)
	for i := range hits {
		key := hits[i].Key()
		planes[key] = append(planes[key], &hits[i])
	}
	keys := make([]models.PlaneKey, 0, len(planes))
	for key := range planes {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].Less(keys[j])
	})

	p.logf("Processing %d hits on %d planes with %d workers...", len(hits), len(keys), p.params.NumCores)

	type planeResult struct {
		idx      int
		clusters []models.HitCluster
		metrics  PlaneMetrics
		err      error
	}
	resultChan := make(chan planeResult)
	sem := make(chan struct{}, p.params.NumCores)

	for i, key := range keys {
		go func(idx int, key models.PlaneKey, planeHits []*models.Hit) {
			sem <- struct{}{}
			defer func() { <-sem }()

			clusters, m, err := p.ProcessPlane(key, planeHits)
			resultChan <- planeResult{idx: idx, clusters: clusters, metrics: m, err: err}
		}(i, key, planes[key])
	}

	perPlane := make([][]models.HitCluster, len(keys))
	planeMetrics := make([]PlaneMetrics, len(keys))
	var firstErr error
	for range keys {
		res := <-resultChan
		if res.err != nil && firstErr == nil {
			firstErr = res.err
		}
		perPlane[res.idx] = res.clusters
		planeMetrics[res.idx] = res.metrics
	}
	if firstErr != nil {
		return nil, errors.Wrap(firstErr, "plane processing failed")
	}

	var all []models.HitCluster
	for _, clusters := range perPlane {
		all = append(all, clusters...)
	}

	p.mu.Lock()
	p.metrics = calculateMetrics(planeMetrics, all)
	p.mu.Unlock()

	return all, nil
}

// GetMetrics returns the metrics of the last ProcessEvent call
func (p *Pipeline) GetMetrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

func (p *Pipeline) logf(format string, args ...interface{}) {
	if p.params.Verbose {
		p.logger.Printf(format, args...)
	}
}
