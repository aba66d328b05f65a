package clustering

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/photo-moments/internal/media"
)

// ErrRunCancelled is returned to subscribers of a run that was cancelled.
var ErrRunCancelled = errors.New("clustering run cancelled")

// Loader supplies the eligible media for one clustering run.
type Loader interface {
	LoadMedia(ctx context.Context) ([]media.Item, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) ([]media.Item, error)

// LoadMedia implements Loader.
func (f LoaderFunc) LoadMedia(ctx context.Context) ([]media.Item, error) {
	return f(ctx)
}

// Progress phases
const (
	PhaseLoading  = "loading"
	PhaseTemporal = "temporal"
	PhaseSpatial  = "spatial"
)

// Progress reports how far a run got.
type Progress struct {
	Phase    string `json:"phase"`
	Current  int    `json:"current"`
	Total    int    `json:"total"`
	Clusters int    `json:"clusters"`
}

// Pipeline runs temporal then spatial clustering, titles each group and
// caches the full result. Concurrent subscribers share a single computation.
type Pipeline struct {
	loader   Loader
	temporal Strategy
	spatial  Strategy
	geocoder media.Geocoder
	cache    *Cache

	// OnProgress is called from the run goroutine after each phase step.
	OnProgress func(Progress)

	mu      sync.Mutex
	current *run
}

// NewPipeline wires a pipeline. geocoder may be nil, in which case every
// cluster gets an empty title.
func NewPipeline(loader Loader, temporal, spatial Strategy, geocoder media.Geocoder, cache *Cache) *Pipeline {
	if cache == nil {
		cache = NewCache()
	}
	return &Pipeline{
		loader:   loader,
		temporal: temporal,
		spatial:  spatial,
		geocoder: geocoder,
		cache:    cache,
	}
}

// Cache returns the snapshot cache the pipeline publishes into.
func (p *Pipeline) Cache() *Cache {
	return p.cache
}

// StreamClusters delivers clusters to fn as they are produced. A cached
// snapshot is replayed without recomputation. Otherwise the caller joins the
// in-flight run, or starts one, and sees every cluster of that run from its
// beginning. Leaving, through ctx or an error from fn, stops delivery to this
// caller only; the run is cancelled once every subscriber has left through
// its context.
func (p *Pipeline) StreamClusters(ctx context.Context, fn func(media.Cluster) error) error {
	r, cached := p.acquire(ctx, false)
	if r == nil {
		for _, c := range cached {
			if err := fn(c); err != nil {
				return err
			}
		}
		return nil
	}
	return r.follow(ctx, fn)
}

// Refresh computes a new snapshot even when one is cached, joining a run
// that is already in flight. The caller controls the run: cancelling ctx
// cancels it for every subscriber. The previous snapshot stays readable
// until the new run publishes, and a failed or cancelled run never replaces it.
func (p *Pipeline) Refresh(ctx context.Context, fn func(media.Cluster) error) error {
	r, _ := p.acquire(ctx, true)
	return r.follow(ctx, fn)
}

func (p *Pipeline) acquire(ctx context.Context, refresh bool) (*run, []media.Cluster) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !refresh {
		if cached, ok := p.cache.Snapshot(); ok {
			return nil, cached
		}
	}
	if r := p.current; r != nil {
		r.join(ctx, refresh)
		return r, nil
	}

	// A refresh run is bound to its caller. Any other run outlives the
	// subscriber that happened to start it.
	parent := ctx
	if !refresh {
		parent = context.WithoutCancel(ctx)
	}
	runCtx, cancel := context.WithCancel(parent)
	r := newRun(cancel)
	r.join(ctx, false)
	p.current = r
	go p.execute(runCtx, r)
	return r, nil
}

func (p *Pipeline) execute(ctx context.Context, r *run) {
	err := p.compute(ctx, r)

	p.mu.Lock()
	if p.current == r {
		p.current = nil
	}
	p.mu.Unlock()

	r.finish(err)
	switch {
	case err == nil:
	case errors.Is(err, ErrRunCancelled):
		log.Debug().Err(err).Msg("clustering run cancelled")
	default:
		log.Warn().Err(err).Msg("clustering run failed")
	}
}

func (p *Pipeline) compute(ctx context.Context, r *run) error {
	p.progress(Progress{Phase: PhaseLoading})
	items, err := p.loader.LoadMedia(ctx)
	if err != nil {
		return runError(ctx, fmt.Errorf("load media: %w", err))
	}

	buckets, err := p.temporal.Cluster(ctx, items)
	if err != nil {
		return runError(ctx, fmt.Errorf("temporal clustering: %w", err))
	}
	p.progress(Progress{Phase: PhaseTemporal, Total: len(buckets)})
	log.Debug().Int("items", len(items)).Int("buckets", len(buckets)).Msg("temporal clustering done")

	var all []media.Cluster
	for i, bucket := range buckets {
		if err := ctx.Err(); err != nil {
			return runError(ctx, err)
		}
		groups, err := p.spatial.Cluster(ctx, bucket.Members)
		if err != nil {
			return runError(ctx, fmt.Errorf("spatial clustering of bucket %d: %w", bucket.Key, err))
		}
		for _, g := range groups {
			title := p.title(ctx, g)
			if err := ctx.Err(); err != nil {
				return runError(ctx, err)
			}
			c := media.Cluster{
				Key:       g.Key,
				Members:   g.Members,
				Title:     title,
				SaveState: media.SaveDefault,
			}
			all = append(all, c)
			r.emit(c)
		}
		p.progress(Progress{Phase: PhaseSpatial, Current: i + 1, Total: len(buckets), Clusters: len(all)})
	}

	// The lock orders the publish against acquire so no caller can start a
	// second run between publishing and clearing the in-flight run.
	p.mu.Lock()
	p.cache.Publish(all)
	if p.current == r {
		p.current = nil
	}
	p.mu.Unlock()

	log.Info().Int("clusters", len(all)).Msg("clustering run completed")
	return nil
}

func (p *Pipeline) title(ctx context.Context, g Group) string {
	centroid, ok := Centroid(g.Locations)
	if !ok || p.geocoder == nil {
		return ""
	}
	name, err := p.geocoder.Resolve(ctx, centroid.Latitude, centroid.Longitude)
	if err != nil {
		log.Debug().Err(err).Int64("key", g.Key).Msg("title lookup failed")
		return ""
	}
	return name
}

func (p *Pipeline) progress(pr Progress) {
	if p.OnProgress != nil {
		p.OnProgress(pr)
	}
}

// runError marks failures caused by cancellation of the run context.
func runError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrRunCancelled, ctxErr)
	}
	return err
}

// run is the shared state of one in-flight computation.
type run struct {
	cancel context.CancelFunc

	mu        sync.Mutex
	clusters  []media.Cluster
	done      bool
	err       error
	changed   chan struct{}
	followers int
	stops     []func() bool
}

func newRun(cancel context.CancelFunc) *run {
	return &run{cancel: cancel, changed: make(chan struct{})}
}

// join registers a subscriber. A controlling subscriber cancels the run
// when its ctx is done.
func (r *run) join(ctx context.Context, controlling bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.followers++
	if controlling {
		r.stops = append(r.stops, context.AfterFunc(ctx, r.cancel))
	}
}

// leave unregisters a subscriber. The run is cancelled when the last one
// leaves because its context ended.
func (r *run) leave(cancelled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.followers--
	if cancelled && r.followers == 0 && !r.done {
		r.cancel()
	}
}

func (r *run) emit(c media.Cluster) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clusters = append(r.clusters, c)
	close(r.changed)
	r.changed = make(chan struct{})
}

func (r *run) finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
	r.err = err
	close(r.changed)
	for _, stop := range r.stops {
		stop()
	}
	r.stops = nil
	r.cancel()
}

func (r *run) follow(ctx context.Context, fn func(media.Cluster) error) error {
	next := 0
	for {
		if err := ctx.Err(); err != nil {
			r.leave(true)
			return err
		}

		r.mu.Lock()
		if next < len(r.clusters) {
			c := r.clusters[next]
			next++
			r.mu.Unlock()
			if err := fn(c); err != nil {
				r.leave(false)
				return err
			}
			continue
		}
		if r.done {
			err := r.err
			r.mu.Unlock()
			return err
		}
		changed := r.changed
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			r.leave(true)
			return ctx.Err()
		case <-changed:
		}
	}
}
