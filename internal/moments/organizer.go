// Package moments wires the media source, the prompt filter and the
// clustering pipelines into the operations the CLI and web server expose.
package moments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/photo-moments/internal/clustering"
	"github.com/kozaktomas/photo-moments/internal/constants"
	"github.com/kozaktomas/photo-moments/internal/jobs"
	"github.com/kozaktomas/photo-moments/internal/media"
	"github.com/kozaktomas/photo-moments/internal/prompt"
)

var (
	// ErrNoSnapshot means clusters were requested before any run completed.
	ErrNoSnapshot = errors.New("no clustering result yet")
	// ErrClusterNotFound means the snapshot has no cluster with the key.
	ErrClusterNotFound = errors.New("cluster not found")
	// ErrSaveInProgress means the cluster is already being saved.
	ErrSaveInProgress = errors.New("cluster save already in progress")
	// ErrNoAlbumWriter means saving is not configured.
	ErrNoAlbumWriter = errors.New("album writer not configured")
)

// Options configures an Organizer. Source and Executor are required.
type Options struct {
	Source     media.Source
	Geocoder   media.Geocoder
	Albums     media.AlbumWriter
	Classifier *prompt.Classifier
	Executor   jobs.Executor

	TimeRange media.TimeRange
	Kinds     media.KindFilter
	// OnProgress receives progress of every clustering run.
	OnProgress func(promptKey string, p clustering.Progress)
}

// Organizer keeps one clustering pipeline, with its own cache, per distinct
// prompt filter. The empty key is the unfiltered pipeline.
type Organizer struct {
	source     media.Source
	geocoder   media.Geocoder
	albums     media.AlbumWriter
	filter     *prompt.Filter
	resolver   *clustering.LocationResolver
	timeRange  media.TimeRange
	kinds      media.KindFilter
	onProgress func(string, clustering.Progress)
	controller *jobs.Controller

	mu        sync.Mutex
	pipelines map[string]*clustering.Pipeline
	active    *prompt.Spec
	reporter  func(any)
}

// New creates an Organizer.
func New(opts Options) *Organizer {
	o := &Organizer{
		source:     opts.Source,
		geocoder:   opts.Geocoder,
		albums:     opts.Albums,
		filter:     prompt.NewFilter(opts.Classifier),
		resolver:   clustering.NewLocationResolver(opts.Source, constants.LocationBatchSize),
		timeRange:  opts.TimeRange,
		kinds:      opts.Kinds,
		onProgress: opts.OnProgress,
		pipelines:  make(map[string]*clustering.Pipeline),
	}
	o.controller = jobs.NewController(opts.Executor, constants.ClusteringJobName, o.clusteringWork)
	return o
}

// Jobs returns the controller of the background clustering job.
func (o *Organizer) Jobs() *jobs.Controller {
	return o.controller
}

// ActivePrompt returns the spec of the most recently started job, nil when
// it was unfiltered.
func (o *Organizer) ActivePrompt() *prompt.Spec {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Pipeline returns the pipeline for spec, creating it on first use.
func (o *Organizer) Pipeline(spec *prompt.Spec) *clustering.Pipeline {
	key := spec.Key()

	o.mu.Lock()
	defer o.mu.Unlock()
	if p, ok := o.pipelines[key]; ok {
		return p
	}

	loader := clustering.LoaderFunc(func(ctx context.Context) ([]media.Item, error) {
		return o.load(ctx, spec)
	})
	p := clustering.NewPipeline(loader, clustering.NewTemporal(), clustering.NewSpatial(o.resolver), o.geocoder, clustering.NewCache())
	p.OnProgress = func(pr clustering.Progress) { o.progress(key, pr) }
	o.pipelines[key] = p
	return p
}

func (o *Organizer) load(ctx context.Context, spec *prompt.Spec) ([]media.Item, error) {
	items, err := o.source.ListMedia(ctx, o.timeRange, o.kinds, media.SortNewestFirst)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	eligible := media.FilterEligible(items)
	filtered, err := o.filter.Apply(ctx, eligible, spec)
	if err != nil {
		return nil, fmt.Errorf("filter media: %w", err)
	}
	log.Debug().
		Int("listed", len(items)).
		Int("eligible", len(eligible)).
		Int("filtered", len(filtered)).
		Str("prompt", spec.Key()).
		Msg("media loaded")
	return filtered, nil
}

func (o *Organizer) progress(key string, pr clustering.Progress) {
	o.mu.Lock()
	report := o.reporter
	o.mu.Unlock()
	if report != nil {
		report(pr)
	}
	if o.onProgress != nil {
		o.onProgress(key, pr)
	}
}

// StreamClusters streams the clusters for promptText, replaying the cached
// result when there is one.
func (o *Organizer) StreamClusters(ctx context.Context, promptText string, fn func(media.Cluster) error) error {
	return o.Pipeline(prompt.Interpret(promptText)).StreamClusters(ctx, fn)
}

// StreamClustersWithRetry is StreamClusters with resubscription after
// transient failures.
func (o *Organizer) StreamClustersWithRetry(ctx context.Context, promptText string, fn func(media.Cluster) error, opts clustering.RetryOptions) error {
	return clustering.SubscribeWithRetry(ctx, o.Pipeline(prompt.Interpret(promptText)), fn, opts)
}

// Snapshot returns the cached clusters for spec.
func (o *Organizer) Snapshot(spec *prompt.Spec) ([]media.Cluster, error) {
	clusters, ok := o.Pipeline(spec).Cache().Snapshot()
	if !ok {
		return nil, ErrNoSnapshot
	}
	return clusters, nil
}

// Watch streams cache updates for spec.
func (o *Organizer) Watch(ctx context.Context, spec *prompt.Spec) <-chan []media.Cluster {
	return o.Pipeline(spec).Cache().Watch(ctx)
}

// Run computes clusters for promptText from scratch and returns them.
// Cancelling ctx cancels the computation; the previous snapshot stays.
func (o *Organizer) Run(ctx context.Context, promptText string) ([]media.Cluster, error) {
	p := o.Pipeline(prompt.Interpret(promptText))

	var clusters []media.Cluster
	err := p.Refresh(ctx, func(c media.Cluster) error {
		clusters = append(clusters, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return clusters, nil
}

// clusteringWork builds the background job body for one prompt.
func (o *Organizer) clusteringWork(promptText string) jobs.Work {
	return func(ctx context.Context, report func(any)) error {
		spec := prompt.Interpret(promptText)

		o.mu.Lock()
		o.active = spec
		o.reporter = report
		o.mu.Unlock()
		defer func() {
			o.mu.Lock()
			o.reporter = nil
			o.mu.Unlock()
		}()

		start := time.Now()
		clusters, err := o.Run(ctx, promptText)
		if err != nil {
			return err
		}
		log.Info().
			Int("clusters", len(clusters)).
			Str("prompt", spec.Key()).
			Dur("took", time.Since(start)).
			Msg("clustering job finished")
		return nil
	}
}

// SaveCluster writes the cluster with key from the snapshot for spec as an
// album. An empty title falls back to DefaultTitle.
func (o *Organizer) SaveCluster(ctx context.Context, spec *prompt.Spec, key int64, title string) ([]media.Item, error) {
	if o.albums == nil {
		return nil, ErrNoAlbumWriter
	}
	cache := o.Pipeline(spec).Cache()
	clusters, ok := cache.Snapshot()
	if !ok {
		return nil, ErrNoSnapshot
	}

	var cluster *media.Cluster
	for i := range clusters {
		if clusters[i].Key == key {
			cluster = &clusters[i]
			break
		}
	}
	if cluster == nil {
		return nil, ErrClusterNotFound
	}
	if cluster.SaveState == media.SaveSaving {
		return nil, ErrSaveInProgress
	}

	if title == "" {
		title = DefaultTitle(*cluster)
	}

	cache.UpdateSaveState(key, media.SaveSaving)
	saved, err := o.albums.Save(ctx, title, cluster.Members)
	if err != nil {
		cache.UpdateSaveState(key, media.SaveDefault)
		return nil, fmt.Errorf("save cluster %d: %w", key, err)
	}
	cache.UpdateSaveState(key, media.SaveCompleted)

	log.Info().Int64("key", key).Str("title", title).Int("saved", len(saved)).Msg("cluster saved as album")
	return saved, nil
}

// DefaultTitle is the album title used when none is given.
func DefaultTitle(c media.Cluster) string {
	date := time.UnixMilli(c.Key).Format("2006-01-02")
	if c.Title == "" {
		return date
	}
	return fmt.Sprintf("%s %s", c.Title, date)
}
