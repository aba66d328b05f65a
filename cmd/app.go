package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/photo-moments/internal/ai"
	"github.com/kozaktomas/photo-moments/internal/clustering"
	"github.com/kozaktomas/photo-moments/internal/config"
	"github.com/kozaktomas/photo-moments/internal/constants"
	"github.com/kozaktomas/photo-moments/internal/database/mariadb"
	"github.com/kozaktomas/photo-moments/internal/database/postgres"
	"github.com/kozaktomas/photo-moments/internal/geocode"
	"github.com/kozaktomas/photo-moments/internal/jobs"
	"github.com/kozaktomas/photo-moments/internal/media"
	"github.com/kozaktomas/photo-moments/internal/moments"
	"github.com/kozaktomas/photo-moments/internal/photoprism"
	"github.com/kozaktomas/photo-moments/internal/prompt"
)

// appOptions tweak how a command wires the organizer.
type appOptions struct {
	timeRange  media.TimeRange
	kinds      media.KindFilter
	onProgress func(promptKey string, p clustering.Progress)
}

// app holds the long lived services shared by the commands.
type app struct {
	cfg       *config.Config
	organizer *moments.Organizer
	executor  *jobs.LocalExecutor
	provider  ai.Provider // nil unless a vision model labels images

	closers []func()
}

// newApp connects to PhotoPrism and the optional databases and builds the
// organizer. Call close when done.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if cfg.PhotoPrism.URL == "" && cfg.PhotoPrism.DatabaseURL == "" {
		return nil, errors.New("PHOTOPRISM_URL or PHOTOPRISM_DATABASE_URL environment variable is required")
	}

	var pp *photoprism.PhotoPrism
	if cfg.PhotoPrism.URL != "" {
		pp, err = photoprism.NewPhotoPrism(ctx, cfg.PhotoPrism.URL, cfg.PhotoPrism.Username, cfg.PhotoPrism.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PhotoPrism: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := pp.Logout(context.Background()); err != nil {
				log.Debug().Err(err).Msg("PhotoPrism logout failed")
			}
		})
	}

	source, err := a.mediaSource(ctx, pp)
	if err != nil {
		return nil, err
	}

	classifier, err := a.classifier(ctx, pp)
	if err != nil {
		return nil, err
	}

	var geocoder media.Geocoder
	if cfg.Geocoder.URL != "" {
		n, err := geocode.NewNominatim(geocode.Options{
			URL:       cfg.Geocoder.URL,
			UserAgent: cfg.Geocoder.UserAgent,
			RPS:       cfg.Geocoder.RPS,
			Timeout:   cfg.Geocoder.Timeout,
		})
		if err != nil {
			return nil, err
		}
		geocoder = n
	} else {
		log.Info().Msg("GEOCODER_URL not set, clusters will have no place titles")
	}

	var albums media.AlbumWriter
	if pp != nil {
		albums = photoprism.NewAlbumWriter(pp)
	}

	timeRange := opts.timeRange
	if timeRange.From.IsZero() {
		timeRange.From = cfg.Clustering.From
	}
	if timeRange.To.IsZero() {
		timeRange.To = cfg.Clustering.To
	}

	a.executor = jobs.NewLocalExecutor(constants.JobHistorySize)
	a.closers = append(a.closers, a.executor.Shutdown)

	a.organizer = moments.New(moments.Options{
		Source:     source,
		Geocoder:   geocoder,
		Albums:     albums,
		Classifier: classifier,
		Executor:   a.executor,
		TimeRange:  timeRange,
		Kinds:      opts.kinds,
		OnProgress: opts.onProgress,
	})
	return a, nil
}

func (a *app) mediaSource(ctx context.Context, pp *photoprism.PhotoPrism) (media.Source, error) {
	if a.cfg.PhotoPrism.DatabaseURL == "" {
		log.Info().Msg("reading media index from the PhotoPrism API")
		return photoprism.NewMediaSource(pp), nil
	}

	pool, err := mariadb.NewPool(ctx, a.cfg.PhotoPrism.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PhotoPrism database: %w", err)
	}
	a.closers = append(a.closers, func() { _ = pool.Close() })
	log.Info().Msg("reading media index from the PhotoPrism database")
	return mariadb.NewMediaSource(pool), nil
}

// classifier returns nil when no label provider is configured, which makes
// every non-empty prompt fail with prompt.ErrNoClassifier.
func (a *app) classifier(ctx context.Context, pp *photoprism.PhotoPrism) (*prompt.Classifier, error) {
	name := a.cfg.Labels.Provider
	if name == "" {
		return nil, nil
	}
	if pp == nil {
		return nil, fmt.Errorf("label provider %q needs PHOTOPRISM_URL to fetch images", name)
	}

	var labeler prompt.Labeler
	if name == constants.ProviderPhotoPrism {
		labeler = photoprism.NewLabeler(pp)
	} else {
		provider, err := ai.NewProvider(ctx, name, a.cfg)
		if err != nil {
			return nil, err
		}
		a.provider = provider
		labeler = ai.NewImageLabeler(photoprism.NewImageFetcher(pp), provider)
	}

	opts := []prompt.ClassifierOption{prompt.WithThreshold(a.cfg.Labels.MinConfidence)}
	if a.cfg.Database.URL != "" {
		pool, err := postgres.Open(ctx, &a.cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = pool.Close() })
		opts = append(opts, prompt.WithPersister(postgres.NewClassificationRepository(pool)))
		log.Info().Msg("classifications are persisted in PostgreSQL")
	}

	log.Info().Str("provider", name).Msg("prompt filtering enabled")
	return prompt.NewClassifier(labeler, opts...), nil
}

// close releases everything newApp opened, newest first.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// logUsage reports token usage of the vision provider, if one was used.
func (a *app) logUsage() {
	if a.provider == nil {
		return
	}
	u := a.provider.GetUsage()
	if u.Requests == 0 {
		return
	}
	log.Info().
		Str("model", a.provider.Name()).
		Int("requests", u.Requests).
		Int("input_tokens", u.InputTokens).
		Int("output_tokens", u.OutputTokens).
		Float64("cost_usd", u.TotalCost).
		Msg("label provider usage")
}
