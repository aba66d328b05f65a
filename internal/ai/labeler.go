package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/photo-moments/internal/constants"
	"github.com/kozaktomas/photo-moments/internal/prompt"
)

// ImageFetcher downloads the image behind a media location URI.
type ImageFetcher interface {
	FetchImage(ctx context.Context, locationURI string) ([]byte, string, error)
}

// ImageLabeler labels media by downloading the image and asking a vision
// provider. It implements prompt.Labeler.
type ImageLabeler struct {
	fetcher  ImageFetcher
	provider Provider
	maxSize  int
}

// NewImageLabeler creates a labeler that shrinks images to
// constants.MaxImageSize before sending them to provider.
func NewImageLabeler(fetcher ImageFetcher, provider Provider) *ImageLabeler {
	return &ImageLabeler{fetcher: fetcher, provider: provider, maxSize: constants.MaxImageSize}
}

func (l *ImageLabeler) LabelImage(ctx context.Context, locationURI string) ([]prompt.Label, error) {
	start := time.Now()

	data, _, err := l.fetcher.FetchImage(ctx, locationURI)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}

	resized, err := ResizeImage(data, l.maxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}

	labels, err := l.provider.LabelPhoto(ctx, resized)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("uri", locationURI).
		Str("model", l.provider.Name()).
		Int("labels", len(labels)).
		Dur("took", time.Since(start)).
		Msg("photo labeled")
	return labels, nil
}
