package photoprism

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/photo-moments/internal/constants"
	"github.com/kozaktomas/photo-moments/internal/media"
	"github.com/kozaktomas/photo-moments/internal/prompt"
)

// AlbumWriter saves clusters as PhotoPrism albums.
type AlbumWriter struct {
	pp        *PhotoPrism
	chunkSize int
}

// NewAlbumWriter creates an album writer backed by pp.
func NewAlbumWriter(pp *PhotoPrism) *AlbumWriter {
	return &AlbumWriter{pp: pp, chunkSize: constants.AlbumChunkSize}
}

// Save creates an album called title and adds items to it in chunks. It
// returns the items that were added; a failed chunk is skipped.
func (w *AlbumWriter) Save(ctx context.Context, title string, items []media.Item) ([]media.Item, error) {
	album, err := w.pp.CreateAlbum(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("create album %q: %w", title, err)
	}

	var added []media.Item
	var lastErr error
	for start := 0; start < len(items); start += w.chunkSize {
		chunk := items[start:min(start+w.chunkSize, len(items))]
		uids := make([]string, len(chunk))
		for i, it := range chunk {
			uids[i] = it.LocationURI
		}
		if err := w.pp.AddPhotosToAlbum(ctx, album.UID, uids); err != nil {
			if ctx.Err() != nil {
				return added, ctx.Err()
			}
			log.Warn().Err(err).Str("album", album.UID).Int("chunk_start", start).Msg("adding photos to album failed")
			lastErr = err
			continue
		}
		added = append(added, chunk...)
	}
	if len(added) == 0 && lastErr != nil {
		return nil, fmt.Errorf("add photos to album %s: %w", album.UID, lastErr)
	}
	return added, nil
}

// ImageFetcher downloads the primary image file of a photo.
type ImageFetcher struct {
	pp *PhotoPrism
}

// NewImageFetcher creates an image fetcher backed by pp.
func NewImageFetcher(pp *PhotoPrism) *ImageFetcher {
	return &ImageFetcher{pp: pp}
}

// FetchImage returns the image bytes and content type for a photo UID.
// Videos and live photos are fetched as their generated preview image.
func (f *ImageFetcher) FetchImage(ctx context.Context, photoUID string) ([]byte, string, error) {
	details, err := f.pp.GetPhotoDetails(ctx, photoUID)
	if err != nil {
		return nil, "", fmt.Errorf("get photo details: %w", err)
	}
	hash := details.primaryHash()
	if hash == "" {
		return nil, "", fmt.Errorf("photo %s has no files", photoUID)
	}
	if isVideoType(details.Type) {
		return f.pp.GetPhotoThumbnail(ctx, hash, previewThumbSize)
	}
	return f.pp.download(ctx, downloadEndpoint(hash, f.pp.downloadToken))
}

// Labeler reuses the labels PhotoPrism's own classifier attached to a photo.
type Labeler struct {
	pp *PhotoPrism
}

// NewLabeler creates a labeler backed by pp.
func NewLabeler(pp *PhotoPrism) *Labeler {
	return &Labeler{pp: pp}
}

// LabelImage implements prompt.Labeler. Confidence is derived from the
// label's uncertainty percentage.
func (l *Labeler) LabelImage(ctx context.Context, photoUID string) ([]prompt.Label, error) {
	details, err := l.pp.GetPhotoDetails(ctx, photoUID)
	if err != nil {
		return nil, fmt.Errorf("get photo details: %w", err)
	}
	labels := make([]prompt.Label, 0, len(details.Labels))
	for _, pl := range details.Labels {
		if pl.Label.Name == "" {
			continue
		}
		labels = append(labels, prompt.Label{
			Name:       pl.Label.Name,
			Confidence: float64(100-min(max(pl.Uncertainty, 0), 100)) / 100,
		})
	}
	return labels, nil
}
