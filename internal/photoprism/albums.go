package photoprism

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// GetAlbum retrieves a single album by UID
func (pp *PhotoPrism) GetAlbum(ctx context.Context, albumUID string) (*Album, error) {
	return doGetJSON[Album](ctx, pp, "albums/"+url.PathEscape(albumUID))
}

// CreateAlbum creates a new album with the given title
func (pp *PhotoPrism) CreateAlbum(ctx context.Context, title string) (*Album, error) {
	input := struct {
		Title string `json:"Title"`
	}{
		Title: title,
	}
	return doPostJSON[Album](ctx, pp, "albums", input)
}

// AddPhotosToAlbum adds photos to an album
func (pp *PhotoPrism) AddPhotosToAlbum(ctx context.Context, albumUID string, photoUIDs []string) error {
	if len(photoUIDs) == 0 {
		return nil
	}
	selection := struct {
		Photos []string `json:"photos"`
	}{
		Photos: photoUIDs,
	}
	return doRequestRaw(ctx, pp, http.MethodPost, fmt.Sprintf("albums/%s/photos", url.PathEscape(albumUID)), selection, http.StatusOK)
}
