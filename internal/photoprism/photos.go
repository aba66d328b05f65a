package photoprism

import (
	"context"
	"net/url"
	"strconv"
)

// GetPhotos runs one page of a photo search.
func (pp *PhotoPrism) GetPhotos(ctx context.Context, q PhotoQuery) ([]Photo, error) {
	params := url.Values{}
	params.Set("count", strconv.Itoa(q.Count))
	params.Set("offset", strconv.Itoa(q.Offset))
	params.Set("merged", "true")
	if q.Query != "" {
		params.Set("q", q.Query)
	}
	if q.Order != "" {
		params.Set("order", q.Order)
	}

	result, err := doGetJSON[[]Photo](ctx, pp, "photos?"+params.Encode())
	if err != nil {
		return nil, err
	}
	return *result, nil
}

// GetPhotoDetails retrieves the full photo record.
func (pp *PhotoPrism) GetPhotoDetails(ctx context.Context, photoUID string) (*PhotoDetails, error) {
	return doGetJSON[PhotoDetails](ctx, pp, "photos/"+url.PathEscape(photoUID))
}

func downloadEndpoint(hash, token string) string {
	return "dl/" + hash + "?t=" + url.QueryEscape(token)
}

// GetPhotoThumbnail downloads a thumbnail by file hash. size is a PhotoPrism
// thumbnail name such as "tile_500" or "fit_1280".
func (pp *PhotoPrism) GetPhotoThumbnail(ctx context.Context, thumbHash, size string) ([]byte, string, error) {
	return pp.download(ctx, "t/"+thumbHash+"/"+pp.downloadToken+"/"+size)
}
