package photoprism

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/photo-moments/internal/constants"
	"github.com/kozaktomas/photo-moments/internal/media"
)

// MediaSource lists PhotoPrism photos as media items. The item LocationURI is
// the photo UID.
type MediaSource struct {
	pp        *PhotoPrism
	pageSize  int
	maxPhotos int

	// GPS positions seen while listing, keyed by photo UID.
	locations sync.Map
}

// NewMediaSource creates a media source backed by pp.
func NewMediaSource(pp *PhotoPrism) *MediaSource {
	return &MediaSource{
		pp:        pp,
		pageSize:  constants.DefaultPageSize,
		maxPhotos: constants.MaxPhotosPerFetch,
	}
}

// ListMedia implements media.Source.
func (s *MediaSource) ListMedia(ctx context.Context, timeRange media.TimeRange, kinds media.KindFilter, order media.SortOrder) ([]media.Item, error) {
	q := PhotoQuery{Count: s.pageSize, Query: searchQuery(timeRange, kinds), Order: "newest"}
	if order == media.SortOldestFirst {
		q.Order = "oldest"
	}

	var items []media.Item
	for len(items) < s.maxPhotos {
		photos, err := s.pp.GetPhotos(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("list photos at offset %d: %w", q.Offset, err)
		}
		for _, p := range photos {
			item := toItem(p)
			if !kinds.Allows(item.Kind) || (item.Eligible() && !timeRange.Contains(item.CapturedTime())) {
				continue
			}
			if p.Lat != 0 || p.Lng != 0 {
				s.locations.Store(p.UID, media.Location{Latitude: p.Lat, Longitude: p.Lng})
			}
			items = append(items, item)
		}
		if len(photos) < q.Count {
			break
		}
		q.Offset += len(photos)
	}

	log.Debug().Int("photos", len(items)).Str("query", q.Query).Msg("listed PhotoPrism photos")
	return items, nil
}

// ResolveLocation implements media.Source. Photos at exactly 0,0 count as
// having no position.
func (s *MediaSource) ResolveLocation(ctx context.Context, photoUID string) (*media.Location, error) {
	if v, ok := s.locations.Load(photoUID); ok {
		loc := v.(media.Location)
		return &loc, nil
	}
	details, err := s.pp.GetPhotoDetails(ctx, photoUID)
	if err != nil {
		return nil, err
	}
	if details.Lat == 0 && details.Lng == 0 {
		return nil, nil
	}
	loc := media.Location{Latitude: details.Lat, Longitude: details.Lng}
	s.locations.Store(photoUID, loc)
	return &loc, nil
}

func searchQuery(timeRange media.TimeRange, kinds media.KindFilter) string {
	var parts []string
	if !timeRange.From.IsZero() {
		parts = append(parts, "after:"+timeRange.From.AddDate(0, 0, -1).Format(time.DateOnly))
	}
	if !timeRange.To.IsZero() {
		parts = append(parts, "before:"+timeRange.To.AddDate(0, 0, 1).Format(time.DateOnly))
	}
	if len(kinds) == 1 {
		switch kinds[0] {
		case media.KindVideo:
			parts = append(parts, "video:true")
		case media.KindImage:
			parts = append(parts, "photo:true")
		}
	}
	return strings.Join(parts, " ")
}

// previewThumbSize is the thumbnail used when a photo has no decodable image.
const previewThumbSize = "fit_1280"

func isVideoType(photoType string) bool {
	return photoType == "video" || photoType == "live"
}

func toItem(p Photo) media.Item {
	item := media.Item{
		ID:          mediaID(p),
		LocationURI: p.UID,
		Kind:        media.KindImage,
	}
	if isVideoType(p.Type) {
		item.Kind = media.KindVideo
	}
	if t, err := time.Parse(time.RFC3339, p.TakenAt); err == nil && t.Year() > 1 {
		item.CapturedAt = t.UnixMilli()
	}
	return item
}

// mediaID derives a stable numeric ID: the photo part of the composite ID
// when present, otherwise a hash of the UID.
func mediaID(p Photo) int64 {
	head, _, _ := strings.Cut(p.ID, "-")
	if id, err := strconv.ParseInt(head, 10, 64); err == nil && id > 0 {
		return id
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(p.UID))
	return int64(h.Sum64() & math.MaxInt64)
}
