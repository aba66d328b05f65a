package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kozaktomas/photo-moments/internal/media"
)

// MediaSource lists PhotoPrism photos from the database. LocationURI is the
// photo UID so items are interchangeable with the REST source.
type MediaSource struct {
	pool *Pool

	// GPS positions seen while listing, keyed by photo UID.
	locations sync.Map
}

// NewMediaSource creates a media source backed by pool.
func NewMediaSource(pool *Pool) *MediaSource {
	return &MediaSource{pool: pool}
}

// videoTypes are PhotoPrism photo_type values reported as videos.
var videoTypes = []string{"video", "live"}

// buildListQuery returns the listing SQL and its arguments.
func buildListQuery(timeRange media.TimeRange, kinds media.KindFilter, order media.SortOrder) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT id, photo_uid, photo_type, taken_at, photo_lat, photo_lng FROM photos WHERE deleted_at IS NULL`)

	var args []any
	if !timeRange.From.IsZero() {
		b.WriteString(` AND taken_at >= ?`)
		args = append(args, timeRange.From.UTC())
	}
	if !timeRange.To.IsZero() {
		b.WriteString(` AND taken_at <= ?`)
		args = append(args, timeRange.To.UTC())
	}
	if len(kinds) == 1 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(videoTypes)), ",")
		if kinds[0] == media.KindVideo {
			b.WriteString(` AND photo_type IN (` + placeholders + `)`)
		} else {
			b.WriteString(` AND photo_type NOT IN (` + placeholders + `)`)
		}
		for _, t := range videoTypes {
			args = append(args, t)
		}
	}

	if order == media.SortOldestFirst {
		b.WriteString(` ORDER BY taken_at ASC, id ASC`)
	} else {
		b.WriteString(` ORDER BY taken_at DESC, id DESC`)
	}
	return b.String(), args
}

// ListMedia implements media.Source.
func (s *MediaSource) ListMedia(ctx context.Context, timeRange media.TimeRange, kinds media.KindFilter, order media.SortOrder) ([]media.Item, error) {
	query, args := buildListQuery(timeRange, kinds, order)
	rows, err := s.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query photos: %w", err)
	}
	defer rows.Close()

	var items []media.Item
	for rows.Next() {
		var (
			id        int64
			uid, kind string
			takenAt   sql.NullTime
			lat, lng  float64
		)
		if err := rows.Scan(&id, &uid, &kind, &takenAt, &lat, &lng); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		items = append(items, toItem(id, uid, kind, takenAt))
		if lat != 0 || lng != 0 {
			s.locations.Store(uid, media.Location{Latitude: lat, Longitude: lng})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}
	return items, nil
}

// ResolveLocation implements media.Source.
func (s *MediaSource) ResolveLocation(ctx context.Context, photoUID string) (*media.Location, error) {
	if v, ok := s.locations.Load(photoUID); ok {
		loc := v.(media.Location)
		return &loc, nil
	}

	var lat, lng float64
	err := s.pool.db.QueryRowContext(ctx, `SELECT photo_lat, photo_lng FROM photos WHERE photo_uid = ?`, photoUID).Scan(&lat, &lng)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("photo %s not found", photoUID)
	}
	if err != nil {
		return nil, fmt.Errorf("query photo location: %w", err)
	}
	if lat == 0 && lng == 0 {
		return nil, nil
	}
	loc := media.Location{Latitude: lat, Longitude: lng}
	s.locations.Store(photoUID, loc)
	return &loc, nil
}

func toItem(id int64, uid, kind string, takenAt sql.NullTime) media.Item {
	item := media.Item{ID: id, LocationURI: uid, Kind: media.KindImage}
	for _, t := range videoTypes {
		if kind == t {
			item.Kind = media.KindVideo
		}
	}
	if takenAt.Valid && takenAt.Time.Year() > 1 {
		item.CapturedAt = takenAt.Time.UnixMilli()
	}
	return item
}
