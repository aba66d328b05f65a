// Package media holds the records the moments pipeline works on and the
// collaborator contracts it consumes (media index, geocoder, album writer).
package media

import (
	"context"
	"time"
)

// Kind is the media type of an item.
type Kind string

// Kind constants.
const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Item is an immutable media record. LocationURI is an opaque locator understood
// by the media source, not a filesystem path.
type Item struct {
	ID          int64  `json:"id"`
	LocationURI string `json:"location_uri"`
	CapturedAt  int64  `json:"captured_at"` // epoch millis
	Kind        Kind   `json:"kind"`
}

// Eligible reports whether the item carries a usable capture timestamp.
func (i Item) Eligible() bool {
	return i.CapturedAt > 0
}

// CapturedTime returns the capture timestamp as time.Time.
func (i Item) CapturedTime() time.Time {
	return time.UnixMilli(i.CapturedAt)
}

// Location is a resolved GPS position in degrees.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SaveState tracks the album write of a cluster. The clustering core only ever
// produces SaveDefault; the other states come from the album writer layer.
type SaveState string

// SaveState constants.
const (
	SaveDefault   SaveState = "default"
	SaveSaving    SaveState = "saving"
	SaveCompleted SaveState = "save_completed"
)

// Cluster is one moment: a non-empty, ordered group of items with a place title.
type Cluster struct {
	Key       int64     `json:"key"`
	Members   []Item    `json:"members"`
	Title     string    `json:"title"`
	SaveState SaveState `json:"save_state"`
}

// FilterEligible returns the items with a positive capture timestamp.
func FilterEligible(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Eligible() {
			out = append(out, it)
		}
	}
	return out
}

// TimeRange bounds a media listing. Zero values mean unbounded.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls into the range.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// SortOrder of a media listing by capture time.
type SortOrder int

// SortOrder constants.
const (
	SortNewestFirst SortOrder = iota
	SortOldestFirst
)

// KindFilter selects which kinds a listing returns. An empty filter means all kinds.
type KindFilter []Kind

// Allows reports whether k passes the filter.
func (f KindFilter) Allows(k Kind) bool {
	if len(f) == 0 {
		return true
	}
	for _, allowed := range f {
		if allowed == k {
			return true
		}
	}
	return false
}

// Source is the device media index.
type Source interface {
	ListMedia(ctx context.Context, timeRange TimeRange, kinds KindFilter, order SortOrder) ([]Item, error)
	// ResolveLocation returns nil when the item has no GPS position.
	ResolveLocation(ctx context.Context, locationURI string) (*Location, error)
}

// Geocoder turns coordinates into a place name. An empty name means unknown.
type Geocoder interface {
	Resolve(ctx context.Context, latitude, longitude float64) (string, error)
}

// AlbumWriter persists a cluster as an album and returns the items actually saved.
type AlbumWriter interface {
	Save(ctx context.Context, title string, items []Item) ([]Item, error)
}
