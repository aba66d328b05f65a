package clustering

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/photo-moments/internal/media"
)

var errLookup = errors.New("lookup failed")

// fakeLocations serves locations by URI and counts lookups.
type fakeLocations struct {
	mu      sync.Mutex
	byURI   map[string]media.Location
	failing map[string]bool
	calls   atomic.Int64
}

func newFakeLocations() *fakeLocations {
	return &fakeLocations{byURI: map[string]media.Location{}, failing: map[string]bool{}}
}

func (f *fakeLocations) set(items []media.Item, loc media.Location) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range items {
		f.byURI[it.LocationURI] = loc
	}
}

func (f *fakeLocations) ResolveLocation(_ context.Context, uri string) (*media.Location, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[uri] {
		return nil, errLookup
	}
	loc, ok := f.byURI[uri]
	if !ok {
		return nil, nil
	}
	return &loc, nil
}

// fakeGeocoder names the closest known place and counts calls.
type fakeGeocoder struct {
	places map[string]media.Location
	err    error
	calls  atomic.Int64
}

func (g *fakeGeocoder) Resolve(_ context.Context, lat, lng float64) (string, error) {
	g.calls.Add(1)
	if g.err != nil {
		return "", g.err
	}
	for name, loc := range g.places {
		if math.Abs(loc.Latitude-lat) < 1e-6 && math.Abs(loc.Longitude-lng) < 1e-6 {
			return name, nil
		}
	}
	return "", nil
}

// countingLoader returns a fixed item list and counts invocations.
type countingLoader struct {
	items []media.Item
	calls atomic.Int64
}

func (l *countingLoader) LoadMedia(context.Context) ([]media.Item, error) {
	l.calls.Add(1)
	return l.items, nil
}

var nextID atomic.Int64

// burst creates n images starting at start, step apart, newest last.
func burst(n int, start time.Time, step time.Duration) []media.Item {
	items := make([]media.Item, n)
	for i := range n {
		id := nextID.Add(1)
		items[i] = media.Item{
			ID:          id,
			LocationURI: fmt.Sprintf("content://media/%d", id),
			CapturedAt:  start.Add(time.Duration(i) * step).UnixMilli(),
			Kind:        media.KindImage,
		}
	}
	return items
}

func memberIDs(items []media.Item) map[int64]bool {
	ids := make(map[int64]bool, len(items))
	for _, it := range items {
		ids[it.ID] = true
	}
	return ids
}

func collect(ctx context.Context, s Streamer) ([]media.Cluster, error) {
	var out []media.Cluster
	err := s.StreamClusters(ctx, func(c media.Cluster) error {
		out = append(out, c)
		return nil
	})
	return out, err
}
