package clustering

import (
	"context"

	"github.com/kozaktomas/photo-moments/internal/constants"
	"github.com/kozaktomas/photo-moments/internal/media"
)

// Spatial subdivides one temporal bucket by location density. Items without
// a resolvable location do not take part.
type Spatial struct {
	resolver  *LocationResolver
	Epsilon   float64
	MinPoints int
	MinSize   int
}

// NewSpatial returns a Spatial strategy with the default density parameters.
func NewSpatial(resolver *LocationResolver) *Spatial {
	return &Spatial{
		resolver:  resolver,
		Epsilon:   constants.SpatialEpsilon,
		MinPoints: constants.SpatialMinPoints,
		MinSize:   constants.MinClusterSize,
	}
}

// Cluster implements Strategy.
func (s *Spatial) Cluster(ctx context.Context, items []media.Item) ([]Group, error) {
	return runTemplate(ctx, items, minSizeOrDefault(s.MinSize), s.group)
}

func (s *Spatial) group(ctx context.Context, items []media.Item) ([]Group, error) {
	locations, err := s.resolver.Resolve(ctx, items)
	if err != nil {
		return nil, err
	}

	located := make([]media.Item, 0, len(items))
	points := make([]point, 0, len(items))
	for i, loc := range locations {
		if loc == nil {
			continue
		}
		located = append(located, items[i])
		points = append(points, point{lat: loc.Latitude, lng: loc.Longitude})
	}
	if len(located) == 0 {
		return nil, nil
	}

	minPoints := s.MinPoints
	if minPoints <= 0 {
		minPoints = constants.SpatialMinPoints
	}

	var groups []Group
	for _, idx := range dbscan(points, s.Epsilon, minPoints) {
		g := Group{
			Members:   make([]media.Item, len(idx)),
			Locations: make([]media.Location, len(idx)),
		}
		for k, j := range idx {
			g.Members[k] = located[j]
			g.Locations[k] = media.Location{Latitude: points[j].lat, Longitude: points[j].lng}
		}
		g.Key = g.Members[0].CapturedAt
		groups = append(groups, g)
	}
	return groups, nil
}

// Centroid returns the arithmetic mean of the given locations, or false when
// there are none.
func Centroid(locations []media.Location) (media.Location, bool) {
	if len(locations) == 0 {
		return media.Location{}, false
	}
	var lat, lng float64
	for _, l := range locations {
		lat += l.Latitude
		lng += l.Longitude
	}
	n := float64(len(locations))
	return media.Location{Latitude: lat / n, Longitude: lng / n}, true
}
