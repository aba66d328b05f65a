package clustering

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/photo-moments/internal/media"
)

var (
	prague = media.Location{Latitude: 50.0875, Longitude: 14.4213}
	brno   = media.Location{Latitude: 49.1951, Longitude: 16.6068}
)

func TestDBSCAN_NeighbourAtExactlyEpsilon(t *testing.T) {
	points := []point{{0, 0}, {0, 0.5}, {0, 2}}

	clusters := dbscan(points, 0.5, 1)

	require.Len(t, clusters, 2)
	assert.Equal(t, []int{0, 1}, clusters[0])
	assert.Equal(t, []int{2}, clusters[1])
}

func TestDBSCAN_ChainsThroughCorePoints(t *testing.T) {
	points := []point{{0, 0}, {0, 0.02}, {0, 0.04}, {0, 0.06}}

	clusters := dbscan(points, 0.03, 1)

	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0], 4)
}

func TestDBSCAN_MinPointsMarksNoise(t *testing.T) {
	points := []point{{0, 0}, {0, 0.01}, {0, 0.02}, {5, 5}}

	clusters := dbscan(points, 0.03, 3)

	require.Len(t, clusters, 1)
	assert.Equal(t, []int{0, 1, 2}, clusters[0])
}

func TestDBSCAN_DenseGroupListsEachPointOnce(t *testing.T) {
	points := make([]point, 1500)
	for i := range points {
		points[i] = point{lat: 50, lng: 14 + float64(i%3)*1e-6}
	}

	clusters := dbscan(points, 0.01, 2)

	require.Len(t, clusters, 1)
	require.Len(t, clusters[0], len(points))
	for i, idx := range clusters[0] {
		assert.Equal(t, i, idx)
	}
}

func TestDBSCAN_BorderPointSharedByCoresJoinsOnce(t *testing.T) {
	// 0 is scanned first and marked noise; 1 and 2 are cores that both reach it.
	points := []point{{0, 0.03}, {0, 0}, {0, 0.01}, {0, -0.01}, {0, -0.02}}

	clusters := dbscan(points, 0.03, 4)

	require.Len(t, clusters, 1)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, clusters[0])
}

func TestSpatial_SplitsByLocation(t *testing.T) {
	locs := newFakeLocations()
	a := burst(20, base, time.Minute)
	b := burst(19, base.Add(20*time.Minute), time.Minute)
	locs.set(a, prague)
	locs.set(b, brno)

	groups, err := NewSpatial(NewLocationResolver(locs, 0)).Cluster(context.Background(), append(a, b...))

	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, memberIDs(a), memberIDs(groups[0].Members))
	require.Len(t, groups[0].Locations, 20)
	assert.Equal(t, prague, groups[0].Locations[0])
	assert.Equal(t, int64(39), locs.calls.Load())
}

func TestSpatial_UnlocatedItemsAreDropped(t *testing.T) {
	locs := newFakeLocations()
	items := burst(22, base, time.Minute)
	locs.set(items, prague)
	locs.failing[items[0].LocationURI] = true
	delete(locs.byURI, items[1].LocationURI)

	groups, err := NewSpatial(NewLocationResolver(locs, 4)).Cluster(context.Background(), items)

	require.NoError(t, err)
	require.Len(t, groups, 1)
	ids := memberIDs(groups[0].Members)
	assert.Len(t, ids, 20)
	assert.False(t, ids[items[0].ID])
	assert.False(t, ids[items[1].ID])
}

func TestSpatial_NothingLocated(t *testing.T) {
	groups, err := NewSpatial(NewLocationResolver(newFakeLocations(), 0)).
		Cluster(context.Background(), burst(30, base, time.Minute))

	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestSpatial_MinimumSize(t *testing.T) {
	for _, n := range []int{19, 20} {
		locs := newFakeLocations()
		items := burst(n, base, 0)
		locs.set(items, brno)

		groups, err := NewSpatial(NewLocationResolver(locs, 0)).Cluster(context.Background(), items)

		require.NoError(t, err)
		if n < 20 {
			assert.Empty(t, groups)
		} else {
			assert.Len(t, groups, 1)
		}
	}
}

func TestSpatial_CancelledContext(t *testing.T) {
	locs := newFakeLocations()
	items := burst(40, base, time.Minute)
	locs.set(items, prague)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSpatial(NewLocationResolver(locs, 0)).Cluster(ctx, items)

	assert.ErrorIs(t, err, context.Canceled)
}

// Every spatial cluster is a subset of exactly one temporal bucket.
func TestSpatialClustersStayInsideTemporalBuckets(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	places := []media.Location{prague, brno, {Latitude: 48.2082, Longitude: 16.3738}}

	for round := range 20 {
		locs := newFakeLocations()
		var items []media.Item
		start := base
		for range 2 + rng.IntN(4) {
			n := 15 + rng.IntN(40)
			chunk := burst(n, start, time.Duration(1+rng.IntN(10))*time.Minute)
			for _, it := range chunk {
				locs.set([]media.Item{it}, places[rng.IntN(len(places))])
			}
			items = append(items, chunk...)
			start = start.Add(time.Duration(4+rng.IntN(48)) * time.Hour)
		}
		rng.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })

		buckets, err := NewTemporal().Cluster(context.Background(), items)
		require.NoError(t, err)

		spatial := NewSpatial(NewLocationResolver(locs, 0))
		for _, bucket := range buckets {
			bucketIDs := memberIDs(bucket.Members)
			groups, err := spatial.Cluster(context.Background(), bucket.Members)
			require.NoError(t, err)
			for _, g := range groups {
				assert.GreaterOrEqual(t, len(g.Members), 20, "round %d", round)
				for _, m := range g.Members {
					assert.True(t, bucketIDs[m.ID], "round %d: member %d escaped its bucket", round, m.ID)
				}
			}
		}
	}
}

func TestCentroid(t *testing.T) {
	_, ok := Centroid(nil)
	assert.False(t, ok)

	c, ok := Centroid([]media.Location{{Latitude: 1, Longitude: 2}, {Latitude: 3, Longitude: 6}})
	require.True(t, ok)
	assert.InDelta(t, 2.0, c.Latitude, 1e-9)
	assert.InDelta(t, 4.0, c.Longitude, 1e-9)
}
