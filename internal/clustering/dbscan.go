package clustering

import (
	"math"
	"slices"
)

type point struct {
	lat, lng float64
}

func euclidean(a, b point) float64 {
	return math.Hypot(a.lat-b.lat, a.lng-b.lng)
}

// dbscan returns clusters as lists of point indices. Clusters are ordered by
// their first discovered point and indices inside a cluster are ascending.
// Noise points (possible only with minPoints > 1) are omitted.
func dbscan(points []point, eps float64, minPoints int) [][]int {
	const (
		unvisited = 0
		noise     = -1
	)

	labels := make([]int, len(points))
	var clusters [][]int
	clusterID := 0

	for i := range points {
		if labels[i] != unvisited {
			continue
		}
		neighbours := regionQuery(points, i, eps)
		if len(neighbours) < minPoints {
			labels[i] = noise
			continue
		}

		clusterID++
		labels[i] = clusterID
		members := []int{i}

		// A point enters the queue at most once per cluster.
		queued := map[int]bool{i: true}
		var queue []int
		enqueue := func(ns []int) {
			for _, n := range ns {
				if queued[n] || (labels[n] != unvisited && labels[n] != noise) {
					continue
				}
				queued[n] = true
				queue = append(queue, n)
			}
		}
		enqueue(neighbours)

		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]

			if labels[j] == noise {
				labels[j] = clusterID
				members = append(members, j)
				continue
			}
			labels[j] = clusterID
			members = append(members, j)

			jNeighbours := regionQuery(points, j, eps)
			if len(jNeighbours) >= minPoints {
				enqueue(jNeighbours)
			}
		}

		slices.Sort(members)
		clusters = append(clusters, members)
	}
	return clusters
}

// regionQuery returns all points within eps of points[i], including i itself.
func regionQuery(points []point, i int, eps float64) []int {
	var out []int
	for j := range points {
		if euclidean(points[i], points[j]) <= eps {
			out = append(out, j)
		}
	}
	return out
}
