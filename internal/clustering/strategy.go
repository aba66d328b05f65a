// Package clustering groups media into moments: temporal bucketing by capture
// gap, spatial density clustering inside each bucket, and a cached, shared
// stream of the titled results.
package clustering

import (
	"context"

	"github.com/kozaktomas/photo-moments/internal/constants"
	"github.com/kozaktomas/photo-moments/internal/media"
)

// Group is an intermediate clustering result. Locations is either empty or
// parallel to Members.
type Group struct {
	Key       int64
	Members   []media.Item
	Locations []media.Location
}

// Strategy groups a list of media items. Groups come back in the order the
// strategy produced them and every group has at least MinSize members.
type Strategy interface {
	Cluster(ctx context.Context, items []media.Item) ([]Group, error)
}

// groupFunc is the policy specific part of a strategy.
type groupFunc func(ctx context.Context, items []media.Item) ([]Group, error)

// runTemplate applies the behavior shared by every policy: empty input yields
// nothing without calling the policy, and undersized groups are dropped.
func runTemplate(ctx context.Context, items []media.Item, minSize int, group groupFunc) ([]Group, error) {
	if len(items) == 0 {
		return nil, nil
	}
	groups, err := group(ctx, items)
	if err != nil {
		return nil, err
	}
	return dropSmall(groups, minSize), nil
}

// dropSmall removes every group with fewer than minSize members.
func dropSmall(groups []Group, minSize int) []Group {
	kept := groups[:0]
	for _, g := range groups {
		if len(g.Members) >= minSize {
			kept = append(kept, g)
		}
	}
	return kept
}

func minSizeOrDefault(n int) int {
	if n <= 0 {
		return constants.MinClusterSize
	}
	return n
}
