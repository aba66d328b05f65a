package clustering

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/kozaktomas/photo-moments/internal/constants"
	"github.com/kozaktomas/photo-moments/internal/media"
)

// Temporal splits items into buckets separated by capture gaps.
type Temporal struct {
	MaxGap  time.Duration
	MinSize int
}

// NewTemporal returns a Temporal strategy with the default gap and minimum size.
func NewTemporal() *Temporal {
	return &Temporal{
		MaxGap:  constants.MaxTimeGap,
		MinSize: constants.MinClusterSize,
	}
}

// Cluster implements Strategy.
func (t *Temporal) Cluster(ctx context.Context, items []media.Item) ([]Group, error) {
	return runTemplate(ctx, items, minSizeOrDefault(t.MinSize), t.bucket)
}

func (t *Temporal) bucket(ctx context.Context, items []media.Item) ([]Group, error) {
	minSize := minSizeOrDefault(t.MinSize)
	maxGap := t.MaxGap
	if maxGap <= 0 {
		maxGap = constants.MaxTimeGap
	}
	gapMillis := maxGap.Milliseconds()

	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b media.Item) int {
		return cmp.Compare(b.CapturedAt, a.CapturedAt)
	})

	var groups []Group
	current := []media.Item{sorted[0]}
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].CapturedAt-sorted[i].CapturedAt > gapMillis {
			groups = append(groups, Group{Key: current[0].CapturedAt, Members: current})
			// Whatever is left can no longer reach the minimum size.
			if len(sorted)-i < minSize {
				return groups, nil
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			current = []media.Item{sorted[i]}
			continue
		}
		current = append(current, sorted[i])
	}
	groups = append(groups, Group{Key: current[0].CapturedAt, Members: current})
	return groups, nil
}
