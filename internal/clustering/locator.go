package clustering

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/photo-moments/internal/constants"
	"github.com/kozaktomas/photo-moments/internal/media"
)

// LocationLookup resolves the GPS position of one media item.
type LocationLookup interface {
	ResolveLocation(ctx context.Context, locationURI string) (*media.Location, error)
}

// LocationResolver resolves item locations in fixed-size concurrent batches.
type LocationResolver struct {
	lookup    LocationLookup
	batchSize int
}

// NewLocationResolver creates a resolver. batchSize <= 0 selects the default.
func NewLocationResolver(lookup LocationLookup, batchSize int) *LocationResolver {
	if batchSize <= 0 {
		batchSize = constants.LocationBatchSize
	}
	return &LocationResolver{lookup: lookup, batchSize: batchSize}
}

// Resolve returns one entry per item; nil marks an item without a usable
// location. Lookup failures degrade to nil. Only cancellation is an error.
func (r *LocationResolver) Resolve(ctx context.Context, items []media.Item) ([]*media.Location, error) {
	out := make([]*media.Location, len(items))

	for start := 0; start < len(items); start += r.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+r.batchSize, len(items))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				loc, err := r.lookup.ResolveLocation(ctx, items[i].LocationURI)
				if err != nil {
					log.Debug().Err(err).Int64("media_id", items[i].ID).Msg("location lookup failed")
					return nil
				}
				out[i] = loc
				return nil
			})
		}
		_ = g.Wait()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
