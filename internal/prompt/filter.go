package prompt

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/photo-moments/internal/constants"
	"github.com/kozaktomas/photo-moments/internal/media"
)

// ErrNoClassifier is returned when a non-empty spec is applied without a
// classifier.
var ErrNoClassifier = errors.New("prompt filter needs a classifier")

// Filter narrows media lists to the categories of a Spec.
type Filter struct {
	classifier *Classifier
	batchSize  int
}

// NewFilter creates a filter. classifier may be nil when only empty specs
// will be applied.
func NewFilter(classifier *Classifier) *Filter {
	return &Filter{classifier: classifier, batchSize: constants.ClassifyBatchSize}
}

// Apply keeps the items whose categories intersect spec.Categories, in input
// order. An empty spec returns items unchanged without classifying anything.
func (f *Filter) Apply(ctx context.Context, items []media.Item, spec *Spec) ([]media.Item, error) {
	if spec.Empty() {
		return items, nil
	}
	if f.classifier == nil {
		return nil, ErrNoClassifier
	}

	keep := make([]bool, len(items))
	for start := 0; start < len(items); start += f.batchSize {
		end := min(start+f.batchSize, len(items))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				r, err := f.classifier.Classify(gctx, items[i].ID, items[i].LocationURI)
				if err != nil {
					return err
				}
				keep[i] = spec.Categories.Intersects(r)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	out := make([]media.Item, 0, len(items))
	for i, it := range items {
		if keep[i] {
			out = append(out, it)
		}
	}
	return out, nil
}
