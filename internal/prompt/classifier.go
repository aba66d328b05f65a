package prompt

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/kozaktomas/photo-moments/internal/constants"
)

// Label is one raw labeler output.
type Label struct {
	Name       string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Labeler runs image label inference for one media item.
type Labeler interface {
	LabelImage(ctx context.Context, locationURI string) ([]Label, error)
}

// Persister stores classification results beyond the process lifetime.
type Persister interface {
	LoadClassification(ctx context.Context, mediaID int64) (Result, bool, error)
	SaveClassification(ctx context.Context, mediaID int64, result Result) error
}

// Result maps each produced category to its confidence. A category that is
// absent was not produced, which is different from a zero confidence.
type Result map[Category]float64

// Categories returns the produced categories in stable order.
func (r Result) Categories() CategorySet {
	out := make([]Category, 0, len(r))
	for c := range r {
		out = append(out, c)
	}
	return NewCategorySet(out...)
}

// Categorize maps raw labels to categories. Labels below threshold are
// ignored and each category keeps the highest confidence seen.
func Categorize(labels []Label, threshold float64) Result {
	result := Result{}
	for _, l := range labels {
		if l.Confidence < threshold {
			continue
		}
		name := Normalize(l.Name)
		for _, c := range AllCategories {
			for _, kw := range table[c].Labels {
				if hasWord(name, kw) {
					if l.Confidence > result[c] {
						result[c] = l.Confidence
					}
					break
				}
			}
		}
	}
	return result
}

// Classifier classifies media items with a per item cache that lives as long
// as the classifier. Inference failures are cached as empty results.
type Classifier struct {
	labeler   Labeler
	persister Persister
	threshold float64

	cache sync.Map // int64 -> Result
	group singleflight.Group
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithPersister makes the classifier read through and write to p.
func WithPersister(p Persister) ClassifierOption {
	return func(c *Classifier) { c.persister = p }
}

// WithThreshold overrides the minimum label confidence.
func WithThreshold(t float64) ClassifierOption {
	return func(c *Classifier) { c.threshold = t }
}

// NewClassifier creates a classifier backed by labeler.
func NewClassifier(labeler Labeler, opts ...ClassifierOption) *Classifier {
	c := &Classifier{labeler: labeler, threshold: constants.MinLabelConfidence}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cached returns the cached result for mediaID, if any.
func (c *Classifier) Cached(mediaID int64) (Result, bool) {
	v, ok := c.cache.Load(mediaID)
	if !ok {
		return nil, false
	}
	return v.(Result), true
}

// Classify returns the categories of one media item. The only error it
// returns is the context error when ctx is cancelled; such outcomes are not
// cached. Concurrent calls for the same item share one labeling, which runs
// to completion even when the caller that started it leaves.
func (c *Classifier) Classify(ctx context.Context, mediaID int64, locationURI string) (Result, error) {
	if r, ok := c.Cached(mediaID); ok {
		return r, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(strconv.FormatInt(mediaID, 10), func() (any, error) {
		if r, ok := c.Cached(mediaID); ok {
			return r, nil
		}
		r, err := c.classify(shared, mediaID, locationURI)
		if err != nil {
			return nil, err
		}
		actual, _ := c.cache.LoadOrStore(mediaID, r)
		return actual, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Result), nil
	}
}

func (c *Classifier) classify(ctx context.Context, mediaID int64, locationURI string) (Result, error) {
	if c.persister != nil {
		r, found, err := c.persister.LoadClassification(ctx, mediaID)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			log.Warn().Err(err).Int64("media_id", mediaID).Msg("loading stored classification failed")
		case found:
			return r, nil
		}
	}

	labels, err := c.labeler.LabelImage(ctx, locationURI)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil, err
		}
		// Only the in-memory cache remembers failures, so the next process
		// labels the item again.
		log.Debug().Err(err).Int64("media_id", mediaID).Msg("labeling failed, caching empty result")
		return Result{}, nil
	}

	r := Categorize(labels, c.threshold)
	if c.persister != nil {
		if err := c.persister.SaveClassification(ctx, mediaID, r); err != nil {
			log.Warn().Err(err).Int64("media_id", mediaID).Msg("storing classification failed")
		}
	}
	return r, nil
}
