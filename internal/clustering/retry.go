package clustering

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/photo-moments/internal/constants"
	"github.com/kozaktomas/photo-moments/internal/media"
)

// Streamer is anything that can stream clusters, typically a *Pipeline.
type Streamer interface {
	StreamClusters(ctx context.Context, fn func(media.Cluster) error) error
}

// RetryOptions configures SubscribeWithRetry. Zero values select defaults.
type RetryOptions struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64

	// OnRetry is called before each resubscription. Clusters are redelivered
	// from the start of the next run after a retry.
	OnRetry func(err error, wait time.Duration)
}

// SubscribeWithRetry subscribes to s and resubscribes with exponential backoff
// after transient run failures. Cancellation and errors returned by fn are
// terminal and never retried.
func SubscribeWithRetry(ctx context.Context, s Streamer, fn func(media.Cluster) error, opts RetryOptions) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = durationOr(opts.InitialInterval, constants.DefaultRetryInitialInterval)
	b.MaxInterval = durationOr(opts.MaxInterval, constants.DefaultRetryMaxInterval)
	b.MaxElapsedTime = durationOr(opts.MaxElapsedTime, constants.DefaultRetryMaxElapsed)

	var policy backoff.BackOff = b
	if opts.MaxRetries > 0 {
		policy = backoff.WithMaxRetries(policy, opts.MaxRetries)
	}

	operation := func() error {
		var consumerErr error
		err := s.StreamClusters(ctx, func(c media.Cluster) error {
			if err := fn(c); err != nil {
				consumerErr = err
				return err
			}
			return nil
		})
		switch {
		case err == nil:
			return nil
		case consumerErr != nil:
			return backoff.Permanent(consumerErr)
		case IsCancellation(ctx, err):
			return backoff.Permanent(err)
		default:
			return err
		}
	}

	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("cluster stream failed, resubscribing")
		if opts.OnRetry != nil {
			opts.OnRetry(err, wait)
		}
	}

	return backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify)
}

// IsCancellation reports whether err represents a deliberate cancellation
// rather than a failure.
func IsCancellation(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, ErrRunCancelled) || errors.Is(err, context.Canceled)
}

func durationOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
