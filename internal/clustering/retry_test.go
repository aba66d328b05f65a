package clustering

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/photo-moments/internal/media"
)

var fastRetry = RetryOptions{
	InitialInterval: time.Millisecond,
	MaxInterval:     5 * time.Millisecond,
	MaxElapsedTime:  time.Second,
}

// flakyLoader fails the first failures calls.
type flakyLoader struct {
	items    []media.Item
	failures int64
	calls    atomic.Int64
}

func (l *flakyLoader) LoadMedia(context.Context) ([]media.Item, error) {
	if l.calls.Add(1) <= l.failures {
		return nil, errors.New("temporarily unavailable")
	}
	return l.items, nil
}

func TestSubscribeWithRetry_RecoversFromTransientFailures(t *testing.T) {
	items, locs, _, _ := dayFixture()
	loader := &flakyLoader{items: items, failures: 2}
	p := newTestPipeline(loader, locs, nil)

	var retries atomic.Int64
	opts := fastRetry
	opts.OnRetry = func(error, time.Duration) { retries.Add(1) }

	var got []media.Cluster
	err := SubscribeWithRetry(context.Background(), p, func(c media.Cluster) error {
		got = append(got, c)
		return nil
	}, opts)

	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int64(3), loader.calls.Load())
	assert.Equal(t, int64(2), retries.Load())
}

func TestSubscribeWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	loader := &flakyLoader{failures: 100}
	p := newTestPipeline(loader, newFakeLocations(), nil)
	opts := fastRetry
	opts.MaxRetries = 2

	err := SubscribeWithRetry(context.Background(), p, func(media.Cluster) error { return nil }, opts)

	require.Error(t, err)
	assert.Equal(t, int64(3), loader.calls.Load())
}

func TestSubscribeWithRetry_ConsumerErrorIsTerminal(t *testing.T) {
	items, locs, _, _ := dayFixture()
	p := newTestPipeline(&countingLoader{items: items}, locs, nil)
	stop := errors.New("consumer gone")
	var calls int

	err := SubscribeWithRetry(context.Background(), p, func(media.Cluster) error {
		calls++
		return stop
	}, fastRetry)

	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestSubscribeWithRetry_CancellationIsTerminal(t *testing.T) {
	loader := &flakyLoader{failures: 100}
	p := newTestPipeline(loader, newFakeLocations(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := SubscribeWithRetry(ctx, p, func(media.Cluster) error { return nil }, fastRetry)

	require.Error(t, err)
	assert.True(t, IsCancellation(ctx, err))
	assert.LessOrEqual(t, loader.calls.Load(), int64(1))
}

func TestIsCancellation(t *testing.T) {
	ctx := context.Background()

	assert.True(t, IsCancellation(ctx, ErrRunCancelled))
	assert.True(t, IsCancellation(ctx, context.Canceled))
	assert.False(t, IsCancellation(ctx, errors.New("boom")))
}
