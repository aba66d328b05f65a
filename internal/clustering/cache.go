package clustering

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/kozaktomas/photo-moments/internal/media"
)

// Cache holds the last complete clustering snapshot. Readers always observe
// either the previous or the new complete list, never a partial one. Reads
// are lock free; writers serialize on mu.
type Cache struct {
	snapshot atomic.Pointer[[]media.Cluster]

	mu       sync.Mutex
	watchers []chan []media.Cluster
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Snapshot returns the cached clusters and whether a run has completed.
func (c *Cache) Snapshot() ([]media.Cluster, bool) {
	p := c.snapshot.Load()
	if p == nil {
		return nil, false
	}
	return *p, true
}

// Publish atomically replaces the snapshot and notifies watchers.
func (c *Cache) Publish(clusters []media.Cluster) {
	list := slices.Clone(clusters)
	if list == nil {
		list = []media.Cluster{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot.Store(&list)
	c.notifyLocked(list)
}

// UpdateSaveState replaces the snapshot with a copy in which the cluster with
// the given key has the new save state. It returns false when no snapshot or
// no such cluster exists.
func (c *Cache) UpdateSaveState(key int64, state media.SaveState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.snapshot.Load()
	if old == nil {
		return false
	}
	idx := slices.IndexFunc(*old, func(cl media.Cluster) bool { return cl.Key == key })
	if idx < 0 {
		return false
	}
	next := slices.Clone(*old)
	next[idx].SaveState = state
	c.snapshot.Store(&next)
	c.notifyLocked(next)
	return true
}

// Watch streams the current snapshot (if any) followed by every update until
// ctx is done. Slow watchers miss intermediate values, never the latest one.
func (c *Cache) Watch(ctx context.Context) <-chan []media.Cluster {
	ch := make(chan []media.Cluster, 1)

	c.mu.Lock()
	if p := c.snapshot.Load(); p != nil {
		ch <- *p
	}
	c.watchers = append(c.watchers, ch)
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, w := range c.watchers {
			if w == ch {
				c.watchers = append(c.watchers[:i], c.watchers[i+1:]...)
				close(ch)
				return
			}
		}
	}()
	return ch
}

// notifyLocked runs under c.mu so watchers see updates in store order.
func (c *Cache) notifyLocked(list []media.Cluster) {
	for _, w := range c.watchers {
		// Keep only the newest value in the one-slot buffer.
		select {
		case <-w:
		default:
		}
		w <- list
	}
}
