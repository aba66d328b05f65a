package jobs

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/photo-moments/internal/constants"
)

// ExistingWorkPolicy decides what Enqueue does when unfinished work with the
// same name exists.
type ExistingWorkPolicy int

const (
	// KeepExisting leaves the unfinished instance alone and enqueues nothing.
	KeepExisting ExistingWorkPolicy = iota
	// Replace cancels unfinished instances and enqueues a new one that
	// starts after they have stopped.
	Replace
)

// Work is a unit of background work. report publishes progress that
// observers see in WorkInfo.Progress.
type Work func(ctx context.Context, report func(progress any)) error

// WorkInfo is a snapshot of one work instance.
type WorkInfo struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	State      WorkState  `json:"-"`
	Progress   any        `json:"progress,omitempty"`
	Error      string     `json:"error,omitempty"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Executor runs named work.
type Executor interface {
	// Enqueue returns the ID of the instance that now represents name and
	// whether a new instance was created.
	Enqueue(name string, policy ExistingWorkPolicy, work Work) (id string, enqueued bool)
	// Observe streams snapshots of all known instances of name, oldest
	// first, starting with the current one.
	Observe(ctx context.Context, name string) <-chan []WorkInfo
	// CancelByName cancels every unfinished instance of name.
	CancelByName(name string)
}

type instance struct {
	info   WorkInfo
	cancel context.CancelFunc
	done   chan struct{}
	// cancelled is set once cancellation was requested. The work may still
	// be running until it notices.
	cancelled bool
}

// LocalExecutor runs work in goroutines of the current process.
type LocalExecutor struct {
	ctx         context.Context
	stop        context.CancelFunc
	historySize int

	mu        sync.Mutex
	instances map[string][]*instance
	listeners map[string][]chan []WorkInfo
	wg        sync.WaitGroup
}

// NewLocalExecutor creates an executor. Finished instances beyond
// historySize per name are forgotten; historySize <= 0 selects the default.
func NewLocalExecutor(historySize int) *LocalExecutor {
	if historySize <= 0 {
		historySize = constants.JobHistorySize
	}
	ctx, stop := context.WithCancel(context.Background())
	return &LocalExecutor{
		ctx:         ctx,
		stop:        stop,
		historySize: historySize,
		instances:   make(map[string][]*instance),
		listeners:   make(map[string][]chan []WorkInfo),
	}
}

// Enqueue implements Executor.
func (e *LocalExecutor) Enqueue(name string, policy ExistingWorkPolicy, work Work) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Instances being cancelled no longer count as existing work, but the
	// new instance starts only after they have stopped.
	var pending []*instance
	var wait []chan struct{}
	for _, inst := range e.instances[name] {
		switch {
		case inst.info.State.Finished():
		case inst.cancelled:
			wait = append(wait, inst.done)
		default:
			pending = append(pending, inst)
		}
	}
	if policy == KeepExisting && len(pending) > 0 {
		return pending[len(pending)-1].info.ID, false
	}

	ctx, cancel := context.WithCancel(e.ctx)
	inst := &instance{
		info: WorkInfo{
			ID:         uuid.New().String(),
			Name:       name,
			State:      WorkEnqueued,
			EnqueuedAt: time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	for _, p := range pending {
		e.cancelLocked(p)
		if !p.info.State.Finished() {
			wait = append(wait, p.done)
		}
	}
	if len(wait) > 0 {
		inst.info.State = WorkBlocked
	}

	e.instances[name] = append(e.instances[name], inst)
	e.trimLocked(name)
	e.notifyLocked(name)

	e.wg.Add(1)
	go e.run(ctx, inst, work, wait)

	log.Debug().Str("job", name).Str("id", inst.info.ID).Msg("work enqueued")
	return inst.info.ID, true
}

func (e *LocalExecutor) run(ctx context.Context, inst *instance, work Work, wait []chan struct{}) {
	defer e.wg.Done()
	defer close(inst.done)
	defer inst.cancel()

	for _, ch := range wait {
		select {
		case <-ch:
		case <-ctx.Done():
			e.finish(inst, WorkCancelled, nil)
			return
		}
	}

	if !e.transition(inst, func(info *WorkInfo) {
		now := time.Now()
		info.State = WorkRunning
		info.StartedAt = &now
	}) {
		return
	}

	err := e.safeRun(ctx, inst, work)
	switch {
	case err == nil:
		e.finish(inst, WorkSucceeded, nil)
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		e.finish(inst, WorkCancelled, err)
	default:
		log.Error().Err(err).Str("job", inst.info.Name).Str("id", inst.info.ID).Msg("work failed")
		e.finish(inst, WorkFailed, err)
	}
}

func (e *LocalExecutor) safeRun(ctx context.Context, inst *instance, work Work) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("work panicked")
			log.Error().Interface("panic", r).Str("job", inst.info.Name).Msg("work panicked")
		}
	}()
	return work(ctx, func(progress any) {
		e.transition(inst, func(info *WorkInfo) { info.Progress = progress })
	})
}

func (e *LocalExecutor) finish(inst *instance, state WorkState, err error) {
	e.transition(inst, func(info *WorkInfo) {
		now := time.Now()
		info.State = state
		info.FinishedAt = &now
		if err != nil {
			info.Error = err.Error()
		}
	})
}

// transition applies update unless the instance already finished. A
// finished state is never overwritten.
func (e *LocalExecutor) transition(inst *instance, update func(*WorkInfo)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if inst.info.State.Finished() {
		return false
	}
	update(&inst.info)
	e.notifyLocked(inst.info.Name)
	return true
}

// CancelByName implements Executor.
func (e *LocalExecutor) CancelByName(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, inst := range e.instances[name] {
		e.cancelLocked(inst)
	}
	e.notifyLocked(name)
}

// cancelLocked cancels inst. Instances that never started are finished
// right away; running ones finish when their work returns.
func (e *LocalExecutor) cancelLocked(inst *instance) {
	if inst.info.State.Finished() {
		return
	}
	inst.cancelled = true
	inst.cancel()
	if inst.info.State == WorkEnqueued || inst.info.State == WorkBlocked {
		now := time.Now()
		inst.info.State = WorkCancelled
		inst.info.FinishedAt = &now
	}
}

// Observe implements Executor.
func (e *LocalExecutor) Observe(ctx context.Context, name string) <-chan []WorkInfo {
	ch := make(chan []WorkInfo, 1)

	e.mu.Lock()
	ch <- e.snapshotLocked(name)
	e.listeners[name] = append(e.listeners[name], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.mu.Lock()
		defer e.mu.Unlock()
		listeners := e.listeners[name]
		if i := slices.Index(listeners, ch); i >= 0 {
			e.listeners[name] = slices.Delete(listeners, i, i+1)
			close(ch)
		}
	}()
	return ch
}

// Shutdown cancels all work and waits for it to return.
func (e *LocalExecutor) Shutdown() {
	e.stop()
	e.wg.Wait()
}

func (e *LocalExecutor) snapshotLocked(name string) []WorkInfo {
	list := e.instances[name]
	out := make([]WorkInfo, len(list))
	for i, inst := range list {
		out[i] = inst.info
	}
	return out
}

func (e *LocalExecutor) notifyLocked(name string) {
	listeners := e.listeners[name]
	if len(listeners) == 0 {
		return
	}
	snapshot := e.snapshotLocked(name)
	for _, ch := range listeners {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

func (e *LocalExecutor) trimLocked(name string) {
	list := e.instances[name]
	for len(list) > e.historySize {
		i := slices.IndexFunc(list, func(inst *instance) bool { return inst.info.State.Finished() })
		if i < 0 {
			break
		}
		list = slices.Delete(list, i, i+1)
	}
	e.instances[name] = list
}
