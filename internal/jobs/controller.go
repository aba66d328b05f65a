package jobs

import (
	"context"
	"reflect"

	"github.com/rs/zerolog/log"
)

// Status is the externally visible state of the controlled job.
type Status struct {
	State    State  `json:"state"`
	ID       string `json:"id,omitempty"`
	Progress any    `json:"progress,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Controller owns one named job: it starts it without duplicates, cancels
// it and reports its state.
type Controller struct {
	executor Executor
	name     string
	newWork  func(prompt string) Work
}

// NewController creates a controller for the job called name. newWork builds
// the work for one run from the caller's prompt.
func NewController(executor Executor, name string, newWork func(prompt string) Work) *Controller {
	return &Controller{executor: executor, name: name, newWork: newWork}
}

// Name returns the job name.
func (c *Controller) Name() string {
	return c.name
}

// Start enqueues a run unless one is already enqueued or running, in which
// case the existing run is kept and its prompt stays in effect.
func (c *Controller) Start(prompt string) (id string, enqueued bool) {
	id, enqueued = c.executor.Enqueue(c.name, KeepExisting, c.newWork(prompt))
	log.Info().Str("job", c.name).Str("id", id).Bool("enqueued", enqueued).Msg("job start requested")
	return id, enqueued
}

// Cancel cancels any unfinished run. Runs that already finished keep their
// state.
func (c *Controller) Cancel() {
	c.executor.CancelByName(c.name)
}

// ObserveState streams the job state, emitting only when it changes. The
// channel closes when ctx is done.
func (c *Controller) ObserveState(ctx context.Context) <-chan State {
	return observeDistinct(ctx, c.executor.Observe(ctx, c.name), func(infos []WorkInfo) (State, bool) {
		state, err := ResolveState(infos)
		if err != nil {
			log.Error().Err(err).Str("job", c.name).Msg("untranslatable work state")
			return "", false
		}
		return state, true
	}, func(a, b State) bool { return a == b })
}

// ObserveStatus is ObserveState with progress and error details.
func (c *Controller) ObserveStatus(ctx context.Context) <-chan Status {
	return observeDistinct(ctx, c.executor.Observe(ctx, c.name), func(infos []WorkInfo) (Status, bool) {
		status, err := statusOf(infos)
		if err != nil {
			log.Error().Err(err).Str("job", c.name).Msg("untranslatable work state")
			return Status{}, false
		}
		return status, true
	}, Status.equal)
}

// CurrentStatus returns the job status right now.
func (c *Controller) CurrentStatus(ctx context.Context) (Status, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	select {
	case infos := <-c.executor.Observe(ctx, c.name):
		return statusOf(infos)
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

func statusOf(infos []WorkInfo) (Status, error) {
	info, ok := Latest(infos)
	if !ok {
		return Status{State: StateIdle}, nil
	}
	state, err := TranslateState(info.State)
	if err != nil {
		return Status{}, err
	}
	return Status{State: state, ID: info.ID, Progress: info.Progress, Error: info.Error}, nil
}

func (s Status) equal(o Status) bool {
	return s.State == o.State && s.ID == o.ID && s.Error == o.Error && reflect.DeepEqual(s.Progress, o.Progress)
}

func observeDistinct[T any](ctx context.Context, in <-chan []WorkInfo, convert func([]WorkInfo) (T, bool), equal func(a, b T) bool) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		var last T
		first := true
		for infos := range in {
			v, ok := convert(infos)
			if !ok || (!first && equal(v, last)) {
				continue
			}
			select {
			case out <- v:
				last, first = v, false
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
