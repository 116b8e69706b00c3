// Package scheduler runs named periodic tasks, each at its own interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrAlreadyStarted is returned when registering or starting after Start.
	ErrAlreadyStarted = errors.New("scheduler already started")
	// ErrDuplicateTask is returned when a task name is registered twice.
	ErrDuplicateTask = errors.New("task already registered")
)

// Task is one unit of periodic work. A returned error is logged and the task
// runs again on its next tick.
type Task func(ctx context.Context) error

// TaskStats describes the execution history of a registered task.
type TaskStats struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Runs      uint64        `json:"runs"`
	Skips     uint64        `json:"skips"`
	Failures  uint64        `json:"failures"`
	LastError string        `json:"last_error,omitempty"`
	LastRun   time.Time     `json:"last_run"`
	Running   bool          `json:"running"`
}

type entry struct {
	name     string
	interval time.Duration
	task     Task

	// guarded by Scheduler.mu
	running bool
	stats   TaskStats
}

// Scheduler fires every registered task at its own interval. Ticks of one task
// never overlap: a tick that comes due while the previous one is still running
// is skipped. A failing or panicking tick never stops its own or other tasks.
type Scheduler struct {
	mu      sync.Mutex
	entries []*entry
	started bool
	stopped bool

	cancel   context.CancelFunc
	loops    *errgroup.Group
	inflight sync.WaitGroup
}

// New returns an empty scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Register adds a task. It must be called before Start.
func (s *Scheduler) Register(name string, interval time.Duration, task Task) error {
	if name == "" {
		return fmt.Errorf("task name must not be empty")
	}
	if interval <= 0 {
		return fmt.Errorf("task %q: interval must be positive, got %s", name, interval)
	}
	if task == nil {
		return fmt.Errorf("task %q: nil task", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	for _, e := range s.entries {
		if e.name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, name)
		}
	}
	s.entries = append(s.entries, &entry{
		name:     name,
		interval: interval,
		task:     task,
		stats:    TaskStats{Name: name, Interval: interval},
	})
	return nil
}

// Start begins firing every registered task; the first tick of each task fires
// immediately. Cancelling ctx stops new ticks like Stop does, but ticks receive a
// context that is detached from ctx's cancellation so in-flight work can finish.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	tickCtx := context.WithoutCancel(ctx)

	s.loops = &errgroup.Group{}
	for _, e := range s.entries {
		e := e
		s.loops.Go(func() error {
			s.loop(loopCtx, tickCtx, e)
			return nil
		})
		log.Info().Str("task", e.name).Dur("interval", e.interval).Msg("scheduled task")
	}
	return nil
}

// Stop stops firing new ticks and waits for in-flight ticks to finish.
// It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel, loops := s.cancel, s.loops
	s.mu.Unlock()

	cancel()
	_ = loops.Wait()
	s.inflight.Wait()
	log.Info().Msg("scheduler stopped")
}

// Stats returns a copy of every task's statistics, ordered by name.
func (s *Scheduler) Stats() []TaskStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskStats, 0, len(s.entries))
	for _, e := range s.entries {
		st := e.stats
		st.Running = e.running
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) loop(loopCtx, tickCtx context.Context, e *entry) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	s.fire(tickCtx, e)
	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
			s.fire(tickCtx, e)
		}
	}
}

// fire starts a tick of e unless one is already running.
func (s *Scheduler) fire(ctx context.Context, e *entry) {
	s.mu.Lock()
	if e.running {
		e.stats.Skips++
		s.mu.Unlock()
		log.Debug().Str("task", e.name).Msg("previous tick still running, skipping")
		return
	}
	e.running = true
	s.inflight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inflight.Done()
		started := time.Now()
		err := runTask(ctx, e)

		s.mu.Lock()
		e.running = false
		e.stats.Runs++
		e.stats.LastRun = started
		if err != nil {
			e.stats.Failures++
			e.stats.LastError = err.Error()
		} else {
			e.stats.LastError = ""
		}
		s.mu.Unlock()

		if err != nil {
			log.Error().Err(err).Str("task", e.name).Dur("took", time.Since(started)).Msg("task failed")
		}
	}()
}

func runTask(ctx context.Context, e *entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.task(ctx)
}
