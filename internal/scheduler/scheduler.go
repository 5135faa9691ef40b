// Package scheduler runs persisted jobs: it polls the task store, hands due
// tasks to a bounded worker pool and keeps recurring tasks rolling forward.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/example/seat-scheduler/internal/jobs"
)

// Handler executes one task. Errors are logged by the scheduler.
type Handler func(ctx context.Context, t jobs.Task) error

type Options struct {
	Workers      int
	PollInterval time.Duration
	MisfireGrace time.Duration
	Location     *time.Location
	Now          func() time.Time
}

type Scheduler struct {
	store    jobs.Store
	interval time.Duration
	grace    time.Duration
	loc      *time.Location
	now      func() time.Time
	sem      chan struct{}

	mu       sync.Mutex
	handlers map[jobs.Kind]Handler
	running  map[string]bool

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy

	wg sync.WaitGroup
}

func New(store jobs.Store, o Options) *Scheduler {
	if o.Workers <= 0 {
		o.Workers = 64
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.MisfireGrace <= 0 {
		o.MisfireGrace = 120 * time.Second
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &Scheduler{
		store:    store,
		interval: o.PollInterval,
		grace:    o.MisfireGrace,
		loc:      o.Location,
		now:      o.Now,
		sem:      make(chan struct{}, o.Workers),
		handlers: map[jobs.Kind]Handler{},
		running:  map[string]bool{},
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Handle registers h for tasks of kind.
func (s *Scheduler) Handle(kind jobs.Kind, h Handler) {
	s.mu.Lock()
	s.handlers[kind] = h
	s.mu.Unlock()
}

// Next returns the first fire time of spec strictly after t. Specs without a
// CRON_TZ prefix are evaluated in the scheduler's time zone.
func (s *Scheduler) Next(spec string, t time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: cron %q: %w", spec, err)
	}
	return sched.Next(t.In(s.loc)), nil
}

// Schedule stores t unless a task with the same id exists. A recurring task
// without RunAt starts at its next fire time.
func (s *Scheduler) Schedule(ctx context.Context, t jobs.Task) (bool, error) {
	if err := s.prepare(&t); err != nil {
		return false, err
	}
	created, err := s.store.Insert(ctx, t)
	if err != nil {
		return false, err
	}
	if created {
		log.Info().Str("job", t.ID).Time("run_at", t.RunAt).Msg("job scheduled")
	} else {
		log.Debug().Str("job", t.ID).Msg("job already scheduled")
	}
	return created, nil
}

func (s *Scheduler) Get(ctx context.Context, id string) (jobs.Task, error) {
	return s.store.Get(ctx, id)
}

// Modify applies fn to the stored task. A changed cron spec recomputes the
// next fire time.
func (s *Scheduler) Modify(ctx context.Context, id string, fn func(*jobs.Task)) (jobs.Task, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return jobs.Task{}, err
	}
	oldCron := t.Cron
	fn(&t)
	t.ID = id
	if t.Recurring() && t.Cron != oldCron {
		t.RunAt = time.Time{}
	}
	if err := s.prepare(&t); err != nil {
		return jobs.Task{}, err
	}
	if err := s.store.Update(ctx, t); err != nil {
		return jobs.Task{}, err
	}
	return t, nil
}

// Ensure creates t, or brings an existing task with the same id in line with
// t while keeping its paused flag.
func (s *Scheduler) Ensure(ctx context.Context, t jobs.Task) (jobs.Task, error) {
	created, err := s.Schedule(ctx, t)
	if err != nil {
		return jobs.Task{}, err
	}
	if created {
		return s.store.Get(ctx, t.ID)
	}
	return s.Modify(ctx, t.ID, func(cur *jobs.Task) {
		paused := cur.Paused
		keepRunAt := cur.Cron == t.Cron && t.RunAt.IsZero()
		runAt := cur.RunAt
		*cur = t
		cur.Paused = paused
		if keepRunAt {
			cur.RunAt = runAt
		}
	})
}

func (s *Scheduler) Remove(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	log.Info().Str("job", id).Msg("job removed")
	return nil
}

func (s *Scheduler) Pause(ctx context.Context, id string) error {
	_, err := s.Modify(ctx, id, func(t *jobs.Task) { t.Paused = true })
	return err
}

// Resume unpauses id. A recurring task whose fire time passed while paused
// moves to its next fire time.
func (s *Scheduler) Resume(ctx context.Context, id string) error {
	now := s.now()
	_, err := s.Modify(ctx, id, func(t *jobs.Task) {
		t.Paused = false
		if t.Recurring() && t.RunAt.Before(now) {
			t.RunAt = time.Time{}
		}
	})
	return err
}

func (s *Scheduler) List(ctx context.Context) ([]jobs.Task, error) {
	return s.store.List(ctx)
}

func (s *Scheduler) prepare(t *jobs.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("scheduler: task %q: %w", t.ID, err)
	}
	if t.Recurring() && t.RunAt.IsZero() {
		next, err := s.Next(t.Cron, s.now())
		if err != nil {
			return err
		}
		t.RunAt = next
	}
	return nil
}

// Run polls until ctx is cancelled, then waits for running jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-t.C:
			s.tick(ctx)
		}
	}
}

// Wait blocks until every dispatched job has returned.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	due, err := s.store.Due(ctx, now, cap(s.sem))
	if err != nil {
		log.Error().Err(err).Msg("scheduler: due tasks query failed")
		return
	}
	for _, t := range due {
		if s.isRunning(t.ID) {
			continue
		}
		if late := now.Sub(t.RunAt); late > s.grace {
			log.Warn().Str("job", t.ID).Dur("late", late).Msg("job missed its run time, skipping")
			s.advance(ctx, t, now)
			continue
		}
		select {
		case s.sem <- struct{}{}:
		default:
			log.Warn().Int("workers", cap(s.sem)).Msg("scheduler: worker pool full, deferring due jobs")
			return
		}
		if !s.claim(t.ID) {
			<-s.sem
			continue
		}
		if !s.advance(ctx, t, now) {
			s.release(t.ID)
			<-s.sem
			continue
		}

		s.wg.Add(1)
		go s.run(context.WithoutCancel(ctx), t)
	}
}

// advance moves a recurring task to its first fire time after now, so
// several missed fires coalesce into one run, and deletes a one-shot task.
// It reports false when the task was removed or rescheduled since it was
// read as due, in which case it must not run.
func (s *Scheduler) advance(ctx context.Context, t jobs.Task, now time.Time) bool {
	if !t.Recurring() {
		err := s.store.Delete(ctx, t.ID)
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			return false
		case err != nil:
			log.Error().Err(err).Str("job", t.ID).Msg("scheduler: delete one-shot task failed")
		}
		return true
	}
	next, err := s.Next(t.Cron, now)
	if err != nil {
		log.Error().Err(err).Str("job", t.ID).Msg("scheduler: cannot compute next run")
		return false
	}
	moved, err := s.store.Reschedule(ctx, t.ID, t.RunAt, next)
	if err != nil {
		log.Error().Err(err).Str("job", t.ID).Msg("scheduler: reschedule failed")
		return false
	}
	if !moved {
		log.Debug().Str("job", t.ID).Msg("job changed while due, leaving it")
	}
	return moved
}

func (s *Scheduler) run(ctx context.Context, t jobs.Task) {
	runID := s.newRunID()
	logger := log.With().Str("job", t.ID).Str("run", runID).Logger()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("job panicked")
		}
		s.release(t.ID)
		<-s.sem
		s.wg.Done()
	}()

	s.mu.Lock()
	h := s.handlers[t.Kind]
	s.mu.Unlock()
	if h == nil {
		logger.Error().Str("kind", string(t.Kind)).Msg("no handler for job kind")
		return
	}

	logger.Info().Msg("job started")
	if err := h(logger.WithContext(ctx), t); err != nil {
		logger.Error().Err(err).Dur("took", time.Since(start)).Msg("job failed")
		return
	}
	logger.Info().Dur("took", time.Since(start)).Msg("job finished")
}

func (s *Scheduler) isRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[id]
}

func (s *Scheduler) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[id] {
		return false
	}
	s.running[id] = true
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}

func (s *Scheduler) newRunID() string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}
