// Package scheduler implements the Scheduler of spec.md §4.7: a
// single in-process registry of jobs grouped by cron interval, one
// robfig/cron entry per distinct Interval, each tick fanning out to
// every job registered under that interval either sequentially
// ("async" mode) or over a bounded worker pool ("threaded" mode),
// matching the ticker-driven poll loop of
// services/automation.Scheduler in the teacher plus the
// interval_to_cron table of spec.md §6.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/btr-supply/chomp/internal/logging"
	"github.com/btr-supply/chomp/internal/model"
)

// Job is one scheduled unit: an ingester name plus the function that
// runs one epoch for it.
type Job struct {
	ID       string
	Interval model.Interval
	Run      func(ctx context.Context) error
}

// Mode selects how jobs sharing one interval are driven on each tick
// (spec.md §4.7 "threaded" Open Question, resolved in SPEC_FULL.md:
// both modes are implemented).
type Mode int

const (
	// ModeAsync runs every job under the interval sequentially,
	// awaiting each before starting the next (spec.md "run_async").
	ModeAsync Mode = iota
	// ModeThreaded submits every job under the interval to a bounded
	// worker pool and waits for all to finish (spec.md "run_threaded").
	ModeThreaded
)

// Scheduler holds jobs_by_interval / job_by_id / cron_by_interval
// (spec.md §4.7) and drives them via robfig/cron.
type Scheduler struct {
	mu               sync.Mutex
	jobsByInterval   map[model.Interval][]*Job
	jobByID          map[string]*Job
	cronByInterval   map[model.Interval]*cron.Cron
	entryByInterval  map[model.Interval]cron.EntryID
	mode             Mode
	poolSize         int
	log              *logging.Logger
	onJobError       func(id string, err error)
	supervisors      []chan struct{}
}

// New builds an empty Scheduler. poolSize bounds ModeThreaded's worker
// pool (spec.md §5 "bounded thread pool ... THREAD_POOL_SIZE").
func New(mode Mode, poolSize int, log *logging.Logger) *Scheduler {
	if poolSize <= 0 {
		poolSize = 4
	}
	return &Scheduler{
		jobsByInterval:  map[model.Interval][]*Job{},
		jobByID:         map[string]*Job{},
		cronByInterval:  map[model.Interval]*cron.Cron{},
		entryByInterval: map[model.Interval]cron.EntryID{},
		mode:            mode,
		poolSize:        poolSize,
		log:             log,
	}
}

// OnJobError registers a callback invoked whenever a job's Run returns
// an error, in place of the panic-and-shutdown a raised exception
// would trigger in a cooperative-scheduler source (spec.md §4.7
// "Supervision"); chomp surfaces the error to the caller's supervisor
// instead of unilaterally exiting.
func (s *Scheduler) OnJobError(fn func(id string, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onJobError = fn
}

// Add registers job, rejecting a duplicate id (spec.md §4.7 "add").
// If start is true and the interval's cron isn't running yet, it is
// started immediately.
func (s *Scheduler) Add(ctx context.Context, job *Job, start bool) error {
	s.mu.Lock()
	if _, exists := s.jobByID[job.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: duplicate job id %q", job.ID)
	}
	s.jobByID[job.ID] = job
	s.jobsByInterval[job.Interval] = append(s.jobsByInterval[job.Interval], job)
	alreadyRunning := s.cronByInterval[job.Interval] != nil
	s.mu.Unlock()

	if start && !alreadyRunning {
		return s.StartInterval(ctx, job.Interval)
	}
	return nil
}

// AddIngester is the add_ingester convenience wrapper: builds a Job
// named after the ingester and registers it (spec.md §4.7
// "add_ingester").
func (s *Scheduler) AddIngester(ctx context.Context, ing *model.Ingester, run func(ctx context.Context) error, start bool) error {
	return s.Add(ctx, &Job{ID: ing.Name, Interval: ing.Interval, Run: run}, start)
}

// AddIngesters registers every ingester in ings (spec.md §4.7
// "add_ingesters").
func (s *Scheduler) AddIngesters(ctx context.Context, ings []*model.Ingester, resolve func(*model.Ingester) func(ctx context.Context) error, start bool) error {
	for _, ing := range ings {
		if err := s.AddIngester(ctx, ing, resolve(ing), start); err != nil {
			return err
		}
	}
	return nil
}

// StartInterval cancels any previous cron for interval and constructs
// a new one driving every job currently registered under it (spec.md
// §4.7 "start_interval").
func (s *Scheduler) StartInterval(ctx context.Context, interval model.Interval) error {
	expr, err := interval.Cron()
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	var opts []cron.Option
	if len(strings.Fields(expr)) == 6 {
		opts = append(opts, cron.WithSeconds())
	}

	s.mu.Lock()
	if prev, ok := s.cronByInterval[interval]; ok {
		prev.Stop()
	}
	c := cron.New(opts...)
	s.mu.Unlock()

	entryID, err := c.AddFunc(expr, func() { s.tick(ctx, interval) })
	if err != nil {
		return fmt.Errorf("scheduler: schedule interval %q: %w", interval, err)
	}

	s.mu.Lock()
	s.cronByInterval[interval] = c
	s.entryByInterval[interval] = entryID
	s.mu.Unlock()

	c.Start()
	return nil
}

// Start starts every registered interval (spec.md §4.7 "start"),
// returning once every interval's cron has been constructed — the
// crons themselves continue running in background goroutines managed
// by robfig/cron.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	intervals := make([]model.Interval, 0, len(s.jobsByInterval))
	for iv := range s.jobsByInterval {
		intervals = append(intervals, iv)
	}
	s.mu.Unlock()

	for _, iv := range intervals {
		if err := s.StartInterval(ctx, iv); err != nil {
			return err
		}
	}
	return nil
}

// Stop cancels every running cron. Context windows for in-flight ticks
// are allowed to finish; Stop does not interrupt a job mid-Run.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cronByInterval {
		<-c.Stop().Done()
	}
}

// tick fans out to every job registered under interval, per s.mode
// (spec.md §4.7 "run_async"/"run_threaded").
func (s *Scheduler) tick(ctx context.Context, interval model.Interval) {
	s.mu.Lock()
	jobs := make([]*Job, len(s.jobsByInterval[interval]))
	copy(jobs, s.jobsByInterval[interval])
	mode := s.mode
	poolSize := s.poolSize
	onErr := s.onJobError
	s.mu.Unlock()

	run := func(j *Job) {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("scheduler: job %q panicked: %v", j.ID, r)
				if s.log != nil {
					s.log.Ingester(j.ID, "").WithError(err).Error("job panicked")
				}
				if onErr != nil {
					onErr(j.ID, err)
				}
			}
		}()
		if err := j.Run(ctx); err != nil {
			if s.log != nil {
				s.log.Ingester(j.ID, "").WithError(err).Warn("job run failed")
			}
			if onErr != nil {
				onErr(j.ID, err)
			}
		}
	}

	switch mode {
	case ModeThreaded:
		sem := make(chan struct{}, poolSize)
		var wg sync.WaitGroup
		for _, j := range jobs {
			wg.Add(1)
			sem <- struct{}{}
			go func(j *Job) {
				defer wg.Done()
				defer func() { <-sem }()
				run(j)
			}(j)
		}
		wg.Wait()
	default: // ModeAsync
		for _, j := range jobs {
			run(j)
		}
	}
}
