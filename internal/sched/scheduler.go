// Package sched implements the job scheduler facade. Named one-shot and
// repeating jobs run on the underlying cron runner's own timing thread,
// independent of handler dispatch.
package sched

import (
	"context"
	"sync"
	"time"

	"github.com/HerbHall/botforge/internal/metrics"
	"github.com/HerbHall/botforge/pkg/plugin"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler registers jobs with an underlying cron runner. Job names are
// not unique; multiple jobs may share one name.
type Scheduler struct {
	cron     *cron.Cron
	notifier plugin.Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]*Job // keyed by job id
}

// New creates a Scheduler and starts its timing thread.
func New(notifier plugin.Notifier, m *metrics.Metrics, logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:     cron.New(),
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[string]*Job),
	}
	s.cron.Start()
	return s
}

// Stop halts the timing thread and cancels the context passed to job
// callbacks. Already-running invocations are not interrupted.
func (s *Scheduler) Stop() {
	s.cancel()
	s.cron.Stop()
}

// RunOnce schedules fn to run a single time at the given instant. The
// job removes itself after execution.
func (s *Scheduler) RunOnce(fn plugin.JobFunc, when time.Time, payload any, name string) *Job {
	return s.schedule(fn, onceAt{at: when}, payload, name, true)
}

// RunRepeating schedules fn to run every interval, with the first run
// after the given initial delay.
func (s *Scheduler) RunRepeating(fn plugin.JobFunc, interval, first time.Duration, payload any, name string) *Job {
	sched := fixedDelay{first: time.Now().Add(first), every: interval}
	return s.schedule(fn, sched, payload, name, false)
}

// Jobs returns all jobs matching name, or every job when no name given.
func (s *Scheduler) Jobs(name ...string) []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Job
	for _, j := range s.jobs {
		if len(name) == 0 || name[0] == j.name {
			out = append(out, j)
		}
	}
	return out
}

func (s *Scheduler) schedule(fn plugin.JobFunc, sched cron.Schedule, payload any, name string, once bool) *Job {
	j := &Job{
		id:      uuid.New().String(),
		name:    name,
		payload: payload,
		sched:   s,
	}

	s.mu.Lock()
	j.entry = s.cron.Schedule(sched, cron.FuncJob(func() {
		s.run(j, fn, once)
	}))
	s.jobs[j.id] = j
	s.mu.Unlock()

	return j
}

// run executes one job invocation. Panics are recovered, logged, and
// forwarded to the notification channel; one-shot jobs deregister
// themselves after their single execution.
func (s *Scheduler) run(j *Job, fn plugin.JobFunc, once bool) {
	if once {
		defer s.remove(j)
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked",
				zap.String("job", j.name),
				zap.Any("panic", r),
			)
			s.notifier.Notify(r)
		}
	}()

	s.metrics.JobsRun.WithLabelValues(j.name).Inc()
	fn(s.ctx, j.payload)
}

func (s *Scheduler) remove(j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[j.id]; !ok {
		return
	}
	s.cron.Remove(j.entry)
	delete(s.jobs, j.id)
}

// Compile-time interface guard.
var _ plugin.Job = (*Job)(nil)

// Job is a handle to one scheduled unit of work.
type Job struct {
	id      string
	name    string
	payload any
	sched   *Scheduler
	entry   cron.EntryID
}

func (j *Job) ID() string   { return j.id }
func (j *Job) Name() string { return j.name }

// Payload returns the opaque value supplied at scheduling time.
func (j *Job) Payload() any { return j.payload }

// Cancel prevents future executions. Cooperative: a running invocation
// finishes normally.
func (j *Job) Cancel() { j.sched.remove(j) }

// onceAt fires once at a fixed instant, then never again.
type onceAt struct {
	at time.Time
}

func (s onceAt) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{} // zero: never schedule again
}

// fixedDelay fires at first, then every interval thereafter.
type fixedDelay struct {
	first time.Time
	every time.Duration
}

func (s fixedDelay) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return t.Add(s.every)
}

// Compile-time interface guards for the cron schedules.
var (
	_ cron.Schedule = onceAt{}
	_ cron.Schedule = fixedDelay{}
)

// Bind returns a plugin-facing view whose unnamed jobs default to the
// owning plugin's name.
func (s *Scheduler) Bind(owner string) plugin.Scheduler {
	return boundScheduler{s: s, owner: owner}
}

type boundScheduler struct {
	s     *Scheduler
	owner string
}

func (b boundScheduler) RunOnce(fn plugin.JobFunc, when time.Time, payload any, name string) plugin.Job {
	if name == "" {
		name = b.owner
	}
	return b.s.RunOnce(fn, when, payload, name)
}

func (b boundScheduler) RunRepeating(fn plugin.JobFunc, interval, first time.Duration, payload any, name string) plugin.Job {
	if name == "" {
		name = b.owner
	}
	return b.s.RunRepeating(fn, interval, first, payload, name)
}

func (b boundScheduler) Jobs(name ...string) []plugin.Job {
	jobs := b.s.Jobs(name...)
	out := make([]plugin.Job, len(jobs))
	for i, j := range jobs {
		out[i] = j
	}
	return out
}
