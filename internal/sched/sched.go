package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Handler is one run of a job. now is the trigger instant so handlers stay
// testable with an injected clock.
type Handler func(ctx context.Context, now time.Time) error

// ErrAlreadyRunning is returned by RunNow when the job has an in-flight run.
var ErrAlreadyRunning = errors.New("job is already running")

type job struct {
	name    string
	spec    string
	handler Handler
	entryID cron.EntryID

	running atomic.Bool

	mu        sync.Mutex
	runs      int64
	lastStart time.Time
	lastEnd   time.Time
	lastErr   string
}

// JobStatus is a point-in-time snapshot of one registered job.
type JobStatus struct {
	Name      string    `json:"name"`
	Spec      string    `json:"spec"`
	Running   bool      `json:"running"`
	Runs      int64     `json:"runs"`
	LastStart time.Time `json:"last_start,omitempty"`
	LastEnd   time.Time `json:"last_end,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	NextRun   time.Time `json:"next_run,omitempty"`
}

// Scheduler owns the process-wide job registry. Each job fires on its cron
// spec with at most one in-flight run; a trigger that arrives while the
// previous run is still going is dropped, not queued.
type Scheduler struct {
	cron *cron.Cron

	mu      sync.Mutex
	jobs    map[string]*job
	order   []string
	started bool
	ctx     context.Context

	wg sync.WaitGroup
}

func New() *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		jobs: make(map[string]*job),
		ctx:  context.Background(),
	}
}

// Register attaches a handler to a named recurring trigger. An invalid cron
// spec fails here, at startup, rather than surfacing as a silent dead job.
func (s *Scheduler) Register(name, spec string, h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return errors.Newf("job %q registered twice", name)
	}

	j := &job{name: name, spec: spec, handler: h}
	entryID, err := s.cron.AddFunc(spec, func() { s.run(j, time.Now()) })
	if err != nil {
		return errors.Wrapf(err, "invalid schedule %q for job %q", spec, name)
	}
	j.entryID = entryID
	s.jobs[name] = j
	s.order = append(s.order, name)
	return nil
}

// Start begins firing triggers. Calling it twice is a no-op with a warning.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		log.Warn().Msg("scheduler already started, ignoring")
		return
	}
	s.started = true
	s.ctx = ctx
	s.cron.Start()
	log.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
}

// Stop halts triggering and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.wg.Wait()
	log.Info().Msg("scheduler stopped")
}

// RunNow triggers a single run outside the schedule (ops surface). The
// overlap policy still applies.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return errors.Newf("unknown job %q", name)
	}
	if j.running.Load() {
		return errors.WithDetailf(ErrAlreadyRunning, "job %q", name)
	}
	go s.run(j, time.Now())
	return nil
}

// run is the task-runner boundary: overlap drop, panic recovery, error
// logging. Nothing a handler does propagates past here.
func (s *Scheduler) run(j *job, now time.Time) {
	if !j.running.CompareAndSwap(false, true) {
		log.Warn().Str("job", j.name).Msg("previous run still in flight, dropping trigger")
		return
	}
	s.wg.Add(1)
	defer func() {
		j.running.Store(false)
		s.wg.Done()
	}()

	log.Info().Str("job", j.name).Time("fired_at", now).Msg("job run started")
	start := time.Now()

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = errors.Newf("panic: %v", r)
			}
		}()
		runErr = j.handler(s.ctx, now)
	}()

	j.mu.Lock()
	j.runs++
	j.lastStart = now
	j.lastEnd = time.Now()
	if runErr != nil {
		j.lastErr = runErr.Error()
	} else {
		j.lastErr = ""
	}
	j.mu.Unlock()

	if runErr != nil {
		log.Error().Err(runErr).Str("job", j.name).Dur("took", time.Since(start)).Msg("job run failed")
		return
	}
	log.Info().Str("job", j.name).Dur("took", time.Since(start)).Msg("job run finished")
}

// Jobs returns statuses in registration order.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.order))
	for _, name := range s.order {
		j := s.jobs[name]
		j.mu.Lock()
		st := JobStatus{
			Name:      j.name,
			Spec:      j.spec,
			Running:   j.running.Load(),
			Runs:      j.runs,
			LastStart: j.lastStart,
			LastEnd:   j.lastEnd,
			LastError: j.lastErr,
		}
		j.mu.Unlock()
		if s.started {
			st.NextRun = s.cron.Entry(j.entryID).Next
		}
		out = append(out, st)
	}
	return out
}
