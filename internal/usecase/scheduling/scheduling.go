// Package scheduling runs jobs on six-field cron expressions (with seconds)
// and answers next-execution questions for them.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrNeverFires is returned for expressions that parse but match no instant,
// such as the 30th of February.
var ErrNeverFires = errors.New("expression never fires")

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse parses a six-field cron expression or a descriptor like "@daily".
func Parse(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("empty expression")
	}
	return parser.Parse(expr)
}

// NextAfter returns the first fire time of expr strictly after from.
func NextAfter(expr string, from time.Time) (time.Time, error) {
	times, err := Preview(expr, from, 1)
	if err != nil {
		return time.Time{}, err
	}
	return times[0], nil
}

// Preview returns the next n fire times of expr after from.
func Preview(expr string, from time.Time, n int) ([]time.Time, error) {
	sched, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, n)
	t := from
	for range n {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, ErrNeverFires
	}
	return out, nil
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTaskTimeout bounds each job run. The default is five minutes.
func WithTaskTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.taskTimeout = d }
}

// WithLocation sets the time zone expressions are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.location = loc }
}

// Scheduler runs jobs identified by ID.
type Scheduler struct {
	cron        *cron.Cron
	entries     map[string]cron.EntryID
	logger      *slog.Logger
	taskTimeout time.Duration
	location    *time.Location

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs only run after Start.
func NewScheduler(logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		entries:     make(map[string]cron.EntryID),
		logger:      logger,
		taskTimeout: 5 * time.Minute,
		location:    time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(
		cron.WithLocation(s.location),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})),
	)
	return s
}

// Add schedules fn under id, replacing any job already registered for id.
func (s *Scheduler) Add(id, expr string, fn func(ctx context.Context) error) error {
	sched, err := Parse(expr)
	if err != nil {
		return fmt.Errorf("scheduler: invalid expression %q for %s: %w", expr, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, exists := s.entries[id]; exists {
		s.cron.Remove(old)
	}

	logger := s.logger
	timeout := s.taskTimeout
	s.entries[id] = s.cron.Schedule(sched, cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()

		if ctx == nil {
			logger.Debug("scheduler stopped, skipping job", "id", id)
			return
		}

		jobCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		if err := fn(jobCtx); err != nil {
			logger.Warn("scheduled job failed", "id", id, "error", err, "duration", time.Since(start))
		} else {
			logger.Debug("scheduled job completed", "id", id, "duration", time.Since(start))
		}
	}))

	logger.Debug("job scheduled", "id", id, "expression", expr)
	return nil
}

// Remove unschedules id and reports whether it was scheduled.
func (s *Scheduler) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.entries[id]
	if !ok {
		return false
	}
	s.cron.Remove(entryID)
	delete(s.entries, id)
	s.logger.Debug("job removed", "id", id)
	return true
}

// Has reports whether id is scheduled.
func (s *Scheduler) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// NextRun returns the next run of id as computed by the running scheduler.
// Before Start the cron engine has not planned any run and ok is false.
func (s *Scheduler) NextRun(id string) (time.Time, bool) {
	s.mu.Lock()
	entryID, ok := s.entries[id]
	s.mu.Unlock()

	if !ok {
		return time.Time{}, false
	}
	entry := s.cron.Entry(entryID)
	if entry.ID == 0 || entry.Next.IsZero() {
		return time.Time{}, false
	}
	return entry.Next, true
}

// Start begins running jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.ctx = nil
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	return nil
}

// cronLogger adapts slog to cron.Logger so skipped overlapping runs show up.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
