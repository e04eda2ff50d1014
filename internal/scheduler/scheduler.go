package scheduler

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

var errNoTask = errors.New("scheduler: no task configured")

// Scheduler runs a single periodic task. Restarting it replaces the running job,
// so there is never more than one active timer.
type Scheduler struct {
	interval time.Duration
	task     func()
	logger   *slog.Logger

	mu   sync.Mutex
	cron *gocron.Scheduler
	job  *gocron.Job
}

// New creates a new Scheduler. The first run happens one interval after Start.
func New(interval time.Duration, task func(), logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{interval: interval, task: task, logger: logger}
}

// Start schedules the periodic job, cancelling any job scheduled by a previous Start.
func (s *Scheduler) Start() error {
	if s.task == nil {
		return errNoTask
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		s.cron = gocron.NewScheduler(time.UTC)
	}
	if s.job != nil {
		s.cron.RemoveByReference(s.job)
		s.job = nil
		s.logger.Debug("scheduler: replaced existing refresh job")
	}

	job, err := s.cron.Every(s.interval).WaitForSchedule().SingletonMode().Do(s.task)
	if err != nil {
		return err
	}
	s.job = job

	if !s.cron.IsRunning() {
		s.cron.StartAsync()
	}
	return nil
}

// Stop cancels the job and stops the underlying scheduler. It is safe to call
// when the scheduler was never started.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}
	if s.job != nil {
		s.cron.RemoveByReference(s.job)
		s.job = nil
	}
	s.cron.Stop()
	s.cron = nil
}

// Len returns the number of active periodic jobs (0 or 1).
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return 0
	}
	return s.cron.Len()
}

// Interval is the period between runs.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}
