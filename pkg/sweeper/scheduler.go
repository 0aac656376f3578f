package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Config controls scheduled sweeps.
type Config struct {
	// Schedule is a cron expression or descriptor for expiry sweeps.
	// Example: "@every 1h", "0 * * * *".
	Schedule string

	// StatsSchedule is the cron expression for statistics logging.
	// Empty disables it.
	StatsSchedule string

	// InitialDelay runs a first sweep this long after Start. Zero disables
	// the initial sweep.
	InitialDelay time.Duration
}

// DefaultConfig returns an hourly sweep, statistics every 30 minutes and
// an initial sweep one minute after start.
func DefaultConfig() Config {
	return Config{
		Schedule:      "@every 1h",
		StatsSchedule: "@every 30m",
		InitialDelay:  time.Minute,
	}
}

// Scheduler runs a Sweeper on a cron schedule. It may be started again
// after Stop; every Start registers its jobs on a fresh cron runner.
type Scheduler struct {
	sweeper *Sweeper
	config  Config
	mu      sync.Mutex
	cron    *cron.Cron
	logger  *slog.Logger
	running bool
	stop    chan struct{}
	done    chan struct{}
	sweepID cron.EntryID
}

// NewScheduler creates a scheduler. Overlapping runs of the same job are
// skipped.
func NewScheduler(sweeper *Sweeper, config Config) *Scheduler {
	return &Scheduler{
		sweeper: sweeper,
		config:  config,
		logger:  slog.Default().With("component", "sweeper.scheduler"),
	}
}

// Start registers the jobs and starts the cron runner. The scheduler stops
// when ctx is canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.config.Schedule == "" {
		return fmt.Errorf("sweep schedule is empty")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	id, err := c.AddFunc(s.config.Schedule, func() { s.runSweep(ctx) })
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.config.Schedule, err)
	}
	if s.config.StatsSchedule != "" {
		if _, err := c.AddFunc(s.config.StatsSchedule, func() { s.runStats(ctx) }); err != nil {
			return fmt.Errorf("invalid stats schedule %q: %w", s.config.StatsSchedule, err)
		}
	}

	c.Start()
	s.cron = c
	s.sweepID = id
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	s.logger.Info("sweeper started",
		"schedule", s.config.Schedule,
		"stats_schedule", s.config.StatsSchedule,
		"initial_delay", s.config.InitialDelay,
	)

	go s.supervise(ctx, s.stop, s.done)
	return nil
}

// supervise runs the initial sweep and halts the scheduler when ctx ends.
// It closes done on return.
func (s *Scheduler) supervise(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	if s.config.InitialDelay > 0 {
		timer := time.NewTimer(s.config.InitialDelay)
		select {
		case <-timer.C:
			s.runSweep(ctx)
		case <-ctx.Done():
			timer.Stop()
		case <-stop:
			timer.Stop()
			return
		}
	}

	select {
	case <-ctx.Done():
		s.halt()
	case <-stop:
	}
}

func (s *Scheduler) runSweep(ctx context.Context) {
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.logger.Error("scheduled sweep failed", "error", err)
	}
}

func (s *Scheduler) runStats(ctx context.Context) {
	if _, err := s.sweeper.Stats(ctx); err != nil {
		s.logger.Error("failed to collect bin statistics", "error", err)
	}
}

// Stop stops the scheduler and waits for running jobs, including a
// pending initial sweep, to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	s.halt()
	if done != nil {
		<-done
	}
}

// halt stops the cron runner without waiting for the supervisor.
func (s *Scheduler) halt() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	c := s.cron
	s.mu.Unlock()

	<-c.Stop().Done()
	s.logger.Info("sweeper stopped")
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled sweep time.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}
	entry := s.cron.Entry(s.sweepID)
	if !entry.Valid() || entry.Next.IsZero() {
		return nil
	}
	next := entry.Next
	return &next
}
