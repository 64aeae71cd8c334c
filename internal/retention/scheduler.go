package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"finledger/internal/slogutil"
)

// Scheduler runs an engine on a cron schedule.
type Scheduler struct {
	engine *Engine
	spec   string
	cron   *cron.Cron
	logger *slog.Logger

	// Control
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	runs    int
	last    []TableResult
}

// NewScheduler validates spec (standard five-field cron or a descriptor such
// as "@daily") and returns a stopped scheduler.
func NewScheduler(engine *Engine, spec string, logger *slog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", spec, err)
	}
	logger = slogutil.OrDiscard(logger)
	cl := cronLogger{logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		engine: engine,
		spec:   spec,
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start registers the retention job and begins the cron loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("retention scheduler already started")
	}

	if _, err := s.cron.AddFunc(s.spec, s.run); err != nil {
		return err
	}
	s.cron.Start()
	s.started = true

	s.logger.Info("Starting retention scheduler", "schedule", s.spec)
	return nil
}

// RunNow executes the policies immediately, outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) []TableResult {
	results := s.engine.Execute(ctx)
	s.record(results)
	return results
}

func (s *Scheduler) run() {
	s.logger.Info("Executing scheduled task", "task", "retention")

	startTime := time.Now()
	results := s.engine.Execute(s.ctx)
	duration := time.Since(startTime)
	s.record(results)

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		s.logger.Error("Scheduled task failed",
			"task", "retention",
			"failedTables", failed,
			"duration", duration.String(),
		)
		return
	}
	s.logger.Info("Scheduled task completed",
		"task", "retention",
		"duration", duration.String(),
	)
}

func (s *Scheduler) record(results []TableResult) {
	s.mu.Lock()
	s.runs++
	s.last = results
	s.mu.Unlock()
}

// Runs returns how many times the policies have run and the latest results.
func (s *Scheduler) Runs() (int, []TableResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.last
}

// Stop gracefully stops the scheduler, waiting up to timeout for a running job.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.logger.Info("Stopping retention scheduler")
	s.cancel()
	done := s.cron.Stop().Done()

	select {
	case <-done:
		s.logger.Info("Retention scheduler stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("retention scheduler shutdown timed out")
	}
}

// cronLogger routes cron's own logging into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
