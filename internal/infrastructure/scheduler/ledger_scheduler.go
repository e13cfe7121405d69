package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Task is one periodic sweep run by the LedgerScheduler
type Task struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run. Zero means the interval.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// LedgerSchedulerConfig holds configuration for the ledger scheduler
type LedgerSchedulerConfig struct {
	// Enabled determines if the scheduler is active
	Enabled bool

	// RunOnStart runs every task once immediately instead of waiting a full interval
	RunOnStart bool
}

// DefaultLedgerSchedulerConfig returns default configuration
func DefaultLedgerSchedulerConfig() LedgerSchedulerConfig {
	return LedgerSchedulerConfig{
		Enabled:    true,
		RunOnStart: false,
	}
}

// TaskStatus is the outcome of the last run of a task
type TaskStatus struct {
	Name      string        `json:"name"`
	Runs      int64         `json:"runs"`
	Failures  int64         `json:"failures"`
	LastRunAt time.Time     `json:"last_run_at"`
	LastError string        `json:"last_error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// LedgerScheduler runs the ledger's periodic sweeps, each task on its own
// ticker. Runs of one task never overlap.
type LedgerScheduler struct {
	config  LedgerSchedulerConfig
	tasks   []Task
	logger  *zap.Logger
	metrics *telemetry.LedgerMetrics

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	statusMu sync.Mutex
	status   map[string]*TaskStatus
}

// NewLedgerScheduler creates a new scheduler for tasks
func NewLedgerScheduler(config LedgerSchedulerConfig, logger *zap.Logger, tasks ...Task) (*LedgerScheduler, error) {
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.Name == "" || t.Run == nil || t.Interval <= 0 {
			return nil, fmt.Errorf("%w: task %q needs a name, a run function and a positive interval", ErrInvalidConfig, t.Name)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("%w: duplicate task %q", ErrInvalidConfig, t.Name)
		}
		seen[t.Name] = true
	}

	status := make(map[string]*TaskStatus, len(tasks))
	for _, t := range tasks {
		status[t.Name] = &TaskStatus{Name: t.Name}
	}
	return &LedgerScheduler{
		config: config,
		tasks:  tasks,
		logger: logger,
		status: status,
	}, nil
}

// SetMetrics sets the metrics recorder for task runs
func (s *LedgerScheduler) SetMetrics(metrics *telemetry.LedgerMetrics) {
	s.metrics = metrics
}

// Start starts one loop per task
func (s *LedgerScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Ledger scheduler is disabled")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	names := make([]string, 0, len(s.tasks))
	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, t)
		names = append(names, t.Name)
	}

	s.logger.Info("Ledger scheduler started",
		zap.Strings("tasks", names),
		zap.Bool("run_on_start", s.config.RunOnStart),
	)
	return nil
}

// Stop gracefully stops the scheduler, waiting for in-flight runs
func (s *LedgerScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Ledger scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Ledger scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the scheduler is running
func (s *LedgerScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// RunNow runs the named task once on the caller's goroutine
func (s *LedgerScheduler) RunNow(ctx context.Context, name string) error {
	for _, t := range s.tasks {
		if t.Name == name {
			return s.runTask(ctx, t)
		}
	}
	return fmt.Errorf("%w: %s", ErrJobNotFound, name)
}

// Status returns a snapshot of every task's last run
func (s *LedgerScheduler) Status() []TaskStatus {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	out := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *s.status[t.Name])
	}
	return out
}

func (s *LedgerScheduler) loop(ctx context.Context, t Task) {
	defer s.wg.Done()

	if s.config.RunOnStart {
		_ = s.runTask(ctx, t)
	}

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Scheduler task stopping", zap.String("task", t.Name))
			return
		case <-ticker.C:
			_ = s.runTask(ctx, t)
		}
	}
}

func (s *LedgerScheduler) runTask(ctx context.Context, t Task) (err error) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = t.Interval
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.Name, r)
		}
		s.record(t.Name, start, err)
		s.metrics.JobRun(ctx, t.Name, err)
		if err != nil {
			s.logger.Error("Scheduled task failed",
				zap.String("task", t.Name),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
		}
	}()

	return t.Run(runCtx)
}

func (s *LedgerScheduler) record(name string, start time.Time, err error) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	st := s.status[name]
	st.Runs++
	st.LastRunAt = start
	st.Duration = time.Since(start)
	st.LastError = ""
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
	}
}
