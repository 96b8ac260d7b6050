// Package schedule runs periodic background tasks on cron expressions.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Task is a unit of scheduled work.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to Task.
type TaskFunc struct {
	TaskName string
	Fn       func(ctx context.Context) error
}

func (t TaskFunc) Name() string                  { return t.TaskName }
func (t TaskFunc) Run(ctx context.Context) error { return t.Fn(ctx) }

// Scheduler runs tasks on standard five-field cron specs. A run that is
// still going when its next tick fires causes that tick to be skipped.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	logger *slog.Logger
}

// New creates a stopped Scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		cron:   cron.New(cron.WithParser(parser)),
		ctx:    context.Background(),
		logger: logger.With("component", "scheduler"),
	}
}

// Add registers task under spec.
func (s *Scheduler) Add(spec string, task Task) error {
	if _, err := s.cron.AddFunc(spec, s.wrap(task, spec)); err != nil {
		return fmt.Errorf("schedule %s: %w", task.Name(), err)
	}
	s.logger.Info("Task scheduled", "task", task.Name(), "spec", spec)
	return nil
}

// Start begins running tasks. Runs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
}

// Stop prevents new runs and waits for running ones to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) wrap(task Task, spec string) func() {
	var running atomic.Bool
	return func() {
		log := s.logger.With("task", task.Name(), "spec", spec)
		if !running.CompareAndSwap(false, true) {
			log.Info("Task skipped, previous run still going")
			return
		}
		defer running.Store(false)

		start := time.Now()
		if err := task.Run(s.ctx); err != nil {
			log.Error("Task failed", "error", err, "duration", time.Since(start))
			return
		}
		log.Info("Task finished", "duration", time.Since(start))
	}
}
