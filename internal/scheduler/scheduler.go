// Package scheduler runs periodic playlist refresh passes on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tubeq/internal/shared"
	"github.com/desertthunder/tubeq/internal/tasks"
	"github.com/robfig/cron/v3"
)

// DefaultSpec refreshes every tracked playlist twice an hour.
const DefaultSpec = "@every 30m"

// Refresher triggers a refresh for every eligible playlist. [tasks.Router] implements it.
type Refresher interface {
	RefreshAll(ctx context.Context, upload bool) (*tasks.RefreshReport, error)
}

// Scheduler invokes a [Refresher] on a cron schedule.
// Overlapping passes are skipped while a previous one is still running.
type Scheduler struct {
	mu sync.Mutex

	refresher Refresher
	upload    bool
	spec      string
	schedule  cron.Schedule
	logger    *log.Logger

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New creates a Scheduler. An empty spec falls back to [DefaultSpec].
func New(spec string, refresher Refresher, upload bool, logger *log.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: refresh_spec %q: %v", shared.ErrInvalidConfig, spec, err)
	}

	return &Scheduler{
		refresher: refresher,
		upload:    upload,
		spec:      spec,
		schedule:  schedule,
		logger:    shared.WithLogger(logger, "component", "scheduler"),
	}, nil
}

// Start schedules refresh passes until ctx is cancelled or [Scheduler.Stop] is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("scheduler already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLogger{s.logger}),
		cron.WithChain(cron.Recover(cronLogger{s.logger}), cron.SkipIfStillRunning(cronLogger{s.logger})),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() {
		if _, err := s.RunOnce(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("refresh pass failed", "err", err)
		}
	}))
	c.Start()
	s.cron = c

	s.logger.Info("scheduler started", "spec", s.spec, "upload", s.upload, "next", s.schedule.Next(time.Now()).Format(time.RFC3339))

	go func(ctx context.Context) {
		<-ctx.Done()
		s.Stop()
	}(s.ctx)
	return nil
}

// Stop cancels any running pass and waits for it to return. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunOnce performs a single refresh pass immediately.
func (s *Scheduler) RunOnce(ctx context.Context) (*tasks.RefreshReport, error) {
	start := time.Now()
	report, err := s.refresher.RefreshAll(ctx, s.upload)
	if err != nil {
		return report, err
	}
	s.logger.Debug("refresh pass finished", "triggered", report.Triggered, "skipped", report.Skipped, "took", time.Since(start).Round(time.Millisecond))
	return report, nil
}

// Next returns the next activation after t.
func (s *Scheduler) Next(t time.Time) time.Time { return s.schedule.Next(t) }

// cronLogger adapts a charm logger to [cron.Logger].
type cronLogger struct{ l *log.Logger }

func (c cronLogger) Info(msg string, kv ...any) { c.l.Debug(msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error(msg, append(kv, "err", err)...)
}
