package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/tubeq/internal/queue"
	"github.com/desertthunder/tubeq/internal/scheduler"
	"github.com/desertthunder/tubeq/internal/server"
	"github.com/desertthunder/tubeq/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// Serve runs the HTTP API and the answer processor, plus the scheduler and, when requested
// or required by the queue backend, the worker pool. It returns once every component stopped.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := r.openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	workers := cmd.Bool("workers")
	if !workers && p.inProcess() {
		r.logger.Info("memory queue backend, running workers in process")
		workers = true
	}

	consumed := []queue.Queue{p.answerQ}
	if workers {
		consumed = append(consumed, p.taskQ)
	}
	if err := p.recoverQueues(ctx, consumed...); err != nil {
		return err
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.answerProcessor().Run(gctx) })
	if workers {
		g.Go(func() error { return p.workerPool().Run(gctx) })
	}

	if r.config.Scheduler.Enabled && !cmd.Bool("no-scheduler") {
		sched, err := scheduler.New(r.config.Scheduler.RefreshSpec, p.router, r.config.Scheduler.Upload, r.logger)
		if err != nil {
			ln.Close()
			return err
		}
		if err := sched.Start(gctx); err != nil {
			ln.Close()
			return err
		}
		defer sched.Stop()
	}

	router := server.NewBasicRouter()
	router.Use(server.RequestID, server.Recover(r.logger), server.Logging(r.logger))
	router.Handler(server.NewAPI(p.router, r.logger))
	r.logger.Debug("registered routes", "routes", router.Routes())

	g.Go(func() error { return server.Serve(gctx, ln, router, r.logger) })
	return g.Wait()
}

// Worker runs a worker pool against a shared broker until interrupted.
func (r *Runner) Worker(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if n := cmd.Int("concurrency"); n > 0 {
		r.config.Worker.Concurrency = int(n)
	}

	p, err := r.openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	if p.inProcess() {
		return fmt.Errorf("%w: worker needs a shared queue backend, use serve --workers with the memory backend", shared.ErrInvalidConfig)
	}
	if err := p.recoverQueues(ctx, p.taskQ); err != nil {
		return err
	}
	return p.workerPool().Run(ctx)
}
