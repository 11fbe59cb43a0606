package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tubeq/internal/queue"
	"github.com/desertthunder/tubeq/internal/repositories"
	"github.com/desertthunder/tubeq/internal/services"
	"github.com/desertthunder/tubeq/internal/shared"
	"github.com/desertthunder/tubeq/internal/tasks"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// pipeline is every component a command may need, built from the loaded config.
type pipeline struct {
	config    *shared.Config
	db        *sql.DB
	store     *repositories.Store
	registry  *services.Registry
	redis     *redis.Client
	taskQ     queue.Queue
	answerQ   queue.Queue
	tasks     *queue.CountedQueue
	answers   *queue.CountedQueue
	artifacts services.ArtifactStore
	notifier  services.Notifier
	router    *tasks.Router
	logger    *log.Logger
}

// openPipeline connects the database, broker and artifact store selected by the config.
func (r *Runner) openPipeline(ctx context.Context) (_ *pipeline, err error) {
	cfg := r.config
	p := &pipeline{config: cfg, logger: r.logger}
	defer func() {
		if err != nil {
			p.Close()
		}
	}()

	if p.db, err = shared.NewDatabase(cfg.Database.Path); err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(p.db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err = shared.RunMigrations(p.db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	p.store = repositories.NewStore(p.db)

	if p.registry, err = services.RegistryFromConfig(cfg.Platforms, r.httpClient); err != nil {
		return nil, err
	}

	if err = p.openQueues(ctx); err != nil {
		return nil, err
	}
	if p.artifacts, err = newArtifactStore(ctx, cfg.Storage); err != nil {
		return nil, err
	}
	p.notifier = newNotifier(cfg.Notifier, r.logger)

	p.router = tasks.NewRouter(p.store, p.registry, p.tasks, p.answers, tasks.RouterOpts{Lease: cfg.Scheduler.RefreshLease}, r.logger)
	return p, nil
}

func (p *pipeline) openQueues(ctx context.Context) error {
	qc := p.config.Queue
	switch qc.Backend {
	case "redis":
		client, err := queue.NewRedisClient(ctx, qc.RedisURL)
		if err != nil {
			return err
		}
		p.redis = client
		p.taskQ = queue.NewRedisQueue(client, qc.TaskQueue, qc.PollTimeout)
		p.answerQ = queue.NewRedisQueue(client, qc.AnswerQueue, qc.PollTimeout)
	default:
		p.taskQ = queue.NewMemoryQueue(qc.TaskQueue)
		p.answerQ = queue.NewMemoryQueue(qc.AnswerQueue)
	}
	p.tasks = queue.NewCountedQueue(p.taskQ)
	p.answers = queue.NewCountedQueue(p.answerQ)
	return nil
}

func newArtifactStore(ctx context.Context, cfg shared.StorageConfig) (services.ArtifactStore, error) {
	if cfg.Backend == "minio" {
		return services.NewMinioStore(ctx, cfg.Minio)
	}
	return services.NewLocalStore(cfg.MediaDir), nil
}

func newNotifier(cfg shared.NotifierConfig, logger *log.Logger) services.Notifier {
	if cfg.WebhookURL == "" {
		return services.NewLogNotifier(shared.WithLogger(logger, "component", "notifier"))
	}
	return services.NewWebhookNotifier(cfg.WebhookURL, &http.Client{Timeout: cfg.Timeout})
}

// inProcess reports whether the queues only exist inside this process.
func (p *pipeline) inProcess() bool { return p.config.Queue.Backend != "redis" }

func (p *pipeline) workerPool() *tasks.WorkerPool {
	wc := p.config.Worker
	return tasks.NewWorkerPool(p.tasks, p.answers, p.registry, p.store, p.artifacts, tasks.PoolOpts{
		Concurrency:      wc.Concurrency,
		FetchTimeout:     wc.FetchTimeout,
		MaxArtifactBytes: wc.MaxArtifactMB << 20,
		RateLimit:        wc.RateLimit,
	}, p.logger)
}

func (p *pipeline) answerProcessor() *tasks.AnswerProcessor {
	return tasks.NewAnswerProcessor(p.store, p.registry, p.answers, p.tasks, p.notifier, p.logger)
}

// recoverQueues returns deliveries orphaned by a crashed consumer to the head of their queue,
// then logs the backlog each consumer starts with. Only the process that consumes a queue should
// recover it.
func (p *pipeline) recoverQueues(ctx context.Context, queues ...queue.Queue) error {
	for _, q := range queues {
		if rec, ok := q.(queue.Recoverer); ok && p.config.Queue.RecoverOnStart {
			n, err := rec.Recover(ctx)
			if err != nil {
				return fmt.Errorf("failed to recover %s: %w", q.Name(), err)
			}
			if n > 0 {
				p.logger.Info("recovered unacknowledged messages", "queue", q.Name(), "count", n)
			}
		}

		if b, ok := q.(queue.Backlog); ok {
			n, err := b.Len(ctx)
			if err != nil {
				return fmt.Errorf("failed to read backlog of %s: %w", q.Name(), err)
			}
			p.logger.Info("queue backlog", "queue", q.Name(), "pending", n)
		}
	}
	return nil
}

// runInline runs fn against the pipeline. With in-process queues the worker pool and the
// answer processor run alongside it until every published message has been acknowledged.
func (p *pipeline) runInline(ctx context.Context, fn func(context.Context) error) error {
	if !p.inProcess() {
		return fn(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.workerPool().Run(gctx) })
	g.Go(func() error { return p.answerProcessor().Run(gctx) })

	err := fn(gctx)
	if err == nil {
		p.waitIdle(gctx)
	}
	cancel()
	return errors.Join(err, g.Wait())
}

// waitIdle blocks until both queues are idle or ctx ends.
func (p *pipeline) waitIdle(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for !p.tasks.Idle() || !p.answers.Idle() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close releases every open connection.
func (p *pipeline) Close() error {
	var errs []error
	for _, q := range []queue.Queue{p.taskQ, p.answerQ} {
		if q != nil {
			errs = append(errs, q.Close())
		}
	}
	if p.redis != nil {
		errs = append(errs, p.redis.Close())
	}
	if p.db != nil {
		errs = append(errs, p.db.Close())
	}
	return errors.Join(errs...)
}
