package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tubeq/internal/models"
	"github.com/desertthunder/tubeq/internal/queue"
	"github.com/desertthunder/tubeq/internal/services"
	"github.com/desertthunder/tubeq/internal/shared"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// PoolOpts contains configuration for a [WorkerPool].
type PoolOpts struct {
	Concurrency      int           // Execution slots (default: 3)
	FetchTimeout     time.Duration // Per fetch or listing call (default: 20m)
	MaxArtifactBytes int64         // Size ceiling of a fetched file (0: unlimited)
	RateLimit        float64       // Tasks started per second (0: unlimited)
}

// WorkerPool executes tasks from the task queue and publishes their answers.
type WorkerPool struct {
	tasks    queue.Consumer
	answers  queue.Publisher
	fetchers FetcherSource
	videos   VideoLookup
	store    services.ArtifactStore
	limiter  *rate.Limiter
	opts     PoolOpts
	logger   *log.Logger
}

// NewWorkerPool creates a pool. videos may be nil, in which case the cached-artifact guard is skipped.
func NewWorkerPool(
	tasks queue.Consumer,
	answers queue.Publisher,
	fetchers FetcherSource,
	videos VideoLookup,
	store services.ArtifactStore,
	opts PoolOpts,
	logger *log.Logger,
) *WorkerPool {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 20 * time.Minute
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	return &WorkerPool{
		tasks:    tasks,
		answers:  answers,
		fetchers: fetchers,
		videos:   videos,
		store:    store,
		limiter:  limiter,
		opts:     opts,
		logger:   shared.WithLogger(logger, "component", "worker"),
	}
}

// Run consumes tasks until ctx ends or the task queue is closed, running at most Concurrency at once.
//
// A slot is taken before a task is consumed, so tasks wait in the queue while every slot is busy.
// Run returns nil on shutdown and the first broker failure otherwise; in-flight tasks are awaited.
func (p *WorkerPool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	slots := make(chan struct{}, p.opts.Concurrency)

	g.Go(func() error {
		for {
			select {
			case slots <- struct{}{}:
			case <-gctx.Done():
				return nil
			}

			d, err := p.tasks.Consume(gctx)
			if err != nil {
				<-slots
				if gctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
					return nil
				}
				return fmt.Errorf("failed to consume task: %w", err)
			}

			if err := p.limiter.Wait(gctx); err != nil {
				<-slots
				return settle(d.Nack(context.WithoutCancel(gctx)))
			}

			g.Go(func() error {
				defer func() { <-slots }()
				return p.handle(gctx, d)
			})
		}
	})

	p.logger.Info("worker pool started", "slots", p.opts.Concurrency)
	err := g.Wait()
	p.logger.Info("worker pool stopped")
	return err
}

func settle(err error) error {
	if err != nil {
		return fmt.Errorf("failed to settle delivery: %w", err)
	}
	return nil
}

// handle runs one delivery to completion. Only broker failures are returned.
func (p *WorkerPool) handle(ctx context.Context, d *queue.Delivery) error {
	settleCtx := context.WithoutCancel(ctx)

	task, err := models.DecodeTask(d.Body)
	if err != nil {
		p.logger.Error("dropping malformed task", "err", err)
		return settle(d.Ack(settleCtx))
	}

	answer := p.Execute(ctx, task)
	if ctx.Err() != nil {
		p.logger.Warn("task interrupted, returning it to the queue", "type", task.TaskType())
		return settle(d.Nack(settleCtx))
	}

	if err := publishAnswer(settleCtx, p.answers, answer); err != nil {
		return errors.Join(err, settle(d.Nack(settleCtx)))
	}
	return settle(d.Ack(settleCtx))
}

// Execute runs a task and returns its answer. It never fails: every error becomes an error code.
func (p *WorkerPool) Execute(ctx context.Context, task models.Task) models.Answer {
	switch t := task.(type) {
	case models.DownloadTask:
		return p.ExecuteDownload(ctx, t)
	case models.PlaylistTask:
		return p.ExecutePlaylist(ctx, t)
	default:
		panic(fmt.Sprintf("unhandled task type %T", task))
	}
}

// ExecuteDownload fetches a video and keeps its artifact.
//
// A video that is already cached is answered from the repository without a fetch. Fetch failures
// map through [services.ErrorCode]; timeouts, store failures and panics are internal errors.
func (p *WorkerPool) ExecuteDownload(ctx context.Context, t models.DownloadTask) (result models.DownloadResult) {
	logger := p.logger.With("platform", t.Platform, "video_id", t.VideoID)
	result = models.DownloadResult{
		VideoID:     t.VideoID,
		Platform:    t.Platform,
		URL:         t.URL,
		Correlation: t.Correlation,
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("download panicked", "panic", r)
			result.ArtifactRef = ""
			result.Cached = false
			result.ErrorCode = models.CodeInternalError
		}
	}()

	if video, ok := p.cached(ctx, t.Key()); ok {
		logger.Info("video already cached")
		result.ArtifactRef = video.ArtifactRef
		result.Cached = true
		return result
	}

	start := time.Now()
	ref, err := p.download(ctx, t)
	if err != nil {
		result.ErrorCode = services.ErrorCode(err)
		logger.Warn("download failed", "error_code", result.ErrorCode, "err", err)
		return result
	}

	result.ArtifactRef = ref
	logger.Info("download complete", "artifact", ref, "took", time.Since(start).Round(time.Millisecond))
	return result
}

func (p *WorkerPool) cached(ctx context.Context, key models.VideoKey) (*models.Video, bool) {
	if p.videos == nil {
		return nil, false
	}

	video, err := p.videos.GetVideo(ctx, key)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			p.logger.Warn("cache lookup failed, fetching anyway", "video_id", key.ID, "err", err)
		}
		return nil, false
	}
	return video, video.Cached()
}

func (p *WorkerPool) download(ctx context.Context, t models.DownloadTask) (string, error) {
	fetcher, err := p.fetchers.Fetcher(t.Platform)
	if err != nil {
		return "", err
	}

	fctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()

	path, err := fetcher.Fetch(fctx, t.URL)
	if err != nil {
		if errors.Is(fctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: fetch of %s: %v", shared.ErrTimeout, t.URL, err)
		}
		return "", err
	}

	if err := p.checkSize(path); err != nil {
		_ = os.Remove(path)
		return "", err
	}

	ref, err := p.store.Put(ctx, t.Key(), path)
	if err != nil {
		return "", fmt.Errorf("failed to store artifact: %w", err)
	}
	return ref, nil
}

func (p *WorkerPool) checkSize(path string) error {
	if p.opts.MaxArtifactBytes <= 0 {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat artifact: %w", err)
	}
	if info.Size() > p.opts.MaxArtifactBytes {
		return &services.FetchError{
			Kind: services.FetchTooLarge,
			Msg:  fmt.Sprintf("%d bytes exceeds the %d byte ceiling", info.Size(), p.opts.MaxArtifactBytes),
		}
	}
	return nil
}

// ExecutePlaylist lists the current membership of a playlist. Diffing is left to the answer processor.
func (p *WorkerPool) ExecutePlaylist(ctx context.Context, t models.PlaylistTask) (result models.PlaylistResult) {
	logger := p.logger.With("platform", t.Platform, "playlist_id", t.PlaylistID)
	result = models.PlaylistResult{PlaylistID: t.PlaylistID, Platform: t.Platform, Upload: t.Upload, Lease: t.Lease}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("listing panicked", "panic", r)
			result.VideoIDs = nil
			result.ErrorCode = models.CodeInternalError
		}
	}()

	fetcher, err := p.fetchers.Fetcher(t.Platform)
	if err != nil {
		result.ErrorCode = services.ErrorCode(err)
		logger.Warn("listing failed", "error_code", result.ErrorCode, "err", err)
		return result
	}

	fctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()

	ids, err := fetcher.List(fctx, t.URL)
	if err != nil {
		result.ErrorCode = services.ErrorCode(err)
		logger.Warn("listing failed", "error_code", result.ErrorCode, "err", err)
		return result
	}

	result.VideoIDs = ids
	logger.Info("playlist listed", "videos", len(ids))
	return result
}
