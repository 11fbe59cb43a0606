package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/desertthunder/tubeq/internal/models"
	"github.com/desertthunder/tubeq/internal/services"
	tu "github.com/desertthunder/tubeq/internal/testing"
)

var downloadTask = models.DownloadTask{
	VideoID:     videoID,
	URL:         videoURL,
	Platform:    "youtube",
	Correlation: models.Correlation{RequesterID: "100", RequestRef: "m1"},
}

func TestWorkerPoolExecuteDownload(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the fetched artifact", func(t *testing.T) {
		path := tu.MustWriteFile(t, t.TempDir(), "abc.mp4", 10)
		h := newHarness(t, &tu.MockFetcher{Paths: map[string]string{videoURL: path}})

		result := h.pool(PoolOpts{MaxArtifactBytes: 1024}).ExecuteDownload(ctx, downloadTask)
		if result.Failed() || result.ArtifactRef != "store://youtube/abc123defgh" || result.Cached {
			t.Errorf("unexpected result %+v", result)
		}
		if result.Correlation != downloadTask.Correlation {
			t.Errorf("correlation not passed through: %+v", result.Correlation)
		}
		if puts := h.artifacts.Puts(); len(puts) != 1 || puts[0] != path {
			t.Errorf("expected artifact store to receive %s, got %v", path, puts)
		}
	})

	t.Run("oversized artifact", func(t *testing.T) {
		path := tu.MustWriteFile(t, t.TempDir(), "big.mp4", 2048)
		h := newHarness(t, &tu.MockFetcher{Paths: map[string]string{videoURL: path}})

		result := h.pool(PoolOpts{MaxArtifactBytes: 1024}).ExecuteDownload(ctx, downloadTask)
		if result.ErrorCode != models.CodeTooLarge || result.ArtifactRef != "" {
			t.Errorf("expected TOO_LARGE, got %+v", result)
		}
		if len(h.artifacts.Puts()) != 0 {
			t.Error("oversized artifacts must not be stored")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("expected oversized file to be removed")
		}
	})

	t.Run("failure mapping", func(t *testing.T) {
		tc := []struct {
			name string
			err  error
			want models.ErrorCode
		}{
			{name: "unauthorized", err: &services.FetchError{Kind: services.FetchUnauthorized, Status: 401}, want: models.CodeUnauthorized},
			{name: "unavailable", err: &services.FetchError{Kind: services.FetchUnavailable, Status: 404}, want: models.CodeNotFound},
			{name: "too large", err: &services.FetchError{Kind: services.FetchTooLarge, Status: 413}, want: models.CodeTooLarge},
			{name: "malformed", err: &services.FetchError{Kind: services.FetchMalformed, Status: 400}, want: models.CodeBadRequest},
			{name: "wrapped", err: fmt.Errorf("loader: %w", &services.FetchError{Kind: services.FetchMalformed}), want: models.CodeBadRequest},
			{name: "transport", err: errors.New("connection refused"), want: models.CodeInternalError},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				h := newHarness(t, &tu.MockFetcher{Errors: map[string]error{videoURL: tt.err}})

				result := h.pool(PoolOpts{}).ExecuteDownload(ctx, downloadTask)
				if result.ErrorCode != tt.want || result.ArtifactRef != "" {
					t.Errorf("expected %s, got %+v", tt.want, result)
				}
			})
		}
	})

	t.Run("store failure is internal", func(t *testing.T) {
		h := newHarness(t, &tu.MockFetcher{Paths: map[string]string{videoURL: "/tmp/none.mp4"}})
		h.artifacts.Err = errors.New("bucket gone")

		result := h.pool(PoolOpts{}).ExecuteDownload(ctx, downloadTask)
		if result.ErrorCode != models.CodeInternalError {
			t.Errorf("expected INTERNAL_ERROR, got %+v", result)
		}
	})

	t.Run("panic is internal", func(t *testing.T) {
		h := newHarness(t, &tu.MockFetcher{Panic: true})

		result := h.pool(PoolOpts{}).ExecuteDownload(ctx, downloadTask)
		if result.ErrorCode != models.CodeInternalError || result.VideoID != videoID {
			t.Errorf("expected INTERNAL_ERROR, got %+v", result)
		}
	})

	t.Run("timeout is internal", func(t *testing.T) {
		h := newHarness(t, &tu.MockFetcher{Block: make(chan struct{})})

		result := h.pool(PoolOpts{FetchTimeout: 20 * time.Millisecond}).ExecuteDownload(ctx, downloadTask)
		if result.ErrorCode != models.CodeInternalError {
			t.Errorf("expected INTERNAL_ERROR, got %+v", result)
		}
	})

	t.Run("unknown platform is internal", func(t *testing.T) {
		h := newHarness(t, nil)
		task := downloadTask
		task.Platform = "vimeo"

		result := h.pool(PoolOpts{}).ExecuteDownload(ctx, task)
		if result.ErrorCode != models.CodeInternalError {
			t.Errorf("expected INTERNAL_ERROR, got %+v", result)
		}
	})

	t.Run("cached video is not fetched", func(t *testing.T) {
		h := newHarness(t, nil)
		_ = h.store.SetVideoArtifact(ctx, videoKey, "/media/abc123defgh.mp4")

		result := h.pool(PoolOpts{}).ExecuteDownload(ctx, downloadTask)
		if !result.Cached || result.ArtifactRef != "/media/abc123defgh.mp4" {
			t.Errorf("expected cached result, got %+v", result)
		}
		if calls := h.fetcher.FetchCalls(); len(calls) != 0 {
			t.Errorf("expected no fetch, got %v", calls)
		}
	})
}

func TestWorkerPoolExecutePlaylist(t *testing.T) {
	ctx := context.Background()
	lease := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	task := models.PlaylistTask{PlaylistID: playlistID, Platform: "youtube", URL: listURL, Upload: true, Lease: lease}

	t.Run("lists membership", func(t *testing.T) {
		h := newHarness(t, &tu.MockFetcher{Listings: map[string][]string{listURL: {"v1", "v2"}}})

		result := h.pool(PoolOpts{}).ExecutePlaylist(ctx, task)
		if result.Failed() || len(result.VideoIDs) != 2 || !result.Upload {
			t.Errorf("unexpected result %+v", result)
		}
		if !result.Lease.Equal(lease) {
			t.Errorf("expected the task lease on the result, got %v", result.Lease)
		}
	})

	t.Run("listing failure", func(t *testing.T) {
		h := newHarness(t, &tu.MockFetcher{Errors: map[string]error{
			listURL: &services.FetchError{Kind: services.FetchUnavailable, Status: 404},
		}})

		result := h.pool(PoolOpts{}).ExecutePlaylist(ctx, task)
		if result.ErrorCode != models.CodeNotFound || result.VideoIDs != nil {
			t.Errorf("expected NOT_FOUND, got %+v", result)
		}
	})
}

func TestWorkerPoolRun(t *testing.T) {
	t.Run("bounded concurrency with queue backpressure", func(t *testing.T) {
		release := make(chan struct{})
		paths := make(map[string]string)
		for i := range 5 {
			paths[fmt.Sprintf("https://www.youtube.com/watch?v=video%06d", i)] = fmt.Sprintf("/media/%d.mp4", i)
		}
		h := newHarness(t, &tu.MockFetcher{Paths: paths, Block: release})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		for i := range 5 {
			task := downloadTask
			task.VideoID = fmt.Sprintf("video%06d", i)
			task.URL = fmt.Sprintf("https://www.youtube.com/watch?v=video%06d", i)
			if err := publishTask(ctx, h.tasks, task); err != nil {
				t.Fatalf("publishTask() error = %v", err)
			}
		}

		done := make(chan error, 1)
		go func() { done <- h.pool(PoolOpts{Concurrency: 2}).Run(ctx) }()

		eventually(t, "two fetches in flight", func() bool { return len(h.fetcher.FetchCalls()) == 2 })
		time.Sleep(20 * time.Millisecond)
		if n := h.tasks.Len(); n != 3 {
			t.Errorf("expected 3 tasks held by the queue, got %d", n)
		}

		close(release)
		eventually(t, "five answers", func() bool { return h.answers.Len() == 5 })
		if got := h.fetcher.MaxInFlight(); got > 2 {
			t.Errorf("expected at most 2 concurrent fetches, got %d", got)
		}

		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run() error = %v", err)
		}

		for _, a := range drainAnswers(t, h.answers) {
			if r := a.(models.DownloadResult); r.Failed() {
				t.Errorf("unexpected failure %+v", r)
			}
		}
	})

	t.Run("malformed tasks are dropped", func(t *testing.T) {
		h := newHarness(t, &tu.MockFetcher{Paths: map[string]string{videoURL: "/media/abc.mp4"}})
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		_ = h.tasks.Publish(ctx, []byte(`{"type":"transcode","video_id":"x"}`))
		_ = h.tasks.Publish(ctx, []byte(`not json`))
		_ = publishTask(ctx, h.tasks, downloadTask)

		done := make(chan error, 1)
		go func() { done <- h.pool(PoolOpts{Concurrency: 1}).Run(ctx) }()

		eventually(t, "one answer", func() bool { return h.answers.Len() == 1 })
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run() error = %v", err)
		}
		if h.tasks.Len() != 0 {
			t.Errorf("expected malformed tasks to be acknowledged, %d left", h.tasks.Len())
		}
	})

	t.Run("shutdown returns in-flight tasks", func(t *testing.T) {
		h := newHarness(t, &tu.MockFetcher{Block: make(chan struct{})})
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		_ = publishTask(ctx, h.tasks, downloadTask)

		done := make(chan error, 1)
		go func() { done <- h.pool(PoolOpts{}).Run(ctx) }()

		eventually(t, "fetch in flight", func() bool { return len(h.fetcher.FetchCalls()) == 1 })
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run() error = %v", err)
		}
		if h.tasks.Len() != 1 {
			t.Errorf("expected interrupted task back on the queue, got %d", h.tasks.Len())
		}
		if h.answers.Len() != 0 {
			t.Errorf("expected no answer for an interrupted task, got %d", h.answers.Len())
		}
	})

	t.Run("answer publish failure stops the pool", func(t *testing.T) {
		h := newHarness(t, &tu.MockFetcher{Paths: map[string]string{videoURL: "/media/abc.mp4"}})
		ctx := context.Background()
		_ = publishTask(ctx, h.tasks, downloadTask)

		pool := NewWorkerPool(h.tasks, failingPublisher{errBroker}, h.registry, h.store, h.artifacts, PoolOpts{}, testLogger())
		if err := pool.Run(ctx); !errors.Is(err, errBroker) {
			t.Errorf("expected broker error, got %v", err)
		}
		if h.tasks.Len() != 1 {
			t.Errorf("expected task back on the queue, got %d", h.tasks.Len())
		}
	})
}
