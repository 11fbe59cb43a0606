package tasks

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tubeq/internal/models"
	"github.com/desertthunder/tubeq/internal/queue"
	"github.com/desertthunder/tubeq/internal/repositories"
	"github.com/desertthunder/tubeq/internal/services"
	"github.com/desertthunder/tubeq/internal/shared"
	tu "github.com/desertthunder/tubeq/internal/testing"
)

const (
	videoID    = "abc123defgh"
	videoURL   = "https://www.youtube.com/watch?v=abc123defgh"
	playlistID = "PL1"
	listURL    = "https://www.youtube.com/playlist?list=PL1"
)

var (
	videoKey    = models.VideoKey{Platform: "youtube", ID: videoID}
	playlistKey = models.PlaylistKey{Platform: "youtube", ID: playlistID}
	alice       = Requester{ID: "100", Ref: "m1"}
)

// harness wires every pipeline component against in-memory sqlite and queues.
type harness struct {
	store     *repositories.Store
	registry  *services.Registry
	fetcher   *tu.MockFetcher
	notifier  *tu.MockNotifier
	artifacts *tu.MockStore
	tasks     *queue.MemoryQueue
	answers   *queue.MemoryQueue
	now       time.Time
}

func newHarness(t *testing.T, fetcher *tu.MockFetcher) *harness {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	if fetcher == nil {
		fetcher = &tu.MockFetcher{}
	}
	youtube, err := services.NewPlatform("youtube", shared.DefaultConfig().Platforms["youtube"], fetcher)
	if err != nil {
		t.Fatalf("failed to build platform: %v", err)
	}

	return &harness{
		store:     repositories.NewStore(db),
		registry:  services.NewRegistry(youtube),
		fetcher:   fetcher,
		notifier:  &tu.MockNotifier{},
		artifacts: &tu.MockStore{},
		tasks:     queue.NewMemoryQueue("tasks"),
		answers:   queue.NewMemoryQueue("answers"),
		now:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (h *harness) router(lease time.Duration) *Router {
	opts := RouterOpts{Lease: lease, Now: func() time.Time { return h.now }}
	return NewRouter(h.store, h.registry, h.tasks, h.answers, opts, testLogger())
}

func (h *harness) pool(opts PoolOpts) *WorkerPool {
	return NewWorkerPool(h.tasks, h.answers, h.registry, h.store, h.artifacts, opts, testLogger())
}

func (h *harness) processor() *AnswerProcessor {
	return NewAnswerProcessor(h.store, h.registry, h.answers, h.tasks, h.notifier, testLogger())
}

func testLogger() *log.Logger { return shared.NewLogger(io.Discard) }

// drainTasks consumes and acknowledges every queued task.
func drainTasks(t *testing.T, q *queue.MemoryQueue) []models.Task {
	t.Helper()

	var out []models.Task
	for q.Len() > 0 {
		d, err := q.Consume(context.Background())
		if err != nil {
			t.Fatalf("Consume() error = %v", err)
		}
		task, err := models.DecodeTask(d.Body)
		if err != nil {
			t.Fatalf("DecodeTask() error = %v", err)
		}
		_ = d.Ack(context.Background())
		out = append(out, task)
	}
	return out
}

// drainAnswers consumes and acknowledges every queued answer.
func drainAnswers(t *testing.T, q *queue.MemoryQueue) []models.Answer {
	t.Helper()

	var out []models.Answer
	for q.Len() > 0 {
		d, err := q.Consume(context.Background())
		if err != nil {
			t.Fatalf("Consume() error = %v", err)
		}
		answer, err := models.DecodeAnswer(d.Body)
		if err != nil {
			t.Fatalf("DecodeAnswer() error = %v", err)
		}
		_ = d.Ack(context.Background())
		out = append(out, answer)
	}
	return out
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func mustPlaylist(t *testing.T, h *harness, key models.PlaylistKey) *models.Playlist {
	t.Helper()

	p, err := h.store.GetPlaylist(context.Background(), key)
	if err != nil {
		t.Fatalf("GetPlaylist() error = %v", err)
	}
	return p
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, []byte) error { return f.err }

var errBroker = errors.New("broker down")
