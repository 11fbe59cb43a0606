package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/tubeq/internal/models"
	"github.com/desertthunder/tubeq/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

var (
	videoKey    = models.VideoKey{Platform: "youtube", ID: "dQw4w9WgXcQ"}
	playlistKey = models.PlaylistKey{Platform: "youtube", ID: "PL123"}
)

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(ctx, db, "videos")
		if err != nil {
			t.Fatalf("NextSequence() error = %v", err)
		}
		if got != want {
			t.Errorf("NextSequence() = %d, want %d", got, want)
		}
	}

	if _, err := NextSequence(ctx, db, "missing"); err == nil {
		t.Error("expected error for a table without a sequence")
	}
}

func TestVideoRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Get NotFound", func(t *testing.T) {
		repo := NewVideoRepository(setupTestDB(t))

		_, err := repo.Get(ctx, videoKey)
		if !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("GetOrCreate", func(t *testing.T) {
		repo := NewVideoRepository(setupTestDB(t))

		video, created, err := repo.GetOrCreate(ctx, videoKey)
		if err != nil {
			t.Fatalf("failed to create video: %v", err)
		}
		if !created {
			t.Error("first call should create the video")
		}
		if video.Cached() {
			t.Error("placeholder should not be cached")
		}
		if video.Sequence != 1 {
			t.Errorf("expected sequence 1, got %d", video.Sequence)
		}

		again, created, err := repo.GetOrCreate(ctx, videoKey)
		if err != nil {
			t.Fatalf("failed to get video: %v", err)
		}
		if created {
			t.Error("second call should not create the video")
		}
		if again.Sequence != video.Sequence {
			t.Errorf("expected the same row, got sequence %d", again.Sequence)
		}
	})

	t.Run("GetOrCreate ValidationError", func(t *testing.T) {
		repo := NewVideoRepository(setupTestDB(t))

		if _, _, err := repo.GetOrCreate(ctx, models.VideoKey{Platform: "youtube"}); err == nil {
			t.Fatal("expected validation error for empty id")
		}
	})

	t.Run("SetArtifact", func(t *testing.T) {
		repo := NewVideoRepository(setupTestDB(t))

		if err := repo.SetArtifact(ctx, videoKey, "s3://tubeq/videos/a.mp4"); err != nil {
			t.Fatalf("failed to set artifact: %v", err)
		}

		video, err := repo.Get(ctx, videoKey)
		if err != nil {
			t.Fatalf("failed to get video: %v", err)
		}
		if !video.Cached() || video.ArtifactRef != "s3://tubeq/videos/a.mp4" {
			t.Errorf("expected cached artifact, got %q", video.ArtifactRef)
		}

		if err := repo.SetArtifact(ctx, videoKey, ""); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for empty artifact, got %v", err)
		}
	})

	t.Run("SetArtifact keeps placeholder row", func(t *testing.T) {
		repo := NewVideoRepository(setupTestDB(t))

		placeholder, _, err := repo.GetOrCreate(ctx, videoKey)
		if err != nil {
			t.Fatalf("failed to create placeholder: %v", err)
		}
		if err := repo.SetArtifact(ctx, videoKey, "/media/a.mp4"); err != nil {
			t.Fatalf("failed to set artifact: %v", err)
		}

		video, err := repo.Get(ctx, videoKey)
		if err != nil {
			t.Fatalf("failed to get video: %v", err)
		}
		if video.Sequence != placeholder.Sequence || video.ArtifactRef != "/media/a.mp4" {
			t.Errorf("expected placeholder sequence %d with the artifact, got %+v", placeholder.Sequence, video)
		}
	})

	t.Run("GetOrCreate concurrent callers agree", func(t *testing.T) {
		repo := NewVideoRepository(setupTestDB(t))

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, ok, err := repo.GetOrCreate(ctx, videoKey)
				if err != nil {
					t.Errorf("GetOrCreate() error = %v", err)
					return
				}
				if ok {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if created != 1 {
			t.Errorf("expected exactly one creator, got %d", created)
		}
	})
}

func TestPlaylistRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("GetOrCreate", func(t *testing.T) {
		repo := NewPlaylistRepository(setupTestDB(t))

		playlist, created, err := repo.GetOrCreate(ctx, playlistKey)
		if err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		if !created || playlist.Updating {
			t.Errorf("expected a new idle playlist, got created=%v updating=%v", created, playlist.Updating)
		}

		_, created, err = repo.GetOrCreate(ctx, playlistKey)
		if err != nil {
			t.Fatalf("failed to get playlist: %v", err)
		}
		if created {
			t.Error("second call should not create the playlist")
		}
	})

	t.Run("TryMarkUpdating", func(t *testing.T) {
		repo := NewPlaylistRepository(setupTestDB(t))
		if _, _, err := repo.GetOrCreate(ctx, playlistKey); err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}

		won, err := repo.TryMarkUpdating(ctx, playlistKey, now, time.Time{})
		if err != nil {
			t.Fatalf("TryMarkUpdating() error = %v", err)
		}
		if !won {
			t.Fatal("expected to acquire an idle playlist")
		}

		won, err = repo.TryMarkUpdating(ctx, playlistKey, now.Add(time.Minute), time.Time{})
		if err != nil {
			t.Fatalf("TryMarkUpdating() error = %v", err)
		}
		if won {
			t.Error("expected second trigger to be a no-op while updating")
		}

		playlist, err := repo.Get(ctx, playlistKey)
		if err != nil {
			t.Fatalf("failed to get playlist: %v", err)
		}
		if !playlist.Updating || playlist.UpdatingSince == nil || !playlist.UpdatingSince.Equal(now) {
			t.Errorf("expected updating since %s, got %v %v", now, playlist.Updating, playlist.UpdatingSince)
		}
	})

	t.Run("TryMarkUpdating steals stale lease", func(t *testing.T) {
		repo := NewPlaylistRepository(setupTestDB(t))
		if _, _, err := repo.GetOrCreate(ctx, playlistKey); err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		if _, err := repo.TryMarkUpdating(ctx, playlistKey, now, time.Time{}); err != nil {
			t.Fatalf("TryMarkUpdating() error = %v", err)
		}

		later := now.Add(2 * time.Hour)
		won, err := repo.TryMarkUpdating(ctx, playlistKey, later, later.Add(-30*time.Minute))
		if err != nil {
			t.Fatalf("TryMarkUpdating() error = %v", err)
		}
		if !won {
			t.Error("expected an expired lease to be taken over")
		}

		won, err = repo.TryMarkUpdating(ctx, playlistKey, later.Add(time.Minute), later.Add(-30*time.Minute))
		if err != nil {
			t.Fatalf("TryMarkUpdating() error = %v", err)
		}
		if won {
			t.Error("expected a fresh lease to be kept")
		}
	})

	t.Run("TryMarkUpdating unknown playlist", func(t *testing.T) {
		repo := NewPlaylistRepository(setupTestDB(t))

		won, err := repo.TryMarkUpdating(ctx, playlistKey, now, time.Time{})
		if err != nil {
			t.Fatalf("TryMarkUpdating() error = %v", err)
		}
		if won {
			t.Error("expected no flag on a missing playlist")
		}
	})

	t.Run("ClearUpdating", func(t *testing.T) {
		repo := NewPlaylistRepository(setupTestDB(t))
		if _, _, err := repo.GetOrCreate(ctx, playlistKey); err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		if _, err := repo.TryMarkUpdating(ctx, playlistKey, now, time.Time{}); err != nil {
			t.Fatalf("TryMarkUpdating() error = %v", err)
		}

		released, err := repo.ClearUpdating(ctx, playlistKey, now)
		if err != nil || !released {
			t.Fatalf("ClearUpdating() = %v, %v", released, err)
		}

		playlist, err := repo.Get(ctx, playlistKey)
		if err != nil {
			t.Fatalf("failed to get playlist: %v", err)
		}
		if playlist.Updating || playlist.UpdatingSince != nil {
			t.Error("expected idle playlist after clear")
		}

		if released, err := repo.ClearUpdating(ctx, playlistKey, now); err != nil || !released {
			t.Errorf("clearing an idle playlist should be a no-op, got %v, %v", released, err)
		}

		missing := models.PlaylistKey{Platform: "youtube", ID: "nope"}
		if _, err := repo.ClearUpdating(ctx, missing, time.Time{}); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ClearUpdating keeps a lease taken over", func(t *testing.T) {
		repo := NewPlaylistRepository(setupTestDB(t))
		if _, _, err := repo.GetOrCreate(ctx, playlistKey); err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		if _, err := repo.TryMarkUpdating(ctx, playlistKey, now, time.Time{}); err != nil {
			t.Fatalf("TryMarkUpdating() error = %v", err)
		}
		later := now.Add(2 * time.Hour)
		if won, err := repo.TryMarkUpdating(ctx, playlistKey, later, later.Add(-time.Hour)); err != nil || !won {
			t.Fatalf("TryMarkUpdating() = %v, %v", won, err)
		}

		released, err := repo.ClearUpdating(ctx, playlistKey, now)
		if err != nil {
			t.Fatalf("ClearUpdating() error = %v", err)
		}
		if released {
			t.Error("expected the old lease to leave the flag alone")
		}
		if playlist, _ := repo.Get(ctx, playlistKey); !playlist.Updating {
			t.Error("expected the newer refresh to keep the flag")
		}

		if released, err := repo.ClearUpdating(ctx, playlistKey, later); err != nil || !released {
			t.Errorf("expected the current lease to release, got %v, %v", released, err)
		}
	})

	t.Run("ClearUpdating without lease is unconditional", func(t *testing.T) {
		repo := NewPlaylistRepository(setupTestDB(t))
		if _, _, err := repo.GetOrCreate(ctx, playlistKey); err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		if _, err := repo.TryMarkUpdating(ctx, playlistKey, now, time.Time{}); err != nil {
			t.Fatalf("TryMarkUpdating() error = %v", err)
		}

		if released, err := repo.ClearUpdating(ctx, playlistKey, time.Time{}); err != nil || !released {
			t.Errorf("ClearUpdating() = %v, %v", released, err)
		}
	})

	t.Run("List and Delete", func(t *testing.T) {
		repo := NewPlaylistRepository(setupTestDB(t))
		for i := range 3 {
			key := models.PlaylistKey{Platform: "vk", ID: fmt.Sprintf("-1_%d", i)}
			if _, _, err := repo.GetOrCreate(ctx, key); err != nil {
				t.Fatalf("failed to create playlist: %v", err)
			}
		}

		if err := repo.Delete(ctx, models.PlaylistKey{Platform: "vk", ID: "-1_1"}); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}

		playlists, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(playlists) != 2 {
			t.Fatalf("expected 2 playlists, got %d", len(playlists))
		}
		if playlists[0].Sequence > playlists[1].Sequence {
			t.Error("expected playlists ordered by sequence")
		}
	})
}

func TestSubscriptionRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Add is idempotent", func(t *testing.T) {
		db := setupTestDB(t)
		if _, _, err := NewPlaylistRepository(db).GetOrCreate(ctx, playlistKey); err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		repo := NewSubscriptionRepository(db)

		added, err := repo.Add(ctx, playlistKey, "chat-1")
		if err != nil || !added {
			t.Fatalf("expected new subscription, got %v %v", added, err)
		}
		added, err = repo.Add(ctx, playlistKey, "chat-1")
		if err != nil || added {
			t.Fatalf("expected duplicate to be ignored, got %v %v", added, err)
		}
		if _, err := repo.Add(ctx, playlistKey, "chat-2"); err != nil {
			t.Fatalf("failed to add subscriber: %v", err)
		}

		subscribers, err := repo.Subscribers(ctx, playlistKey)
		if err != nil {
			t.Fatalf("Subscribers() error = %v", err)
		}
		if len(subscribers) != 2 {
			t.Errorf("expected 2 subscribers, got %v", subscribers)
		}

		keys, err := repo.ForRequester(ctx, "chat-2")
		if err != nil {
			t.Fatalf("ForRequester() error = %v", err)
		}
		if len(keys) != 1 || keys[0] != playlistKey {
			t.Errorf("expected [%s], got %v", playlistKey, keys)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		db := setupTestDB(t)
		if _, _, err := NewPlaylistRepository(db).GetOrCreate(ctx, playlistKey); err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		repo := NewSubscriptionRepository(db)
		if _, err := repo.Add(ctx, playlistKey, "chat-1"); err != nil {
			t.Fatalf("failed to add subscriber: %v", err)
		}

		removed, err := repo.Remove(ctx, playlistKey, "chat-1")
		if err != nil || !removed {
			t.Fatalf("expected removal, got %v %v", removed, err)
		}
		removed, err = repo.Remove(ctx, playlistKey, "chat-1")
		if err != nil || removed {
			t.Fatalf("expected nothing to remove, got %v %v", removed, err)
		}
	})

	t.Run("Add requires playlist", func(t *testing.T) {
		repo := NewSubscriptionRepository(setupTestDB(t))

		if _, err := repo.Add(ctx, playlistKey, "chat-1"); err == nil {
			t.Fatal("expected foreign key error for a missing playlist")
		}
	})
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	store := NewStore(setupTestDB(t))

	if _, _, err := store.GetOrCreatePlaylist(ctx, playlistKey); err != nil {
		t.Fatalf("failed to create playlist: %v", err)
	}
	if _, err := store.AddSubscriber(ctx, playlistKey, "chat-1"); err != nil {
		t.Fatalf("failed to add subscriber: %v", err)
	}

	for _, id := range []string{"b", "a"} {
		key := models.VideoKey{Platform: playlistKey.Platform, ID: id}
		if _, _, err := store.GetOrCreateVideo(ctx, key); err != nil {
			t.Fatalf("failed to create video: %v", err)
		}
		if err := store.AddMembership(ctx, playlistKey, id); err != nil {
			t.Fatalf("failed to add membership: %v", err)
		}
	}
	if err := store.AddMembership(ctx, playlistKey, "a"); err != nil {
		t.Fatalf("duplicate membership should be ignored: %v", err)
	}

	members, err := store.MembershipIDs(ctx, playlistKey)
	if err != nil {
		t.Fatalf("MembershipIDs() error = %v", err)
	}
	if len(members) != 2 {
		t.Errorf("expected 2 members, got %v", members)
	}

	export, err := store.Export(ctx, playlistKey)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if len(export.Videos) != 2 || export.Videos[0].Key.ID != "b" {
		t.Errorf("expected videos in discovery order, got %v", export.Videos)
	}
	if len(export.Subscribers) != 1 || export.Subscribers[0] != "chat-1" {
		t.Errorf("unexpected subscribers %v", export.Subscribers)
	}

	if err := store.AddMembership(ctx, playlistKey, "unknown"); err == nil {
		t.Error("expected foreign key error for a membership without a video")
	}
}
