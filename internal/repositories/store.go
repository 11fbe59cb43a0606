package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/tubeq/internal/models"
)

// Store implements tasks.Repository on top of the four SQLite repositories.
type Store struct {
	Videos        *VideoRepository
	Playlists     *PlaylistRepository
	Subscriptions *SubscriptionRepository
	Memberships   *MembershipRepository
}

// NewStore creates a Store whose repositories share db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		Videos:        NewVideoRepository(db),
		Playlists:     NewPlaylistRepository(db),
		Subscriptions: NewSubscriptionRepository(db),
		Memberships:   NewMembershipRepository(db),
	}
}

func (s *Store) GetVideo(ctx context.Context, key models.VideoKey) (*models.Video, error) {
	return s.Videos.Get(ctx, key)
}

func (s *Store) GetOrCreateVideo(ctx context.Context, key models.VideoKey) (*models.Video, bool, error) {
	return s.Videos.GetOrCreate(ctx, key)
}

func (s *Store) SetVideoArtifact(ctx context.Context, key models.VideoKey, artifactRef string) error {
	return s.Videos.SetArtifact(ctx, key, artifactRef)
}

func (s *Store) GetPlaylist(ctx context.Context, key models.PlaylistKey) (*models.Playlist, error) {
	return s.Playlists.Get(ctx, key)
}

func (s *Store) GetOrCreatePlaylist(ctx context.Context, key models.PlaylistKey) (*models.Playlist, bool, error) {
	return s.Playlists.GetOrCreate(ctx, key)
}

func (s *Store) ListPlaylists(ctx context.Context) ([]*models.Playlist, error) {
	return s.Playlists.List(ctx)
}

// DeletePlaylist drops a playlist with its subscriptions and membership. Videos are kept.
func (s *Store) DeletePlaylist(ctx context.Context, key models.PlaylistKey) error {
	return s.Playlists.Delete(ctx, key)
}

func (s *Store) TryMarkUpdating(ctx context.Context, key models.PlaylistKey, now, staleBefore time.Time) (bool, error) {
	return s.Playlists.TryMarkUpdating(ctx, key, now, staleBefore)
}

func (s *Store) ClearUpdating(ctx context.Context, key models.PlaylistKey, lease time.Time) (bool, error) {
	return s.Playlists.ClearUpdating(ctx, key, lease)
}

// MembershipIDs returns the known member ids of a playlist as a set.
func (s *Store) MembershipIDs(ctx context.Context, key models.PlaylistKey) (map[string]struct{}, error) {
	ids, err := s.Memberships.VideoIDs(ctx, key)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func (s *Store) AddMembership(ctx context.Context, key models.PlaylistKey, videoID string) error {
	return s.Memberships.Add(ctx, key, videoID)
}

func (s *Store) Subscribers(ctx context.Context, key models.PlaylistKey) ([]string, error) {
	return s.Subscriptions.Subscribers(ctx, key)
}

func (s *Store) AddSubscriber(ctx context.Context, key models.PlaylistKey, requesterID string) (bool, error) {
	return s.Subscriptions.Add(ctx, key, requesterID)
}

func (s *Store) RemoveSubscriber(ctx context.Context, key models.PlaylistKey, requesterID string) (bool, error) {
	return s.Subscriptions.Remove(ctx, key, requesterID)
}

func (s *Store) SubscriptionsFor(ctx context.Context, requesterID string) ([]models.PlaylistKey, error) {
	return s.Subscriptions.ForRequester(ctx, requesterID)
}

// Export collects a playlist with its member videos and subscribers.
func (s *Store) Export(ctx context.Context, key models.PlaylistKey) (*models.PlaylistExport, error) {
	playlist, err := s.Playlists.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	videos, err := s.Memberships.Videos(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load playlist videos: %w", err)
	}

	subscribers, err := s.Subscriptions.Subscribers(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscribers: %w", err)
	}

	return &models.PlaylistExport{Playlist: playlist, Videos: videos, Subscribers: subscribers}, nil
}
