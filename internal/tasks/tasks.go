package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/tubeq/internal/models"
	"github.com/desertthunder/tubeq/internal/queue"
	"github.com/desertthunder/tubeq/internal/services"
)

// VideoLookup reads videos without modifying them.
type VideoLookup interface {
	GetVideo(ctx context.Context, key models.VideoKey) (*models.Video, error)
}

// Repository is the storage contract of the pipeline. [repositories.Store] implements it.
type Repository interface {
	VideoLookup
	GetOrCreateVideo(ctx context.Context, key models.VideoKey) (*models.Video, bool, error)
	SetVideoArtifact(ctx context.Context, key models.VideoKey, artifactRef string) error

	GetPlaylist(ctx context.Context, key models.PlaylistKey) (*models.Playlist, error)
	GetOrCreatePlaylist(ctx context.Context, key models.PlaylistKey) (*models.Playlist, bool, error)
	ListPlaylists(ctx context.Context) ([]*models.Playlist, error)
	DeletePlaylist(ctx context.Context, key models.PlaylistKey) error
	TryMarkUpdating(ctx context.Context, key models.PlaylistKey, now, staleBefore time.Time) (bool, error)
	ClearUpdating(ctx context.Context, key models.PlaylistKey, lease time.Time) (bool, error)

	MembershipIDs(ctx context.Context, key models.PlaylistKey) (map[string]struct{}, error)
	AddMembership(ctx context.Context, key models.PlaylistKey, videoID string) error

	Subscribers(ctx context.Context, key models.PlaylistKey) ([]string, error)
	AddSubscriber(ctx context.Context, key models.PlaylistKey, requesterID string) (bool, error)
	RemoveSubscriber(ctx context.Context, key models.PlaylistKey, requesterID string) (bool, error)
	SubscriptionsFor(ctx context.Context, requesterID string) ([]models.PlaylistKey, error)
}

// FetcherSource hands out the fetch capability of a platform.
type FetcherSource interface {
	Fetcher(platform string) (services.Fetcher, error)
}

// Platforms classifies URLs and rebuilds canonical ones. [services.Registry] implements it.
type Platforms interface {
	FetcherSource
	ResolveVideo(raw string) (models.VideoKey, error)
	ResolvePlaylist(raw string) (models.PlaylistKey, error)
	VideoURL(key models.VideoKey) (string, error)
	PlaylistURL(key models.PlaylistKey) (string, error)
}

// Requester identifies who asked for a download and which message to answer.
type Requester struct {
	ID  string
	Ref string
}

func publishTask(ctx context.Context, p queue.Publisher, t models.Task) error {
	body, err := models.EncodeTask(t)
	if err != nil {
		return err
	}
	if err := p.Publish(ctx, body); err != nil {
		return fmt.Errorf("failed to publish %s task: %w", t.TaskType(), err)
	}
	return nil
}

func publishAnswer(ctx context.Context, p queue.Publisher, a models.Answer) error {
	body, err := models.EncodeAnswer(a)
	if err != nil {
		return err
	}
	if err := p.Publish(ctx, body); err != nil {
		return fmt.Errorf("failed to publish %s answer: %w", a.AnswerType(), err)
	}
	return nil
}
