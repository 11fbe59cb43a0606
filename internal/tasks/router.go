package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tubeq/internal/models"
	"github.com/desertthunder/tubeq/internal/queue"
	"github.com/desertthunder/tubeq/internal/shared"
)

// RouterOpts contains configuration for a [Router].
type RouterOpts struct {
	Lease time.Duration    // Age after which an updating playlist may be refreshed again (0: never)
	Now   func() time.Time // Clock (default: time.Now)
}

// Router classifies requests, keeps subscription bookkeeping and enqueues tasks.
type Router struct {
	repo      Repository
	platforms Platforms
	tasks     queue.Publisher
	answers   queue.Publisher
	opts      RouterOpts
	logger    *log.Logger
}

// Submission describes an accepted download request.
type Submission struct {
	Video  models.VideoKey
	URL    string
	Cached bool
}

// Subscription describes the outcome of a playlist subscription.
type Subscription struct {
	Playlist   models.PlaylistKey
	Created    bool // the playlist was not tracked before
	Subscribed bool // the requester was not subscribed before
	Refreshing bool // an initial refresh was enqueued
}

// SubscribedPlaylist is a playlist a requester follows.
type SubscribedPlaylist struct {
	Platform   string `json:"platform"`
	PlaylistID string `json:"playlist_id"`
	URL        string `json:"url"`
}

// RefreshReport summarizes a [Router.RefreshAll] pass.
type RefreshReport struct {
	Triggered int
	Skipped   int
}

// NewRouter creates a Router publishing tasks to tasks and cached results to answers.
func NewRouter(repo Repository, platforms Platforms, tasks, answers queue.Publisher, opts RouterOpts, logger *log.Logger) *Router {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Router{
		repo:      repo,
		platforms: platforms,
		tasks:     tasks,
		answers:   answers,
		opts:      opts,
		logger:    shared.WithLogger(logger, "component", "router"),
	}
}

// SubmitDownload accepts a video URL from a requester.
//
// URLs no platform recognizes are rejected with [shared.ErrNotFound]. A video with a cached artifact
// is answered without a fetch; anything else becomes a [models.DownloadTask].
func (r *Router) SubmitDownload(ctx context.Context, rawURL string, req Requester) (*Submission, error) {
	if req.ID == "" {
		return nil, fmt.Errorf("%w: requester id", shared.ErrMissingArgument)
	}

	key, err := r.platforms.ResolveVideo(rawURL)
	if err != nil {
		return nil, err
	}
	videoURL, err := r.platforms.VideoURL(key)
	if err != nil {
		videoURL = strings.TrimSpace(rawURL)
	}

	video, err := r.repo.GetVideo(ctx, key)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	corr := models.Correlation{RequesterID: req.ID, RequestRef: req.Ref}
	sub := &Submission{Video: key, URL: videoURL, Cached: video.Cached()}

	if sub.Cached {
		result := models.DownloadResult{
			VideoID:     key.ID,
			Platform:    key.Platform,
			URL:         videoURL,
			ArtifactRef: video.ArtifactRef,
			Cached:      true,
			Correlation: corr,
		}
		if err := publishAnswer(ctx, r.answers, result); err != nil {
			return nil, err
		}
		r.logger.Info("serving cached video", "platform", key.Platform, "video_id", key.ID, "requester", req.ID)
		return sub, nil
	}

	task := models.DownloadTask{VideoID: key.ID, URL: videoURL, Platform: key.Platform, Correlation: corr}
	if err := publishTask(ctx, r.tasks, task); err != nil {
		return nil, err
	}
	r.logger.Info("download queued", "platform", key.Platform, "video_id", key.ID, "requester", req.ID)
	return sub, nil
}

// SubmitPlaylistSubscription subscribes a requester to a playlist, tracking the playlist if needed.
// Subscribing twice is a no-op. A newly tracked playlist gets an initial refresh that records its
// membership without downloading anything.
func (r *Router) SubmitPlaylistSubscription(ctx context.Context, rawURL string, req Requester) (*Subscription, error) {
	if req.ID == "" {
		return nil, fmt.Errorf("%w: requester id", shared.ErrMissingArgument)
	}

	key, err := r.platforms.ResolvePlaylist(rawURL)
	if err != nil {
		return nil, err
	}

	_, created, err := r.repo.GetOrCreatePlaylist(ctx, key)
	if err != nil {
		return nil, err
	}
	subscribed, err := r.repo.AddSubscriber(ctx, key, req.ID)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{Playlist: key, Created: created, Subscribed: subscribed}
	if created {
		sub.Refreshing, err = r.TriggerPlaylistRefresh(ctx, key, false)
		if err != nil {
			return sub, err
		}
	}

	r.logger.Info("playlist subscription", "platform", key.Platform, "playlist_id", key.ID, "requester", req.ID, "created", created, "subscribed", subscribed)
	return sub, nil
}

// TriggerPlaylistRefresh enqueues a [models.PlaylistTask] unless the playlist is already updating.
//
// It reports whether a task was enqueued. The updating flag is set with a compare-and-set, so
// concurrent triggers enqueue at most one task.
func (r *Router) TriggerPlaylistRefresh(ctx context.Context, key models.PlaylistKey, upload bool) (bool, error) {
	playlistURL, err := r.platforms.PlaylistURL(key)
	if err != nil {
		return false, err
	}

	now := r.opts.Now()
	var staleBefore time.Time
	if r.opts.Lease > 0 {
		staleBefore = now.Add(-r.opts.Lease)
	}

	marked, err := r.repo.TryMarkUpdating(ctx, key, now, staleBefore)
	if err != nil {
		return false, err
	}
	if !marked {
		if _, err := r.repo.GetPlaylist(ctx, key); err != nil {
			return false, err
		}
		r.logger.Debug("refresh skipped, playlist is updating", "platform", key.Platform, "playlist_id", key.ID)
		return false, nil
	}

	task := models.PlaylistTask{PlaylistID: key.ID, Platform: key.Platform, URL: playlistURL, Upload: upload, Lease: now}
	if err := publishTask(ctx, r.tasks, task); err != nil {
		if _, clearErr := r.repo.ClearUpdating(context.WithoutCancel(ctx), key, now); clearErr != nil {
			return false, errors.Join(err, clearErr)
		}
		return false, err
	}

	r.logger.Info("refresh queued", "platform", key.Platform, "playlist_id", key.ID, "upload", upload)
	return true, nil
}

// RefreshPlaylist triggers a refresh of a playlist given by URL.
func (r *Router) RefreshPlaylist(ctx context.Context, rawURL string, upload bool) (models.PlaylistKey, bool, error) {
	key, err := r.platforms.ResolvePlaylist(rawURL)
	if err != nil {
		return key, false, err
	}
	triggered, err := r.TriggerPlaylistRefresh(ctx, key, upload)
	return key, triggered, err
}

// Unsubscribe removes a requester from a playlist. It reports whether a subscription existed.
//
// A playlist left without subscribers is dropped together with its membership; an answer still in
// flight for it is then ignored as untracked.
func (r *Router) Unsubscribe(ctx context.Context, rawURL string, requesterID string) (bool, error) {
	if requesterID == "" {
		return false, fmt.Errorf("%w: requester id", shared.ErrMissingArgument)
	}

	key, err := r.platforms.ResolvePlaylist(rawURL)
	if err != nil {
		return false, err
	}

	removed, err := r.repo.RemoveSubscriber(ctx, key, requesterID)
	if err != nil || !removed {
		return false, err
	}
	r.logger.Info("playlist unsubscribed", "platform", key.Platform, "playlist_id", key.ID, "requester", requesterID)

	remaining, err := r.repo.Subscribers(ctx, key)
	if err != nil {
		return true, err
	}
	if len(remaining) > 0 {
		return true, nil
	}
	if err := r.repo.DeletePlaylist(ctx, key); err != nil && !errors.Is(err, shared.ErrNotFound) {
		return true, err
	}
	r.logger.Info("playlist dropped, no subscribers left", "platform", key.Platform, "playlist_id", key.ID)
	return true, nil
}

// Subscriptions lists the playlists a requester follows.
func (r *Router) Subscriptions(ctx context.Context, requesterID string) ([]SubscribedPlaylist, error) {
	keys, err := r.repo.SubscriptionsFor(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	playlists := make([]SubscribedPlaylist, 0, len(keys))
	for _, key := range keys {
		u, err := r.platforms.PlaylistURL(key)
		if err != nil {
			u = key.String()
		}
		playlists = append(playlists, SubscribedPlaylist{Platform: key.Platform, PlaylistID: key.ID, URL: u})
	}
	return playlists, nil
}

// RefreshAll triggers a refresh of every tracked playlist.
//
// Playlists of platforms that are no longer configured are skipped. Repository and broker failures stop the pass.
func (r *Router) RefreshAll(ctx context.Context, upload bool) (*RefreshReport, error) {
	playlists, err := r.repo.ListPlaylists(ctx)
	if err != nil {
		return nil, err
	}

	report := &RefreshReport{}
	now := r.opts.Now()
	for _, p := range playlists {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !p.Refreshable(now, r.opts.Lease) {
			report.Skipped++
			continue
		}

		triggered, err := r.TriggerPlaylistRefresh(ctx, p.Key, upload)
		switch {
		case errors.Is(err, shared.ErrUnknownPlatform), errors.Is(err, shared.ErrInvalidConfig):
			r.logger.Warn("skipping playlist", "platform", p.Key.Platform, "playlist_id", p.Key.ID, "err", err)
			report.Skipped++
		case err != nil:
			return report, err
		case triggered:
			report.Triggered++
		default:
			report.Skipped++
		}
	}

	r.logger.Info("refresh pass complete", "triggered", report.Triggered, "skipped", report.Skipped)
	return report, nil
}
