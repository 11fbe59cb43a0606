package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tubeq/internal/formatter"
	"github.com/desertthunder/tubeq/internal/models"
	"github.com/desertthunder/tubeq/internal/queue"
	"github.com/desertthunder/tubeq/internal/services"
	"github.com/desertthunder/tubeq/internal/shared"
)

// AnswerProcessor applies answers to the repository and notifies requesters.
//
// It must be the only consumer of its answer queue: answers are handled one at a time, in delivery order.
type AnswerProcessor struct {
	repo      Repository
	platforms Platforms
	answers   queue.Consumer
	tasks     queue.Publisher
	notifier  services.Notifier
	logger    *log.Logger
}

// NewAnswerProcessor creates an AnswerProcessor consuming answers and publishing playlist downloads to tasks.
func NewAnswerProcessor(
	repo Repository,
	platforms Platforms,
	answers queue.Consumer,
	tasks queue.Publisher,
	notifier services.Notifier,
	logger *log.Logger,
) *AnswerProcessor {
	return &AnswerProcessor{
		repo:      repo,
		platforms: platforms,
		answers:   answers,
		tasks:     tasks,
		notifier:  notifier,
		logger:    shared.WithLogger(logger, "component", "answers"),
	}
}

// Run consumes answers until ctx ends or the answer queue is closed.
//
// Undecodable answers are logged and dropped. A repository or broker failure returns the delivery
// to the queue and stops Run with that error.
func (a *AnswerProcessor) Run(ctx context.Context) error {
	a.logger.Info("answer processor started")
	defer a.logger.Info("answer processor stopped")

	for {
		d, err := a.answers.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to consume answer: %w", err)
		}

		settleCtx := context.WithoutCancel(ctx)
		answer, err := models.DecodeAnswer(d.Body)
		if err != nil {
			a.logger.Error("dropping malformed answer", "err", err)
			if err := d.Ack(settleCtx); err != nil {
				return settle(err)
			}
			continue
		}

		if err := a.Handle(settleCtx, answer); err != nil {
			return errors.Join(err, settle(d.Nack(settleCtx)))
		}
		if err := d.Ack(settleCtx); err != nil {
			return settle(err)
		}
	}
}

// Handle applies one answer.
func (a *AnswerProcessor) Handle(ctx context.Context, answer models.Answer) error {
	switch v := answer.(type) {
	case models.DownloadResult:
		return a.handleDownload(ctx, v)
	case models.PlaylistResult:
		return a.handlePlaylist(ctx, v)
	default:
		a.logger.Error("dropping answer of unknown type", "type", fmt.Sprintf("%T", answer))
		return nil
	}
}

func (a *AnswerProcessor) handleDownload(ctx context.Context, r models.DownloadResult) error {
	key := r.Key()
	logger := a.logger.With("platform", key.Platform, "video_id", key.ID)

	if !r.Failed() && !r.Cached {
		if err := a.repo.SetVideoArtifact(ctx, key, r.ArtifactRef); err != nil {
			return fmt.Errorf("failed to record artifact of %s: %w", key, err)
		}
	}

	videoURL := r.URL
	if videoURL == "" {
		videoURL, _ = a.platforms.VideoURL(key)
	}

	var notifications []models.Notification
	if r.Correlation.PlaylistID != "" {
		playlist := models.PlaylistKey{Platform: key.Platform, ID: r.Correlation.PlaylistID}
		subscribers, err := a.repo.Subscribers(ctx, playlist)
		if err != nil {
			return fmt.Errorf("failed to load subscribers of %s: %w", playlist, err)
		}

		playlistURL, _ := a.platforms.PlaylistURL(playlist)
		for _, s := range subscribers {
			notifications = append(notifications, formatter.Notification(r, s, "", videoURL, playlistURL))
		}
	} else if r.Correlation.RequesterID != "" {
		notifications = append(notifications, formatter.Notification(r, r.Correlation.RequesterID, r.Correlation.RequestRef, videoURL, ""))
	}

	if len(notifications) == 0 {
		logger.Warn("download result has no recipients")
	}
	for _, n := range notifications {
		if err := a.notifier.Notify(ctx, n); err != nil {
			logger.Warn("notification failed", "requester", n.RequesterID, "err", err)
		}
	}

	if r.Failed() {
		logger.Info("download failure delivered", "error_code", r.ErrorCode, "recipients", len(notifications))
	} else {
		logger.Info("download delivered", "cached", r.Cached, "recipients", len(notifications))
	}
	return nil
}

// handlePlaylist records newly discovered videos and releases the refresh flag.
//
// For each new id the placeholder video and the download task are written before the membership,
// so an interrupted pass rediscovers the id instead of losing its download.
func (a *AnswerProcessor) handlePlaylist(ctx context.Context, r models.PlaylistResult) error {
	key := r.Key()
	logger := a.logger.With("platform", key.Platform, "playlist_id", key.ID)

	if r.Failed() {
		logger.Warn("playlist refresh failed", "error_code", r.ErrorCode)
		return a.release(ctx, r)
	}

	if _, err := a.repo.GetPlaylist(ctx, key); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			logger.Warn("playlist result for untracked playlist")
			return nil
		}
		return fmt.Errorf("failed to load playlist %s: %w", key, err)
	}

	if err := a.sync(ctx, r, logger); err != nil {
		return errors.Join(err, a.release(ctx, r))
	}
	return a.release(ctx, r)
}

func (a *AnswerProcessor) sync(ctx context.Context, r models.PlaylistResult, logger *log.Logger) error {
	key := r.Key()
	known, err := a.repo.MembershipIDs(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to load membership of %s: %w", key, err)
	}

	fresh := NewVideoIDs(r.VideoIDs, known)
	queued := 0
	for _, id := range fresh {
		vkey := models.VideoKey{Platform: key.Platform, ID: id}
		video, _, err := a.repo.GetOrCreateVideo(ctx, vkey)
		if err != nil {
			return fmt.Errorf("failed to create video %s: %w", vkey, err)
		}

		if r.Upload {
			sent, err := a.dispatch(ctx, video, key)
			if err != nil {
				return err
			}
			if sent {
				queued++
			}
		}

		if err := a.repo.AddMembership(ctx, key, id); err != nil {
			return fmt.Errorf("failed to add %s to %s: %w", id, key, err)
		}
	}

	logger.Info("playlist synced", "listed", len(r.VideoIDs), "new", len(fresh), "queued", queued)
	return nil
}

// dispatch sends a newly discovered video to the playlist's subscribers: inline when it is
// already cached, through a download task otherwise. It reports whether a task was queued.
func (a *AnswerProcessor) dispatch(ctx context.Context, video *models.Video, playlist models.PlaylistKey) (bool, error) {
	corr := models.Correlation{PlaylistID: playlist.ID}
	videoURL, err := a.platforms.VideoURL(video.Key)
	if err != nil {
		a.logger.Warn("cannot download playlist video", "video_id", video.Key.ID, "err", err)
		return false, nil
	}

	if video.Cached() {
		return false, a.handleDownload(ctx, models.DownloadResult{
			VideoID:     video.Key.ID,
			Platform:    video.Key.Platform,
			URL:         videoURL,
			ArtifactRef: video.ArtifactRef,
			Cached:      true,
			Correlation: corr,
		})
	}

	task := models.DownloadTask{VideoID: video.Key.ID, URL: videoURL, Platform: video.Key.Platform, Correlation: corr}
	if err := publishTask(ctx, a.tasks, task); err != nil {
		return false, err
	}
	return true, nil
}

// release clears the refresh flag held by the task that produced r. A result whose lease was
// taken over by a newer refresh leaves the flag to that refresh.
func (a *AnswerProcessor) release(ctx context.Context, r models.PlaylistResult) error {
	key := r.Key()
	released, err := a.repo.ClearUpdating(ctx, key, r.Lease)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			a.logger.Warn("playlist result for untracked playlist", "playlist_id", key.ID, "platform", key.Platform)
			return nil
		}
		return fmt.Errorf("failed to release %s: %w", key, err)
	}
	if !released {
		a.logger.Warn("stale playlist result, refresh lease was taken over", "playlist_id", key.ID, "platform", key.Platform)
	}
	return nil
}
