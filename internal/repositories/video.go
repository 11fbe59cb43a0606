package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tubeq/internal/models"
	"github.com/desertthunder/tubeq/internal/shared"
)

// VideoRepository persists videos and their cached artifact references.
type VideoRepository struct {
	db *sql.DB
}

// NewVideoRepository creates a new VideoRepository with the given database connection
func NewVideoRepository(db *sql.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

// Get retrieves a video by key. Returns [shared.ErrVideoNotFound] when it does not exist.
func (r *VideoRepository) Get(ctx context.Context, key models.VideoKey) (*models.Video, error) {
	query := `
		SELECT platform, video_id, sequence, artifact_ref, created_at, updated_at
		FROM videos
		WHERE platform = ? AND video_id = ?
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, key.Platform, key.ID))
}

// GetOrCreate returns the video for key, inserting a placeholder when it does not exist yet.
// created reports whether this call inserted the row.
func (r *VideoRepository) GetOrCreate(ctx context.Context, key models.VideoKey) (*models.Video, bool, error) {
	if err := key.Validate(); err != nil {
		return nil, false, fmt.Errorf("validation failed: %w", err)
	}

	existing, err := r.Get(ctx, key)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, err
	}

	sequence, err := NextSequence(ctx, r.db, "videos")
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate sequence: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO videos (platform, video_id, sequence, artifact_ref, created_at, updated_at)
		VALUES (?, ?, ?, NULL, ?, ?)
		ON CONFLICT (platform, video_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query, key.Platform, key.ID, sequence, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert video: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	video, err := r.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return video, rows == 1, nil
}

// SetArtifact records the artifact reference of a video, creating the row when needed.
//
// An existing reference is overwritten; the artifact for a key is the same media either way.
func (r *VideoRepository) SetArtifact(ctx context.Context, key models.VideoKey, artifactRef string) error {
	if err := key.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if artifactRef == "" {
		return fmt.Errorf("%w: empty artifact reference", shared.ErrInvalidInput)
	}

	if _, _, err := r.GetOrCreate(ctx, key); err != nil {
		return err
	}

	query := `
		UPDATE videos
		SET artifact_ref = ?, updated_at = ?
		WHERE platform = ? AND video_id = ?
	`

	if _, err := r.db.ExecContext(ctx, query, artifactRef, time.Now(), key.Platform, key.ID); err != nil {
		return fmt.Errorf("failed to update video: %w", err)
	}
	return nil
}

// scanOne scans a single row into a [models.Video]
func (r *VideoRepository) scanOne(row *sql.Row) (*models.Video, error) {
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrVideoNotFound
	}
	return video, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVideo(s scanner) (*models.Video, error) {
	var (
		platform    string
		videoID     string
		sequence    int
		artifactRef sql.NullString
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := s.Scan(&platform, &videoID, &sequence, &artifactRef, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan video: %w", err)
	}

	key := models.VideoKey{Platform: platform, ID: videoID}
	return models.RestoreVideo(key, sequence, artifactRef.String, createdAt, updatedAt), nil
}
