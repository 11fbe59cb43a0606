package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/tubeq/internal/models"
)

// MembershipRepository records which videos are known members of a playlist.
//
// The video row must exist before it can become a member; callers create a placeholder first.
type MembershipRepository struct {
	db *sql.DB
}

// NewMembershipRepository creates a new MembershipRepository with the given database connection
func NewMembershipRepository(db *sql.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// Add records videoID as a member of the playlist. Adding an existing member is a no-op.
func (r *MembershipRepository) Add(ctx context.Context, key models.PlaylistKey, videoID string) error {
	query := `
		INSERT INTO memberships (platform, playlist_id, video_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (platform, playlist_id, video_id) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query, key.Platform, key.ID, videoID, time.Now()); err != nil {
		return fmt.Errorf("failed to insert membership: %w", err)
	}
	return nil
}

// VideoIDs returns the known member ids of a playlist in ascending order.
func (r *MembershipRepository) VideoIDs(ctx context.Context, key models.PlaylistKey) ([]string, error) {
	query := `
		SELECT video_id
		FROM memberships
		WHERE platform = ? AND playlist_id = ?
		ORDER BY video_id ASC
	`

	return queryStrings(ctx, r.db, query, key.Platform, key.ID)
}

// Videos returns the member videos of a playlist in discovery order.
func (r *MembershipRepository) Videos(ctx context.Context, key models.PlaylistKey) ([]*models.Video, error) {
	query := `
		SELECT v.platform, v.video_id, v.sequence, v.artifact_ref, v.created_at, v.updated_at
		FROM memberships m
		JOIN videos v ON v.platform = m.platform AND v.video_id = m.video_id
		WHERE m.platform = ? AND m.playlist_id = ?
		ORDER BY v.sequence ASC
	`

	rows, err := r.db.QueryContext(ctx, query, key.Platform, key.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist videos: %w", err)
	}
	defer rows.Close()

	var videos []*models.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return videos, nil
}
