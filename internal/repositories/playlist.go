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

// PlaylistRepository persists playlists and their refresh lease.
//
// The is_updating flag is the authoritative record of an in-flight refresh. It is only set through
// [PlaylistRepository.TryMarkUpdating] and only cleared through [PlaylistRepository.ClearUpdating].
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Get retrieves a playlist by key. Returns [shared.ErrPlaylistNotFound] when it does not exist.
func (r *PlaylistRepository) Get(ctx context.Context, key models.PlaylistKey) (*models.Playlist, error) {
	query := `
		SELECT platform, playlist_id, sequence, is_updating, updating_since, created_at, updated_at
		FROM playlists
		WHERE platform = ? AND playlist_id = ?
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, key.Platform, key.ID))
}

// GetOrCreate returns the playlist for key, inserting an idle row when it does not exist yet.
// created reports whether this call inserted the row.
func (r *PlaylistRepository) GetOrCreate(ctx context.Context, key models.PlaylistKey) (*models.Playlist, bool, error) {
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

	sequence, err := NextSequence(ctx, r.db, "playlists")
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate sequence: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO playlists (platform, playlist_id, sequence, is_updating, updating_since, created_at, updated_at)
		VALUES (?, ?, ?, 0, NULL, ?, ?)
		ON CONFLICT (platform, playlist_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query, key.Platform, key.ID, sequence, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert playlist: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	playlist, err := r.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return playlist, rows == 1, nil
}

// TryMarkUpdating sets is_updating when the playlist is idle, or when its lease started before staleBefore.
//
// It reports whether this caller acquired the flag. A zero staleBefore never steals a lease.
func (r *PlaylistRepository) TryMarkUpdating(ctx context.Context, key models.PlaylistKey, now, staleBefore time.Time) (bool, error) {
	query := `
		UPDATE playlists
		SET is_updating = 1, updating_since = ?, updated_at = ?
		WHERE platform = ? AND playlist_id = ?
		AND (is_updating = 0 OR (? AND updating_since IS NOT NULL AND updating_since < ?))
	`

	// timestamps are compared as text, so both sides are written in UTC
	steal := !staleBefore.IsZero()
	result, err := r.db.ExecContext(ctx, query, now.UTC(), now.UTC(), key.Platform, key.ID, steal, staleBefore.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to mark playlist updating: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}

// ClearUpdating resets is_updating and its lease when lease still identifies the current refresh.
//
// lease is the updating_since value written by the [PlaylistRepository.TryMarkUpdating] call that
// started the refresh. A zero lease clears unconditionally. It reports false when a newer refresh
// took the lease over; clearing an idle playlist is a no-op that reports true.
func (r *PlaylistRepository) ClearUpdating(ctx context.Context, key models.PlaylistKey, lease time.Time) (bool, error) {
	query := `
		UPDATE playlists
		SET is_updating = 0, updating_since = NULL, updated_at = ?
		WHERE platform = ? AND playlist_id = ?
		AND (? OR is_updating = 0 OR updating_since = ?)
	`

	unconditional := lease.IsZero()
	result, err := r.db.ExecContext(ctx, query, time.Now(), key.Platform, key.ID, unconditional, lease.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to clear playlist updating: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 1 {
		return true, nil
	}

	if _, err := r.Get(ctx, key); err != nil {
		return false, err
	}
	return false, nil
}

// Delete removes a playlist; subscriptions and memberships cascade.
func (r *PlaylistRepository) Delete(ctx context.Context, key models.PlaylistKey) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM playlists WHERE platform = ? AND playlist_id = ?", key.Platform, key.ID)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, key)
	}
	return nil
}

// List retrieves all playlists ordered by sequence.
func (r *PlaylistRepository) List(ctx context.Context) ([]*models.Playlist, error) {
	query := `
		SELECT platform, playlist_id, sequence, is_updating, updating_since, created_at, updated_at
		FROM playlists
		ORDER BY sequence ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var playlists []*models.Playlist
	for rows.Next() {
		playlist, err := scanPlaylist(rows)
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, playlist)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return playlists, nil
}

// scanOne scans a single row into a [models.Playlist]
func (r *PlaylistRepository) scanOne(row *sql.Row) (*models.Playlist, error) {
	playlist, err := scanPlaylist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrPlaylistNotFound
	}
	return playlist, err
}

func scanPlaylist(s scanner) (*models.Playlist, error) {
	var (
		platform      string
		playlistID    string
		sequence      int
		updating      bool
		updatingSince sql.NullTime
		createdAt     time.Time
		updatedAt     time.Time
	)

	err := s.Scan(&platform, &playlistID, &sequence, &updating, &updatingSince, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}

	key := models.PlaylistKey{Platform: platform, ID: playlistID}
	return models.RestorePlaylist(key, sequence, updating, nullTime(updatingSince), createdAt, updatedAt), nil
}
