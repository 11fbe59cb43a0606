package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/tubeq/internal/models"
)

// SubscriptionRepository links playlists to the requesters that follow them.
type SubscriptionRepository struct {
	db *sql.DB
}

// NewSubscriptionRepository creates a new SubscriptionRepository with the given database connection
func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Add subscribes requesterID to a playlist. Returns false when the subscription already existed.
func (r *SubscriptionRepository) Add(ctx context.Context, key models.PlaylistKey, requesterID string) (bool, error) {
	query := `
		INSERT INTO subscriptions (platform, playlist_id, requester_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (platform, playlist_id, requester_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query, key.Platform, key.ID, requesterID, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to insert subscription: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}

// Remove unsubscribes requesterID from a playlist. Returns false when there was nothing to remove.
func (r *SubscriptionRepository) Remove(ctx context.Context, key models.PlaylistKey, requesterID string) (bool, error) {
	query := `
		DELETE FROM subscriptions
		WHERE platform = ? AND playlist_id = ? AND requester_id = ?
	`

	result, err := r.db.ExecContext(ctx, query, key.Platform, key.ID, requesterID)
	if err != nil {
		return false, fmt.Errorf("failed to delete subscription: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}

// Subscribers lists the requesters of a playlist in subscription order.
func (r *SubscriptionRepository) Subscribers(ctx context.Context, key models.PlaylistKey) ([]string, error) {
	query := `
		SELECT requester_id
		FROM subscriptions
		WHERE platform = ? AND playlist_id = ?
		ORDER BY created_at ASC, requester_id ASC
	`

	return queryStrings(ctx, r.db, query, key.Platform, key.ID)
}

// ForRequester lists the playlists a requester is subscribed to.
func (r *SubscriptionRepository) ForRequester(ctx context.Context, requesterID string) ([]models.PlaylistKey, error) {
	query := `
		SELECT s.platform, s.playlist_id
		FROM subscriptions s
		JOIN playlists p ON p.platform = s.platform AND p.playlist_id = s.playlist_id
		WHERE s.requester_id = ?
		ORDER BY p.sequence ASC
	`

	rows, err := r.db.QueryContext(ctx, query, requesterID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var keys []models.PlaylistKey
	for rows.Next() {
		var key models.PlaylistKey
		if err := rows.Scan(&key.Platform, &key.ID); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return keys, nil
}

func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return values, nil
}
