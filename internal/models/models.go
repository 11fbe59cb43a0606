// package models defines the data model for the video download pipeline
package models

import (
	"fmt"
	"strings"
	"time"
)

// Model defines the base interface for all persistent models in the pipeline.
type Model interface {
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// VideoKey identifies a video by platform and platform-native id.
type VideoKey struct {
	Platform string
	ID       string
}

func (k VideoKey) String() string { return k.Platform + ":" + k.ID }

// Validate reports whether both parts of the key are present.
func (k VideoKey) Validate() error {
	if strings.TrimSpace(k.Platform) == "" || strings.TrimSpace(k.ID) == "" {
		return fmt.Errorf("video key requires platform and id, got %q", k.String())
	}
	return nil
}

// PlaylistKey identifies a playlist by platform and platform-native id.
type PlaylistKey struct {
	Platform string
	ID       string
}

func (k PlaylistKey) String() string { return k.Platform + ":" + k.ID }

// Validate reports whether both parts of the key are present.
func (k PlaylistKey) Validate() error {
	if strings.TrimSpace(k.Platform) == "" || strings.TrimSpace(k.ID) == "" {
		return fmt.Errorf("playlist key requires platform and id, got %q", k.String())
	}
	return nil
}

// Video is a platform video known to the pipeline.
//
// A video with an empty ArtifactRef is a placeholder created by playlist discovery.
// Once ArtifactRef is set the video is served from cache and never fetched again.
type Video struct {
	Key         VideoKey
	Sequence    int
	ArtifactRef string
	createdAt   time.Time
	updatedAt   time.Time
}

// NewVideo creates a Video with both timestamps set to now.
func NewVideo(key VideoKey, artifactRef string) *Video {
	now := time.Now()
	return &Video{Key: key, ArtifactRef: artifactRef, createdAt: now, updatedAt: now}
}

// RestoreVideo rebuilds a Video read from storage.
func RestoreVideo(key VideoKey, sequence int, artifactRef string, createdAt, updatedAt time.Time) *Video {
	return &Video{Key: key, Sequence: sequence, ArtifactRef: artifactRef, createdAt: createdAt, updatedAt: updatedAt}
}

func (v *Video) CreatedAt() time.Time { return v.createdAt }
func (v *Video) UpdatedAt() time.Time { return v.updatedAt }

// Cached reports whether the video has a stored artifact.
func (v *Video) Cached() bool { return v != nil && v.ArtifactRef != "" }

func (v *Video) Validate() error { return v.Key.Validate() }

// Playlist is a platform playlist tracked for its subscribers.
type Playlist struct {
	Key           PlaylistKey
	Sequence      int
	Updating      bool
	UpdatingSince *time.Time
	createdAt     time.Time
	updatedAt     time.Time
}

// NewPlaylist creates an idle Playlist with both timestamps set to now.
func NewPlaylist(key PlaylistKey) *Playlist {
	now := time.Now()
	return &Playlist{Key: key, createdAt: now, updatedAt: now}
}

// RestorePlaylist rebuilds a Playlist read from storage.
func RestorePlaylist(key PlaylistKey, sequence int, updating bool, since *time.Time, createdAt, updatedAt time.Time) *Playlist {
	return &Playlist{
		Key:           key,
		Sequence:      sequence,
		Updating:      updating,
		UpdatingSince: since,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}

func (p *Playlist) CreatedAt() time.Time { return p.createdAt }
func (p *Playlist) UpdatedAt() time.Time { return p.updatedAt }
func (p *Playlist) Validate() error      { return p.Key.Validate() }

// Refreshable reports whether a refresh may be triggered at now.
//
// An idle playlist is always refreshable. An updating playlist becomes refreshable once its
// lease is older than lease; a zero lease never expires.
func (p *Playlist) Refreshable(now time.Time, lease time.Duration) bool {
	if !p.Updating {
		return true
	}
	if lease <= 0 || p.UpdatingSince == nil {
		return false
	}
	return now.Sub(*p.UpdatingSince) > lease
}

// PlaylistExport represents a playlist with its known videos and subscribers.
type PlaylistExport struct {
	Playlist    *Playlist
	Videos      []*Video
	Subscribers []string
}

// Notification is what a requester receives once a download is resolved.
//
// Exactly one of ArtifactRef and ErrorCode is set.
type Notification struct {
	RequesterID string    `json:"chat_id"`
	RequestRef  string    `json:"message_id,omitempty"`
	Platform    string    `json:"platform"`
	VideoID     string    `json:"video_id"`
	VideoURL    string    `json:"video_url,omitempty"`
	PlaylistURL string    `json:"playlist_url,omitempty"`
	ArtifactRef string    `json:"file_id,omitempty"`
	ErrorCode   ErrorCode `json:"error_code,omitempty"`
	Text        string    `json:"text"`
}
