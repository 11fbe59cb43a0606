package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EnvelopeType discriminates the variants of [Task] and [Answer] on the wire.
type EnvelopeType string

const (
	TypeDownload EnvelopeType = "download"
	TypePlaylist EnvelopeType = "playlist"
)

var (
	ErrUnknownEnvelope = errors.New("unknown envelope type")
	ErrInvalidEnvelope = errors.New("invalid envelope")
)

// Correlation carries what the answer processor needs to route a result back to its requesters.
//
// PlaylistID is set for downloads triggered by a playlist refresh; those are delivered to every subscriber.
type Correlation struct {
	RequesterID string `json:"requester_id,omitempty"`
	RequestRef  string `json:"request_ref,omitempty"`
	PlaylistID  string `json:"playlist_id,omitempty"`
}

// Task is a unit of work for the worker pool: a [DownloadTask] or a [PlaylistTask].
type Task interface {
	TaskType() EnvelopeType
	validate() error
}

// DownloadTask asks a worker to fetch one video.
type DownloadTask struct {
	VideoID     string      `json:"video_id"`
	URL         string      `json:"url"`
	Platform    string      `json:"platform"`
	Correlation Correlation `json:"correlation"`
}

func (DownloadTask) TaskType() EnvelopeType { return TypeDownload }

// Key returns the identity of the requested video.
func (t DownloadTask) Key() VideoKey { return VideoKey{Platform: t.Platform, ID: t.VideoID} }

func (t DownloadTask) validate() error {
	if t.VideoID == "" || t.URL == "" || t.Platform == "" {
		return fmt.Errorf("%w: download task requires video_id, url and platform", ErrInvalidEnvelope)
	}
	return nil
}

// PlaylistTask asks a worker to list the current membership of a playlist.
//
// Lease is the updating_since value the router wrote when it took the refresh flag. It comes back on
// the [PlaylistResult] so only the refresh that holds the flag can release it.
type PlaylistTask struct {
	PlaylistID string    `json:"playlist_id"`
	Platform   string    `json:"platform"`
	URL        string    `json:"url"`
	Upload     bool      `json:"upload"`
	Lease      time.Time `json:"lease,omitzero"`
}

func (PlaylistTask) TaskType() EnvelopeType { return TypePlaylist }

// Key returns the identity of the listed playlist.
func (t PlaylistTask) Key() PlaylistKey { return PlaylistKey{Platform: t.Platform, ID: t.PlaylistID} }

func (t PlaylistTask) validate() error {
	if t.PlaylistID == "" || t.URL == "" || t.Platform == "" {
		return fmt.Errorf("%w: playlist task requires playlist_id, url and platform", ErrInvalidEnvelope)
	}
	return nil
}

// Answer is a worker's reply: a [DownloadResult] or a [PlaylistResult].
type Answer interface {
	AnswerType() EnvelopeType
	validate() error
}

// DownloadResult reports the outcome of a [DownloadTask].
//
// Exactly one of ArtifactRef and ErrorCode is set. Cached marks results served from the repository
// without a fetch.
type DownloadResult struct {
	VideoID     string      `json:"video_id"`
	Platform    string      `json:"platform"`
	URL         string      `json:"url,omitempty"`
	ArtifactRef string      `json:"artifact_ref,omitempty"`
	ErrorCode   ErrorCode   `json:"error_code,omitempty"`
	Cached      bool        `json:"cached,omitempty"`
	Correlation Correlation `json:"correlation"`
}

func (DownloadResult) AnswerType() EnvelopeType { return TypeDownload }

// Key returns the identity of the downloaded video.
func (r DownloadResult) Key() VideoKey { return VideoKey{Platform: r.Platform, ID: r.VideoID} }

// Failed reports whether the result carries an error code.
func (r DownloadResult) Failed() bool { return r.ErrorCode != CodeNone }

func (r DownloadResult) validate() error {
	if r.VideoID == "" || r.Platform == "" {
		return fmt.Errorf("%w: download result requires video_id and platform", ErrInvalidEnvelope)
	}
	if !r.Failed() && r.ArtifactRef == "" {
		return fmt.Errorf("%w: download result requires artifact_ref or error_code", ErrInvalidEnvelope)
	}
	return nil
}

// PlaylistResult reports the full current membership of a playlist, or why it could not be listed.
type PlaylistResult struct {
	PlaylistID string    `json:"playlist_id"`
	Platform   string    `json:"platform"`
	VideoIDs   []string  `json:"video_ids,omitempty"`
	ErrorCode  ErrorCode `json:"error_code,omitempty"`
	Upload     bool      `json:"upload"`
	Lease      time.Time `json:"lease,omitzero"`
}

func (PlaylistResult) AnswerType() EnvelopeType { return TypePlaylist }

// Key returns the identity of the listed playlist.
func (r PlaylistResult) Key() PlaylistKey { return PlaylistKey{Platform: r.Platform, ID: r.PlaylistID} }

// Failed reports whether the result carries an error code.
func (r PlaylistResult) Failed() bool { return r.ErrorCode != CodeNone }

func (r PlaylistResult) validate() error {
	if r.PlaylistID == "" || r.Platform == "" {
		return fmt.Errorf("%w: playlist result requires playlist_id and platform", ErrInvalidEnvelope)
	}
	return nil
}

type header struct {
	Type EnvelopeType `json:"type"`
}

// EncodeTask serializes a task with its type tag.
func EncodeTask(t Task) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	switch t := t.(type) {
	case DownloadTask:
		return json.Marshal(struct {
			Type EnvelopeType `json:"type"`
			DownloadTask
		}{TypeDownload, t})
	case PlaylistTask:
		return json.Marshal(struct {
			Type EnvelopeType `json:"type"`
			PlaylistTask
		}{TypePlaylist, t})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEnvelope, t)
	}
}

// DecodeTask parses a task envelope. Unknown types and incomplete envelopes are errors.
func DecodeTask(data []byte) (Task, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	var t Task
	switch h.Type {
	case TypeDownload:
		var dt DownloadTask
		if err := json.Unmarshal(data, &dt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
		}
		t = dt
	case TypePlaylist:
		var pt PlaylistTask
		if err := json.Unmarshal(data, &pt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
		}
		t = pt
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnvelope, h.Type)
	}

	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// EncodeAnswer serializes an answer with its type tag.
func EncodeAnswer(a Answer) ([]byte, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}

	switch a := a.(type) {
	case DownloadResult:
		return json.Marshal(struct {
			Type EnvelopeType `json:"type"`
			DownloadResult
		}{TypeDownload, a})
	case PlaylistResult:
		return json.Marshal(struct {
			Type EnvelopeType `json:"type"`
			PlaylistResult
		}{TypePlaylist, a})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEnvelope, a)
	}
}

// DecodeAnswer parses an answer envelope. Unknown types, unknown error codes and incomplete envelopes are errors.
func DecodeAnswer(data []byte) (Answer, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	var a Answer
	switch h.Type {
	case TypeDownload:
		var dr DownloadResult
		if err := json.Unmarshal(data, &dr); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
		}
		a = dr
	case TypePlaylist:
		var pr PlaylistResult
		if err := json.Unmarshal(data, &pr); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
		}
		a = pr
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnvelope, h.Type)
	}

	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}
