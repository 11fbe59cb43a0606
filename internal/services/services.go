// package services defines the pipeline's external collaborators
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/tubeq/internal/models"
)

// Fetcher is the fetch capability of one platform.
type Fetcher interface {
	// Fetch downloads the video at url and returns the path of the local artifact.
	Fetch(ctx context.Context, url string) (string, error)

	// List returns the native ids of every video currently in the playlist at url.
	List(ctx context.Context, url string) ([]string, error)
}

// ArtifactStore persists a fetched artifact and returns its reference.
type ArtifactStore interface {
	Put(ctx context.Context, key models.VideoKey, localPath string) (string, error)
}

// Notifier delivers a resolved download to a requester.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// FetchErrorKind classifies fetch failures that are the video's fault rather than the system's.
type FetchErrorKind int

const (
	FetchUnavailable FetchErrorKind = iota
	FetchUnauthorized
	FetchTooLarge
	FetchMalformed
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchUnavailable:
		return "unavailable"
	case FetchUnauthorized:
		return "unauthorized"
	case FetchTooLarge:
		return "too large"
	case FetchMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Code maps the kind onto the wire error code.
func (k FetchErrorKind) Code() models.ErrorCode {
	switch k {
	case FetchUnavailable:
		return models.CodeNotFound
	case FetchUnauthorized:
		return models.CodeUnauthorized
	case FetchTooLarge:
		return models.CodeTooLarge
	case FetchMalformed:
		return models.CodeBadRequest
	default:
		return models.CodeInternalError
	}
}

// FetchError is a typed fetch failure.
type FetchError struct {
	Kind   FetchErrorKind
	Status int
	Msg    string
}

func (e *FetchError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("fetch failed: %s (status %d)", e.Kind, e.Status)
	}
	return fmt.Sprintf("fetch failed: %s (status %d): %s", e.Kind, e.Status, e.Msg)
}

// ErrorCode maps any fetch or store error onto the wire error code.
// Errors that are not a [*FetchError] are internal.
func ErrorCode(err error) models.ErrorCode {
	if err == nil {
		return models.CodeNone
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind.Code()
	}
	return models.CodeInternalError
}
