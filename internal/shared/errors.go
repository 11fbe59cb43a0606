package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Lookup errors
	ErrNotFound         = fmt.Errorf("not found")
	ErrUnknownPlatform  = fmt.Errorf("unknown platform")
	ErrPlaylistNotFound = fmt.Errorf("playlist not found: %w", ErrNotFound)
	ErrVideoNotFound    = fmt.Errorf("video not found: %w", ErrNotFound)

	// Pipeline errors
	ErrTimeout = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
