package rate

import "errors"

var (
	// ErrRateLimited is returned by callers that turn a denied [Decision] into an error.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnknownCategory is returned when no rule is configured for a category.
	ErrUnknownCategory = errors.New("unknown rate limit category")
	// ErrBackendUnavailable wraps Redis failures.
	ErrBackendUnavailable = errors.New("rate limit backend unavailable")
)
