package core

import "errors"

// Error taxonomy shared by the extractor, provider adapters and the
// pipeline. The orchestrator matches these with errors.Is to decide
// between retrying, falling back and failing the run.
var (
	// Non-retryable input errors, surfaced to the caller immediately.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrExtractionFailed  = errors.New("document extraction failed")

	// Non-retryable provider errors: the caller must change something.
	ErrInvalidCredentials = errors.New("invalid provider credentials")
	ErrModelNotFound      = errors.New("model not found")

	// Retryable provider errors, eligible for backoff and fallback.
	// Timeouts are reported as ErrProviderUnavailable.
	ErrRateLimited         = errors.New("provider rate limited")
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrCancelled is a terminal outcome, not a failure.
	ErrCancelled = errors.New("run cancelled")
)

// Retryable reports whether err is transient enough to retry with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrProviderUnavailable)
}
