package domain

import "errors"

// Sentinel errors shared across packages. Callers match them with errors.Is;
// wrapping with fmt.Errorf("...: %w", err) preserves the classification.
var (
	// ErrNotFound is returned by caches and stores on a missing key.
	ErrNotFound = errors.New("not found")

	// ErrRateLimitExceeded means a quota was exhausted: either the local
	// token bucket rejected the call in non-blocking mode, or the upstream
	// answered 429. Retryable.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrTransientNetwork covers timeouts, connection resets and 5xx
	// responses. Retryable.
	ErrTransientNetwork = errors.New("transient network failure")

	// ErrUpstreamRejected covers 4xx responses other than 429. The request
	// itself is wrong; retrying cannot help.
	ErrUpstreamRejected = errors.New("upstream rejected request")

	// ErrDeserialization means the upstream payload could not be decoded.
	// Not retryable.
	ErrDeserialization = errors.New("malformed upstream payload")

	// ErrSegmentTimeout marks a scan segment that did not reach a terminal
	// state before its (or the global) deadline.
	ErrSegmentTimeout = errors.New("segment timed out")

	// ErrSegmentCanceled marks a scan segment abandoned because the caller
	// canceled the scan.
	ErrSegmentCanceled = errors.New("segment canceled")

	// ErrInvalidConfig is returned when a component is constructed with
	// unusable configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)
