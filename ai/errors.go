package ai

import (
	"context"
	"errors"
)

// Capability error taxonomy. Per-call failures are classified into these
// so callers can decide what is worth retrying.
var (
	// ErrCapabilityUnavailable indicates the capability endpoint could not
	// be reached or refused the request. Retryable.
	ErrCapabilityUnavailable = errors.New("capability unavailable")

	// ErrCapabilityTimeout indicates the capability did not answer within
	// the request timeout. Retryable.
	ErrCapabilityTimeout = errors.New("capability timeout")

	// ErrMalformedOutput indicates the capability answered with output that
	// could not be parsed. Not retryable with identical input.
	ErrMalformedOutput = errors.New("malformed capability output")

	// ErrInvalidMaxAttempts indicates RetryWithBackoff was called with a
	// non-positive attempt count.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)

// Retryable reports whether an error is worth retrying with backoff.
// Malformed output is excluded: repeating the same prompt against the same
// content is assumed to reproduce the same failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrCapabilityUnavailable) || errors.Is(err, ErrCapabilityTimeout)
}

// Classify wraps a transport-level error into the capability taxonomy.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrCapabilityTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return errors.Join(ErrCapabilityUnavailable, err)
}
