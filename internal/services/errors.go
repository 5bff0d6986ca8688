// Package services defines the business logic for meal ingestion, slot
// selection, and favorites. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import "errors"

// Ingestion errors.
var (
	// ErrEmptyInput is returned when a submission carries neither a
	// message nor an image. It fails before any provider call and before
	// any idempotency record is created.
	ErrEmptyInput = errors.New("message or image required")

	// ErrImageTooLarge is returned when the uploaded image exceeds the
	// configured size limit.
	ErrImageTooLarge = errors.New("image too large")

	// ErrAnalysisTimeout indicates the overall analysis budget elapsed
	// before any attempt succeeded. Clients may retry with the same
	// idempotency key after the retention window.
	ErrAnalysisTimeout = errors.New("analysis timed out")

	// ErrAnalysisFailed indicates every analysis attempt failed before
	// the budget expired.
	ErrAnalysisFailed = errors.New("analysis failed")

	// ErrRequestInFlight indicates an idempotency record shows the same
	// submission executing elsewhere; the caller should retry later.
	ErrRequestInFlight = errors.New("request already in flight")
)

// Log and slot errors.
var (
	// ErrLogNotFound indicates that the requested log does not exist or
	// is not accessible to the current user.
	ErrLogNotFound = errors.New("log not found")

	// ErrSlotNotFound indicates the referenced slot candidate does not
	// belong to the log.
	ErrSlotNotFound = errors.New("slot not found")

	// ErrInvalidState is returned when a slot choice targets a log that
	// is not awaiting selection.
	ErrInvalidState = errors.New("log is not awaiting slot choice")
)

// Favorite errors.
var (
	// ErrLogNotFinalized is returned when a favorite is requested from a
	// log whose analysis has not been finalized.
	ErrLogNotFinalized = errors.New("log is not finalized")

	// ErrDuplicateFavorite is returned when the user already saved a
	// favorite from the same source log.
	ErrDuplicateFavorite = errors.New("favorite already exists")
)

// Codes stored in failed idempotency records, so a duplicate submission
// replays the same failure kind.
const (
	codeUpstreamTimeout = "upstream_timeout"
	codeUpstreamFailed  = "upstream_failed"
	codeInternal        = "internal"
)

// IdempotencyCodec returns the error<->code mapping the idempotency guard
// uses to persist and replay failed outcomes.
func IdempotencyCodec() (codeFor func(error) string, errFor func(string) error) {
	codeFor = func(err error) string {
		switch {
		case errors.Is(err, ErrAnalysisTimeout):
			return codeUpstreamTimeout
		case errors.Is(err, ErrAnalysisFailed):
			return codeUpstreamFailed
		}
		return codeInternal
	}
	errFor = func(code string) error {
		switch code {
		case codeUpstreamTimeout:
			return ErrAnalysisTimeout
		case codeUpstreamFailed:
			return ErrAnalysisFailed
		}
		return errors.New("submission previously failed")
	}
	return codeFor, errFor
}
