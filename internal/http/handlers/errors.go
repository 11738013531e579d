// Package handlers defines HTTP-layer error codes used across all endpoints.
//
// Codes are stable, machine-readable strings: clients and alerting rules key
// off them, so values are append-only.
package handlers

const (
	// ErrCodeAuthFailed covers both signature and allowlist failures; the
	// response body never says which, only the audit log does.
	ErrCodeAuthFailed = "auth_failed"

	// ErrCodeReplayRejected means the delivery ID was already consumed.
	ErrCodeReplayRejected = "replay_rejected"

	// ErrCodeRateLimited means the sender exceeded their window budget.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeBadRequest means the request was structurally invalid (missing
	// form fields), before any pipeline gate ran.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeNotFound is returned for unknown routes.
	ErrCodeNotFound = "not_found"

	// ErrCodeMethodNotAllowed is returned for known routes with wrong verbs.
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// ErrCodeInternal is returned when a pipeline stage failed for an
	// infrastructure reason.
	ErrCodeInternal = "internal_error"
)
