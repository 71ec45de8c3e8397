package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy of the generation pipeline. The messages double as the stable
// `error` field of HTTP error bodies.
var (
	ErrNotFound               = errors.New("not found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrValidation             = errors.New("invalid request")
	ErrQuotaExceeded          = errors.New("quota exceeded")
	ErrUpstreamRateLimited    = errors.New("upstream rate limited")
	ErrUpstreamQuotaExhausted = errors.New("upstream quota exhausted")
	ErrSubmissionFailed       = errors.New("submission failed")
	ErrMalformedSuccess       = errors.New("malformed success response")
	ErrGenerationFailed       = errors.New("generation failed")
	ErrTimeout                = errors.New("generation timed out")
	ErrPersistence            = errors.New("persistence warning")
)

// ValidationError describes a request rejected before any external call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// QuotaError is returned by the quota guard so callers can render usage.
type QuotaError struct {
	Current int
	Limit   int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded: %d/%d generations used this month", e.Current, e.Limit)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// UpstreamError carries diagnostics from a failed provider interaction. Kind is
// one of the upstream sentinels above.
type UpstreamError struct {
	Kind       error
	StatusCode int
	Code       string
	Message    string
	Body       string
	TaskID     string
}

func (e *UpstreamError) Error() string {
	msg := e.Kind.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (http %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	return msg
}

func (e *UpstreamError) Unwrap() error { return e.Kind }

// Details returns the most useful diagnostic string for support triage.
func (e *UpstreamError) Details() string {
	switch {
	case e.Message != "" && e.Code != "":
		return e.Message + " (" + e.Code + ")"
	case e.Message != "":
		return e.Message
	case e.Code != "":
		return e.Code
	default:
		return e.Body
	}
}

// Warning is a non-fatal bookkeeping failure captured after an image was
// successfully produced.
type Warning struct {
	Stage string
	Err   error
}

func (w Warning) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence, w.Stage, w.Err)
}

func (w Warning) Unwrap() error { return w.Err }
