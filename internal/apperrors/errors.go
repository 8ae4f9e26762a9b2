// Package apperrors defines the typed error kinds shared across the
// ingestion and query pipelines so the orchestrator can decide retry
// vs. fatal vs. canceled without string-matching error messages.
package apperrors

import (
	"errors"
	"fmt"

	"github.com/vidknora/vidknora/internal/types"
)

// Kind classifies an error for the purposes of stage retry policy and
// user-visible reporting (spec §7).
type Kind string

const (
	KindInput      Kind = "input"      // invalid URL, unavailable video, over-cap duration/size
	KindQuota      Kind = "quota"      // quota exceeded; never retried
	KindTransient  Kind = "transient"  // download/LLM/embedding blips; retried with backoff
	KindParse      Kind = "parse"      // LLM returned non-JSON or malformed JSON
	KindCanceled   Kind = "canceled"   // cooperative cancellation checkpoint tripped
	KindInternal   Kind = "internal"   // invariant violation; fatal
)

// Error is the common typed error wrapping every Kind above.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a typed error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func Input(message string, cause error) *Error     { return New(KindInput, message, cause) }
func Transient(message string, cause error) *Error { return New(KindTransient, message, cause) }
func Parse(message string, cause error) *Error     { return New(KindParse, message, cause) }
func Internal(message string, cause error) *Error  { return New(KindInternal, message, cause) }
func Canceled(message string) *Error               { return New(KindCanceled, message, nil) }

// QuotaExceeded carries the structured payload the caller surfaces to
// users with upgrade hints (spec §7, §4.9). It is always fatal: the
// orchestrator's retry gate never retries a stage that returns one.
type QuotaExceeded struct {
	ResourceKind types.QuotaKind
	Used         float64
	Limit        float64
}

func (e *QuotaExceeded) Error() string {
	return fmt.Sprintf("quota exceeded: %s used=%.2f limit=%.2f", e.ResourceKind, e.Used, e.Limit)
}

// IsRetryable reports whether the orchestrator should retry the stage
// that produced err under the stage's backoff policy (spec §4.10).
func IsRetryable(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == KindTransient
	}
	return false
}

// IsCanceled reports whether err represents a cooperative cancellation
// checkpoint trip rather than a real failure.
func IsCanceled(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == KindCanceled
	}
	return false
}

// AsQuotaExceeded extracts a *QuotaExceeded from err, if any.
func AsQuotaExceeded(err error) (*QuotaExceeded, bool) {
	var q *QuotaExceeded
	ok := errors.As(err, &q)
	return q, ok
}
