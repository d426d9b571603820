package provider

import (
	"errors"
	"fmt"

	"resume-aggregator/internal/core"
)

// Class categorizes an upstream failure and determines how the retry policy
// reacts to it.
type Class int

const (
	// ClassUnknown covers non-2xx statuses with no retry semantics; fatal
	// for the call without further attempts.
	ClassUnknown Class = iota
	// ClassAuthExpired means the credential is past its window; refresh
	// before the call, not fatal by itself.
	ClassAuthExpired
	// ClassRateLimited covers 403 and 429: rotate the credential, back off,
	// retry within the budget.
	ClassRateLimited
	// ClassTransient covers 504 and connection-level failures: back off and
	// retry without rotating.
	ClassTransient
	// ClassNotFound is only meaningful for single-entity lookups and maps
	// to an absent result rather than a failure.
	ClassNotFound
	// ClassValidation marks malformed caller input rejected before any
	// upstream call.
	ClassValidation
	// ClassUpstreamShape marks a response missing an expected field or
	// list; callers degrade to an empty default.
	ClassUpstreamShape
)

func (c Class) String() string {
	switch c {
	case ClassAuthExpired:
		return "auth_expired"
	case ClassRateLimited:
		return "rate_limited"
	case ClassTransient:
		return "transient"
	case ClassNotFound:
		return "not_found"
	case ClassValidation:
		return "validation"
	case ClassUpstreamShape:
		return "upstream_shape"
	default:
		return "unknown"
	}
}

// Error is a classified upstream failure carrying enough call context to
// diagnose without replaying the request.
type Error struct {
	Class    Class
	Provider core.Provider
	Endpoint string
	Page     int
	Status   int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Provider, e.Endpoint, e.Class)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Page > 0 {
		msg = fmt.Sprintf("%s (page %d)", msg, e.Page)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ClassOf extracts the failure class from an error chain. Errors that are
// not provider errors report ClassUnknown.
func ClassOf(err error) Class {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ClassUnknown
}

// IsNotFound reports whether the error represents an absent entity.
func IsNotFound(err error) bool {
	return ClassOf(err) == ClassNotFound
}

// ClassifyStatus maps an HTTP status code to a failure class. 2xx codes are
// never passed here.
func ClassifyStatus(status int) Class {
	switch {
	case status == 403 || status == 429:
		return ClassRateLimited
	case status == 404:
		return ClassNotFound
	case status == 504:
		return ClassTransient
	default:
		return ClassUnknown
	}
}

// Validationf builds a classified validation error without call context.
func Validationf(format string, args ...any) error {
	return &Error{Class: ClassValidation, Err: fmt.Errorf(format, args...)}
}
