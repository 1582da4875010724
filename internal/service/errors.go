package service

import "fmt"

// InvalidQueryError indicates a malformed search query: a bad bounding box,
// a negative radius, or pagination that is still invalid after clamping.
// It is surfaced to the caller immediately and never cached or retried.
type InvalidQueryError struct {
	Message string
}

// Error implements the error interface.
func (e InvalidQueryError) Error() string {
	return e.Message
}

// SearchBackendError indicates a data-store or full-text-search call failed.
// The caller decides retry policy; the core never converts it into an empty
// result set.
type SearchBackendError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e SearchBackendError) Error() string {
	return fmt.Sprintf("search backend %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause.
func (e SearchBackendError) Unwrap() error {
	return e.Err
}

// SearchTimeoutError indicates a backend call exceeded the configured
// timeout. Transient; eligible for caller-side retry.
type SearchTimeoutError struct {
	Op string
}

// Error implements the error interface.
func (e SearchTimeoutError) Error() string {
	return fmt.Sprintf("search backend %s timed out", e.Op)
}
