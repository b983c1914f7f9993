package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind categorizes a DispatchError for HTTP-ish status mapping.
type ErrorKind int

const (
	ErrKindInvalidParameters ErrorKind = iota
	ErrKindNotFound
	ErrKindTimeout
	ErrKindUpstream
	ErrKindInternal
	ErrKindAuthentication
	ErrKindPermissionDenied
	ErrKindConflict
	ErrKindCancelled
)

// DispatchError is returned by the dispatcher for every tool/resource
// failure. Handlers are expected to return plain errors; the dispatcher
// wraps unrecognized ones as ErrKindInternal.
type DispatchError struct {
	Kind    ErrorKind
	Target  string // tool name or resource URI
	Message string
	Details map[string]any
	Cause   error
}

func (e *DispatchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *DispatchError) Unwrap() error { return e.Cause }

// HTTPStatus maps Kind to the status code the MCP transport reports it as.
func (e *DispatchError) HTTPStatus() int {
	switch e.Kind {
	case ErrKindInvalidParameters:
		return http.StatusBadRequest
	case ErrKindNotFound:
		return http.StatusNotFound
	case ErrKindTimeout:
		return http.StatusGatewayTimeout
	case ErrKindUpstream:
		return http.StatusBadGateway
	case ErrKindAuthentication:
		return http.StatusUnauthorized
	case ErrKindPermissionDenied:
		return http.StatusForbidden
	case ErrKindConflict:
		return http.StatusConflict
	case ErrKindCancelled:
		return 499 // client closed request, nginx's convention; no stdlib constant exists
	default:
		return http.StatusInternalServerError
	}
}

// NewInvalidParametersError wraps a set of field-level validation issues.
func NewInvalidParametersError(target string, issues []ValidationIssue) *DispatchError {
	details := make(map[string]any, 1)
	details["issues"] = issues
	return &DispatchError{
		Kind:    ErrKindInvalidParameters,
		Target:  target,
		Message: fmt.Sprintf("invalid parameters for %s", target),
		Details: details,
	}
}

// NewNotFoundError reports an unknown tool name or unmatched resource URI.
func NewNotFoundError(target string) *DispatchError {
	return &DispatchError{
		Kind:    ErrKindNotFound,
		Target:  target,
		Message: fmt.Sprintf("not found: %s", target),
	}
}

// NewTimeoutError reports a tool call that exceeded its derived timeout.
func NewTimeoutError(target string, cause error) *DispatchError {
	return &DispatchError{
		Kind:    ErrKindTimeout,
		Target:  target,
		Message: fmt.Sprintf("%s timed out", target),
		Cause:   cause,
	}
}

// NewUpstreamError wraps a failure surfaced by the MAAS API itself.
func NewUpstreamError(target string, cause error) *DispatchError {
	return &DispatchError{
		Kind:    ErrKindUpstream,
		Target:  target,
		Message: fmt.Sprintf("upstream call failed for %s", target),
		Cause:   cause,
	}
}

// NewInternalError wraps an unexpected error from a handler.
func NewInternalError(target string, cause error) *DispatchError {
	return &DispatchError{
		Kind:    ErrKindInternal,
		Target:  target,
		Message: fmt.Sprintf("internal error handling %s", target),
		Cause:   cause,
	}
}

// NewAuthenticationError reports an upstream 401.
func NewAuthenticationError(target string, cause error) *DispatchError {
	return &DispatchError{
		Kind:    ErrKindAuthentication,
		Target:  target,
		Message: fmt.Sprintf("authentication failed for %s", target),
		Cause:   cause,
	}
}

// NewPermissionDeniedError reports an upstream 403.
func NewPermissionDeniedError(target string, cause error) *DispatchError {
	return &DispatchError{
		Kind:    ErrKindPermissionDenied,
		Target:  target,
		Message: fmt.Sprintf("permission denied for %s", target),
		Cause:   cause,
	}
}

// NewConflictError reports an upstream 409.
func NewConflictError(target string, cause error) *DispatchError {
	return &DispatchError{
		Kind:    ErrKindConflict,
		Target:  target,
		Message: fmt.Sprintf("conflict for %s", target),
		Cause:   cause,
	}
}

// NewCancelledError reports a tool call that ended because its caller
// disconnected or its operation was cancelled, distinct from NewTimeoutError
// which reports exceeding a deadline.
func NewCancelledError(target string, cause error) *DispatchError {
	return &DispatchError{
		Kind:    ErrKindCancelled,
		Target:  target,
		Message: fmt.Sprintf("%s cancelled", target),
		Cause:   cause,
	}
}

// statusCoder is implemented by upstream client errors that know their own
// HTTP status code, letting upstream failures map into this taxonomy
// without this package importing the client that produced them.
type statusCoder interface {
	StatusCode() int
}

// newUpstreamErrorFromStatus maps an upstream HTTP status to the error
// kind it represents. Statuses with no dedicated kind fall back to a
// generic upstream error.
func newUpstreamErrorFromStatus(target string, status int, cause error) *DispatchError {
	switch status {
	case http.StatusUnauthorized:
		return NewAuthenticationError(target, cause)
	case http.StatusForbidden:
		return NewPermissionDeniedError(target, cause)
	case http.StatusNotFound:
		return &DispatchError{Kind: ErrKindNotFound, Target: target, Message: fmt.Sprintf("not found: %s", target), Cause: cause}
	case http.StatusConflict:
		return NewConflictError(target, cause)
	default:
		return NewUpstreamError(target, cause)
	}
}

// WrapUpstreamError classifies an error returned by an upstream call into
// this taxonomy: a caller/drain cancellation becomes ErrKindCancelled, an
// error carrying an HTTP status code (see statusCoder) maps per status, and
// anything else is a generic upstream error. Handlers that call out to
// maasclient should return the result of this rather than constructing a
// DispatchError of their own.
func WrapUpstreamError(target string, err error) *DispatchError {
	if errors.Is(err, context.Canceled) {
		return NewCancelledError(target, err)
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return newUpstreamErrorFromStatus(target, sc.StatusCode(), err)
	}
	return NewUpstreamError(target, err)
}

// AsDispatchError unwraps err to a *DispatchError, or nil if it isn't one.
func AsDispatchError(err error) *DispatchError {
	var de *DispatchError
	if errors.As(err, &de) {
		return de
	}
	return nil
}

// toDispatchError normalizes any handler error into a *DispatchError. A
// cancellation or a status-coded upstream error (see statusCoder) maps into
// the matching taxonomy kind; anything else is wrapped as internal.
func toDispatchError(target string, err error) *DispatchError {
	if de := AsDispatchError(err); de != nil {
		return de
	}
	if errors.Is(err, context.Canceled) {
		return NewCancelledError(target, err)
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return newUpstreamErrorFromStatus(target, sc.StatusCode(), err)
	}
	return NewInternalError(target, err)
}

func IsInvalidParameters(err error) bool {
	de := AsDispatchError(err)
	return de != nil && de.Kind == ErrKindInvalidParameters
}

func IsNotFound(err error) bool {
	de := AsDispatchError(err)
	return de != nil && de.Kind == ErrKindNotFound
}

func IsTimeout(err error) bool {
	de := AsDispatchError(err)
	return de != nil && de.Kind == ErrKindTimeout
}

func IsCancelled(err error) bool {
	de := AsDispatchError(err)
	return de != nil && de.Kind == ErrKindCancelled
}
