package faults

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a failure into the closed taxonomy shared by every service.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindAlreadyExists     Kind = "ALREADY_EXISTS"
	KindInvalidArgument   Kind = "INVALID_ARGUMENT"
	KindUnauthenticated   Kind = "UNAUTHENTICATED"
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindConflict          Kind = "CONFLICT"
	KindInternal          Kind = "INTERNAL"
	KindTimeout           Kind = "TIMEOUT"
)

// Fault is the only error type allowed to cross a service boundary.
type Fault struct {
	Kind    Kind
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// New creates a Fault of the given kind.
func New(kind Kind, message string) error {
	return &Fault{Kind: kind, Message: message}
}

// Errorf creates a Fault with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the taxonomy kind from an error chain.
// Anything that is not a Fault is classified as Internal.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether a failed remote call may be retried.
// Timeouts are never assumed to have succeeded, so they retry like
// any other transient internal failure.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindInternal:
		return true
	default:
		return false
	}
}

// FromTransport wraps a client-side transport error. Deadline expiry and
// network errors become Timeout so the caller's retry logic applies.
func FromTransport(err error) error {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Fault{Kind: KindTimeout, Message: err.Error()}
	}
	return &Fault{Kind: KindInternal, Message: err.Error()}
}

// FromCode turns a wire code back into its kind. Unknown codes degrade to
// Internal rather than leaking transport detail upward.
func FromCode(code string) Kind {
	switch Kind(code) {
	case KindNotFound, KindAlreadyExists, KindInvalidArgument, KindUnauthenticated,
		KindInsufficientStock, KindInvalidTransition, KindConflict, KindInternal, KindTimeout:
		return Kind(code)
	default:
		return KindInternal
	}
}

// HTTPStatus maps a kind to the status used on the wire and at the client edge.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists, KindInsufficientStock, KindInvalidTransition, KindConflict:
		return http.StatusConflict
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Payload is the structured {code, message} body every failure answers with.
type Payload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response renders err as an HTTP status plus a wire payload. Internal
// detail is not exposed: only the taxonomy code and the fault message travel.
func Response(err error) (int, Payload) {
	kind := KindOf(err)
	message := "internal error"
	var f *Fault
	if errors.As(err, &f) {
		message = f.Message
	}
	return HTTPStatus(kind), Payload{Code: string(kind), Message: message}
}
