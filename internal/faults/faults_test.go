package faults

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(New(KindNotFound, "item not found")))
	assert.Equal(t, KindInternal, KindOf(errors.New("raw driver error")))

	wrapped := fmt.Errorf("reserving stock: %w", New(KindInsufficientStock, "only 2 left"))
	assert.Equal(t, KindInsufficientStock, KindOf(wrapped))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:          http.StatusNotFound,
		KindAlreadyExists:     http.StatusConflict,
		KindInvalidArgument:   http.StatusBadRequest,
		KindUnauthenticated:   http.StatusUnauthorized,
		KindInsufficientStock: http.StatusConflict,
		KindInvalidTransition: http.StatusConflict,
		KindConflict:          http.StatusConflict,
		KindInternal:          http.StatusInternalServerError,
		KindTimeout:           http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), "kind %s", kind)
	}
}

func TestCodeRoundTrip(t *testing.T) {
	kinds := []Kind{
		KindNotFound, KindAlreadyExists, KindInvalidArgument, KindUnauthenticated,
		KindInsufficientStock, KindInvalidTransition, KindConflict, KindInternal, KindTimeout,
	}
	for _, kind := range kinds {
		assert.Equal(t, kind, FromCode(string(kind)))
	}
	assert.Equal(t, KindInternal, FromCode("SOMETHING_ELSE"))
	assert.Equal(t, KindInternal, FromCode(""))
}

func TestFromTransport(t *testing.T) {
	assert.NoError(t, FromTransport(nil))

	err := FromTransport(context.DeadlineExceeded)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.True(t, Retryable(err))

	err = FromTransport(errors.New("connection refused"))
	assert.Equal(t, KindInternal, KindOf(err))

	// An already classified fault passes through untouched.
	orig := New(KindConflict, "status changed underneath us")
	assert.Equal(t, KindConflict, KindOf(FromTransport(orig)))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(New(KindTimeout, "deadline exceeded")))
	assert.True(t, Retryable(New(KindInternal, "store unavailable")))
	assert.False(t, Retryable(New(KindInsufficientStock, "only 1 left")))
	assert.False(t, Retryable(New(KindConflict, "already approved")))
	assert.False(t, Retryable(New(KindNotFound, "no such request")))
}

func TestResponse(t *testing.T) {
	status, payload := Response(New(KindInsufficientStock, "requested 5, available 2"))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INSUFFICIENT_STOCK", payload.Code)
	assert.Equal(t, "requested 5, available 2", payload.Message)

	// Raw errors never leak their message to the client.
	status, payload = Response(errors.New("pq: relation does not exist"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL", payload.Code)
	assert.Equal(t, "internal error", payload.Message)
}
