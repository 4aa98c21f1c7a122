package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("anthropic")

	if GetErrorCode(err) != ErrUpstreamError {
		t.Fatalf("expected code %s, got %s", ErrUpstreamError, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestError_WrappedLookup(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("call failed: %w", NewRateLimitError("slow down"))
	if !IsRetryable(wrapped) {
		t.Fatalf("expected wrapped rate limit to be retryable")
	}
	if !IsErrorCode(wrapped, ErrRateLimited) {
		t.Fatalf("expected code %s, got %s", ErrRateLimited, GetErrorCode(wrapped))
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatalf("plain errors must not be retryable")
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status    int
		code      ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, ErrAuthentication, false},
		{http.StatusTooManyRequests, ErrRateLimited, true},
		{http.StatusGatewayTimeout, ErrTimeout, true},
		{529, ErrModelOverloaded, true},
		{http.StatusInternalServerError, ErrUpstreamError, true},
		{http.StatusBadRequest, ErrInvalidRequest, false},
	}
	for _, tc := range cases {
		err := ClassifyHTTPStatus(tc.status, "x")
		if err.Code != tc.code {
			t.Fatalf("status %d: expected %s, got %s", tc.status, tc.code, err.Code)
		}
		if err.Retryable != tc.retryable {
			t.Fatalf("status %d: expected retryable=%v", tc.status, tc.retryable)
		}
	}
}
