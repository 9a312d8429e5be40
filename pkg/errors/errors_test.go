package errors

import (
	stderr "errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestFromStatusCode(t *testing.T) {
	cases := []struct {
		status    int
		code      ErrorCode
		retryable bool
	}{
		{401, ErrCodeAuthenticationFailed, false},
		{403, ErrCodePermissionDenied, false},
		{404, ErrCodeNotFound, false},
		{410, ErrCodeNotFound, false},
		{409, ErrCodeConflict, false},
		{413, ErrCodeQuotaExceeded, false},
		{423, ErrCodeFileLocked, false},
		{429, ErrCodeRateLimited, true},
		{500, ErrCodeServerTransient, true},
		{502, ErrCodeServerTransient, true},
		{503, ErrCodeServerTransient, true},
		{400, ErrCodeClientError, false},
		{418, ErrCodeClientError, false},
	}

	for _, tc := range cases {
		err := FromStatusCode(tc.status, "detail")
		if err.Code != tc.code {
			t.Errorf("status %d: got code %s, want %s", tc.status, err.Code, tc.code)
		}
		if err.Retryable != tc.retryable {
			t.Errorf("status %d: got retryable %v, want %v", tc.status, err.Retryable, tc.retryable)
		}
		if err.HTTPStatus != tc.status {
			t.Errorf("status %d: HTTPStatus not recorded", tc.status)
		}
	}
}

func TestErrorMessageIncludesOpAndPath(t *testing.T) {
	err := New(ErrCodeNotFound, "no such file").WithOp("stat").WithPath("data/model.pkl")

	msg := err.Error()
	if !strings.Contains(msg, "stat") {
		t.Errorf("message %q missing operation", msg)
	}
	if !strings.Contains(msg, "data/model.pkl") {
		t.Errorf("message %q missing path", msg)
	}
	if !strings.Contains(msg, string(ErrCodeNotFound)) {
		t.Errorf("message %q missing code", msg)
	}
}

func TestErrorFallsBackToCauseMessage(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := Wrap(ErrCodeNetworkError, "", cause)

	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("message %q should fall back to cause", err.Error())
	}
}

func TestIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("during copy: %w", New(ErrCodeConflict, "destination exists"))

	if !stderr.Is(wrapped, New(ErrCodeConflict, "")) {
		t.Error("errors.Is should match OSFErrors by code")
	}
	if stderr.Is(wrapped, New(ErrCodeNotFound, "")) {
		t.Error("errors.Is should not match a different code")
	}
	if !IsConflict(wrapped) {
		t.Error("IsConflict should see through wrapping")
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderr.New("boom")
	err := Wrap(ErrCodeServerTransient, "upstream failed", cause)

	if !stderr.Is(err, cause) {
		t.Error("wrapped cause should be reachable via errors.Is")
	}
}

func TestRetryAfterHint(t *testing.T) {
	e := FromStatusCode(429, "throttled")
	e.RetryAfter = 7 * time.Second
	wrapped := fmt.Errorf("list failed: %w", e)

	if got := RetryAfterHint(wrapped); got != 7*time.Second {
		t.Errorf("RetryAfterHint = %v, want 7s", got)
	}
	if got := RetryAfterHint(stderr.New("plain")); got != 0 {
		t.Errorf("RetryAfterHint on plain error = %v, want 0", got)
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if CodeOf(stderr.New("plain")) != "" {
		t.Error("CodeOf on a plain error should be empty")
	}
	if IsRetryable(stderr.New("plain")) {
		t.Error("plain errors are not retryable")
	}
}
