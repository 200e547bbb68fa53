package apierr

import (
	"context"
	"errors"
	"testing"
	"time"
)

type netTimeoutError struct{}

func (netTimeoutError) Error() string   { return "i/o timeout" }
func (netTimeoutError) Timeout() bool   { return true }
func (netTimeoutError) Temporary() bool { return true }

func TestClassifyKinds(t *testing.T) {
	refused := errors.New("dial tcp 127.0.0.1:8000: connect: connection refused")

	cases := []struct {
		name      string
		failure   Failure
		kind      Kind
		retryable bool
		message   string
	}{
		{
			name:      "no response",
			failure:   Failure{Err: refused},
			kind:      KindNetwork,
			retryable: true,
			message:   "cannot reach service",
		},
		{
			name:      "deadline exceeded",
			failure:   Failure{Err: context.DeadlineExceeded},
			kind:      KindTimeout,
			retryable: true,
		},
		{
			name:      "net timeout",
			failure:   Failure{Err: netTimeoutError{}},
			kind:      KindTimeout,
			retryable: true,
		},
		{
			name:      "elapsed past timeout",
			failure:   Failure{Responded: true, Status: 502, Elapsed: 2 * time.Second, Timeout: time.Second},
			kind:      KindTimeout,
			retryable: true,
		},
		{
			name:    "unauthorized",
			failure: Failure{Responded: true, Status: 401, Body: []byte(`{"detail":"Invalid credentials"}`)},
			kind:    KindUnauthorized,
			message: "Invalid credentials",
		},
		{
			name:    "not found",
			failure: Failure{Responded: true, Status: 404, Body: []byte(`{"detail":"Image not found"}`)},
			kind:    KindNotFound,
			message: "Image not found",
		},
		{
			name:      "server error",
			failure:   Failure{Responded: true, Status: 503},
			kind:      KindServerError,
			retryable: true,
			message:   "request failed with status code 503",
		},
		{
			name:    "other client error",
			failure: Failure{Responded: true, Status: 422, Body: []byte(`{"message":"threshold out of range"}`)},
			kind:    KindValidation,
			message: "threshold out of range",
		},
		{
			name:    "unexpected status",
			failure: Failure{Responded: true, Status: 302},
			kind:    KindUnknown,
		},
		{
			name:    "aborted",
			failure: Failure{Aborted: true, Err: context.Canceled},
			kind:    KindUnknown,
			message: "request aborted",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.failure)
			if got.Kind != tc.kind {
				t.Fatalf("expected kind %s, got %s", tc.kind, got.Kind)
			}
			if got.Retryable != tc.retryable {
				t.Fatalf("expected retryable=%t, got %t", tc.retryable, got.Retryable)
			}
			if tc.message != "" && got.Message != tc.message {
				t.Fatalf("expected message %q, got %q", tc.message, got.Message)
			}
		})
	}
}

func TestClassifyAbortUnwrapsToContextError(t *testing.T) {
	err := Classify(Failure{Aborted: true, Err: context.Canceled})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected errors.Is(context.Canceled), got %v", err)
	}
	if IsRetryable(err) {
		t.Fatal("aborted calls must not be retryable")
	}
}

func TestMessagePrecedence(t *testing.T) {
	cases := []struct {
		body     string
		fallback string
		want     string
	}{
		{`{"detail":"from detail","message":"from message"}`, "transport", "from detail"},
		{`{"message":"from message"}`, "transport", "from message"},
		{`{"detail":[{"msg":"field required"},{"msg":"not an email"}]}`, "transport", "field required; not an email"},
		{`{"error":"image file is required"}`, "transport", "image file is required"},
		{`not json`, "transport", "transport"},
		{``, "", "an unexpected error occurred"},
	}
	for _, tc := range cases {
		if got := Message([]byte(tc.body), tc.fallback); got != tc.want {
			t.Fatalf("Message(%q) = %q, want %q", tc.body, got, tc.want)
		}
	}
}

func TestHelpers(t *testing.T) {
	wrapped := Wrap(KindServerError, "boom", errors.New("cause"))
	if !IsRetryable(wrapped) {
		t.Fatal("server errors are retryable")
	}
	if KindOf(wrapped) != KindServerError {
		t.Fatalf("unexpected kind %s", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatal("plain errors classify as unknown")
	}
	v := Validation("bad input", nil)
	if !IsKind(v, KindValidation) || v.Retryable {
		t.Fatalf("unexpected validation error %+v", v)
	}
	if got := v.Error(); got != "validation: bad input" {
		t.Fatalf("unexpected Error(): %q", got)
	}
}
