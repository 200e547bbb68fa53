package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	msgUnreachable = "cannot reach service"
	msgTimeout     = "request timed out"
	msgAborted     = "request aborted"
	msgGeneric     = "an unexpected error occurred"
)

// Failure describes one failed call as seen by the transport.
type Failure struct {
	// Err is the transport-level error, if any.
	Err error
	// Aborted is set when the caller gave up on the call.
	Aborted bool
	// Responded is set when an HTTP response was received.
	Responded bool
	Status    int
	Body      []byte
	Elapsed   time.Duration
	Timeout   time.Duration
}

// Classify maps a failure to exactly one Error.
//
// Caller aborts come first and are never retryable. Then, in order: timeout,
// no response at all, 401, 404, 5xx, other 4xx, anything else.
func Classify(f Failure) *Error {
	switch {
	case f.Aborted:
		return &Error{Kind: KindUnknown, Message: msgAborted, Err: f.Err}
	case timedOut(f):
		return &Error{Kind: KindTimeout, Message: msgTimeout, Retryable: true, Err: f.Err}
	case !f.Responded:
		return &Error{Kind: KindNetwork, Message: msgUnreachable, Retryable: true, Err: f.Err}
	}

	kind := kindForStatus(f.Status)
	return &Error{
		Kind:      kind,
		Message:   Message(f.Body, transportMessage(f)),
		Status:    f.Status,
		Retryable: kind.Retryable(),
		Err:       f.Err,
	}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 500:
		return KindServerError
	case status >= 400 && status <= 499:
		return KindValidation
	}
	return KindUnknown
}

func timedOut(f Failure) bool {
	if f.Timeout > 0 && f.Elapsed >= f.Timeout {
		return true
	}
	if f.Err == nil {
		return false
	}
	if errors.Is(f.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(f.Err, &netErr) && netErr.Timeout()
}

func transportMessage(f Failure) string {
	if f.Err != nil {
		return f.Err.Error()
	}
	if f.Status != 0 {
		return fmt.Sprintf("request failed with status code %d", f.Status)
	}
	return ""
}

// Message extracts the user-facing message from an error body. A "detail"
// field wins over "message"; fallback is used when neither is present, and
// a fixed generic string when fallback is empty too.
func Message(body []byte, fallback string) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		if detail := detailText(payload.Detail); detail != "" {
			return detail
		}
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	if fallback != "" {
		return fallback
	}
	return msgGeneric
}

// detailText accepts both a plain string and the list of {msg} objects that
// request validators emit.
func detailText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if json.Unmarshal(raw, &text) == nil {
		return text
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(raw, &items) != nil {
		return ""
	}
	msgs := make([]string, 0, len(items))
	for _, item := range items {
		if item.Msg != "" {
			msgs = append(msgs, item.Msg)
		}
	}
	return strings.Join(msgs, "; ")
}
