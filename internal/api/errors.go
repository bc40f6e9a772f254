package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrForbidden = errors.New("forbidden")
	ErrNetwork   = errors.New("network failure")
	ErrRejected  = errors.New("request rejected")
	ErrCanceled  = errors.New("request canceled")
)

// Error is the typed failure every endpoint returns. Kind is one of the
// sentinel errors above; Message is the human-readable text extracted from the
// response body (or a fallback when the server sent none).
type Error struct {
	Status  int
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsCanceled reports whether err came from the caller abandoning the request.
// Callers must treat it as "ignore, do not update state", never as a failure.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

// IsTerminal reports failures after which the session cannot be resumed
// without leaving and rejoining.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden)
}

// Message turns any error into the short string shown to the user. It is the
// only place transport errors are translated; cancellation yields "".
func Message(err error) string {
	if err == nil || IsCanceled(err) {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		switch apiErr.Kind {
		case ErrNetwork:
			return "Unable to reach the server. Check your connection."
		case ErrNotFound:
			return "This party no longer exists."
		case ErrForbidden:
			return "You are no longer part of this party."
		}
	}
	return err.Error()
}

func kindForStatus(status int) error {
	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrForbidden
	case status >= 500:
		return ErrNetwork
	default:
		return ErrRejected
	}
}

type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// decodeError builds an *Error from a non-2xx response.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &Error{
		Status:  resp.StatusCode,
		Kind:    kindForStatus(resp.StatusCode),
		Message: extractMessage(raw, resp.StatusCode),
	}
}

func extractMessage(raw []byte, status int) string {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		if msg := detailMessage(body.Detail); msg != "" {
			return msg
		}
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" && len(text) < 200 && !strings.HasPrefix(text, "{") {
		return text
	}
	return http.StatusText(status)
}

// detailMessage accepts both `"detail": "text"` and the validation-list form
// `"detail": [{"msg": "text"}, ...]`.
func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if item.Msg != "" {
				parts = append(parts, item.Msg)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}
