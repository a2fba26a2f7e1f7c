package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized means the stored session was rejected. Tokens have
	// already been cleared by the time a caller sees it.
	ErrUnauthorized = errors.New("session expired")
	// ErrInvalidCredentials is a 401 from login or register.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnreachable wraps transport failures.
	ErrUnreachable = errors.New("server unreachable")
)

const (
	MsgDailyLimit    = "Daily limit reached. Try again tomorrow."
	MsgFileTooLarge  = "File too large. Maximum 2MB allowed."
	MsgInvalidInput  = "Invalid request. Please check your input."
	MsgNotFound      = "Resource not found."
	MsgServerError   = "Server error. Please try again later."
	MsgUnreachable   = "Could not reach the server. Check your connection."
	MsgUnexpectedErr = "An unexpected error occurred."
)

// APIError is a non-2xx response.
type APIError struct {
	Status int
	Detail string
	Body   []byte
	err    error
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

func (e *APIError) Unwrap() error { return e.err }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// userFacing is implemented by errors that already carry display text,
// such as local guardrail violations.
type userFacing interface {
	UserMessage() string
}

// ErrorMessage maps any error from this package (or a local validation
// error) to the single line shown to the user. The status checks run before
// the server's own detail is consulted, so 429/413/422 always read the same.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var uf userFacing
	if errors.As(err, &uf) {
		return uf.UserMessage()
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusTooManyRequests:
			return MsgDailyLimit
		case http.StatusRequestEntityTooLarge:
			return MsgFileTooLarge
		case http.StatusUnprocessableEntity:
			return MsgInvalidInput
		}
		if apiErr.Detail != "" {
			return apiErr.Detail
		}
		switch apiErr.Status {
		case http.StatusNotFound:
			return MsgNotFound
		case http.StatusInternalServerError:
			return MsgServerError
		}
		return MsgUnexpectedErr
	}
	if errors.Is(err, ErrUnreachable) && !errors.Is(err, context.Canceled) {
		return MsgUnreachable
	}
	return MsgUnexpectedErr
}

// readDetail extracts the server's message from an error body. FastAPI
// validation errors put a list under "detail"; only string values are used.
func readDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var parsed struct {
		Detail  json.RawMessage `json:"detail"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	for _, raw := range []json.RawMessage{parsed.Detail, parsed.Message} {
		var s string
		if len(raw) > 0 && json.Unmarshal(raw, &s) == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}
