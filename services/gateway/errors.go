package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrAuth marks failures of the access-token endpoint.
	ErrAuth = errors.New("gateway: authentication failed")

	ErrInvalidPhone  = errors.New("gateway: phone must be 254 followed by 9 digits")
	ErrInvalidAmount = errors.New("gateway: amount must be a positive whole number")

	// ErrNotAccepted marks a parsed response whose ResponseCode is not "0".
	ErrNotAccepted = errors.New("gateway: request not accepted")
	// ErrMalformedResponse marks a 2xx response that could not be decoded.
	ErrMalformedResponse = errors.New("gateway: malformed response")
)

// GatewayError is any failed provider call. Body keeps the raw response for
// diagnostics.
type GatewayError struct {
	Op         string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("gateway %s failed", e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (http %d)", e.StatusCode)
	}
	var eb errorBody
	if len(e.Body) > 0 && json.Unmarshal(e.Body, &eb) == nil && eb.ErrorMessage != "" {
		msg += fmt.Sprintf(": %s %s", eb.ErrorCode, eb.ErrorMessage)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Diagnostic returns the raw provider payload, truncated for logging.
func (e *GatewayError) Diagnostic() string {
	const max = 2048
	if len(e.Body) > max {
		return string(e.Body[:max]) + "..."
	}
	return string(e.Body)
}

// IsRejected reports whether err proves the provider did not accept the
// request: a local validation failure, a failed token fetch, a 4xx, or a
// decoded non-zero ResponseCode. Transport failures, 5xx and unreadable
// bodies are not rejections: the request may have been processed.
func IsRejected(err error) bool {
	switch {
	case errors.Is(err, ErrAuth), errors.Is(err, ErrInvalidPhone), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrNotAccepted):
		return true
	case errors.Is(err, ErrMalformedResponse):
		return false
	}
	var ge *GatewayError
	return errors.As(err, &ge) && ge.StatusCode >= 400 && ge.StatusCode < 500
}
