// Package drive provides an HTTP client for the remote drive API
// with automatic retry, error classification, and auth-failure detection.
package drive

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, drive.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("drive: bad request")
	ErrUnauthorized = errors.New("drive: unauthorized")
	ErrForbidden    = errors.New("drive: forbidden")
	ErrNotFound     = errors.New("drive: not found")
	ErrConflict     = errors.New("drive: conflict")
	ErrThrottled    = errors.New("drive: throttled")
	ErrServerError  = errors.New("drive: server error")
)

// Error wraps a sentinel error with HTTP status code, request ID,
// and the API error body for debugging.
type Error struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *Error) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("drive: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("drive: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// authErrorCodes are the provider error codes that indicate an expired or
// rejected credential, as observed in error response bodies. Matched
// case-insensitively against the structured code field and the raw body.
var authErrorCodes = []string{
	"invalidauthenticationtoken",
	"unauthenticated",
	"tokenexpired",
	"invalid_grant",
}

// apiErrorBody is the provider's structured error envelope.
type apiErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// IsAuthFailure reports whether err represents an authentication failure:
// either an HTTP 401 or a known token-expiry error code in the response
// body. The heuristic lives here, at the adapter boundary, so callers
// never sniff strings themselves.
func IsAuthFailure(err error) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}

	if de.StatusCode == http.StatusUnauthorized {
		return true
	}

	var body apiErrorBody
	if jsonErr := json.Unmarshal([]byte(de.Message), &body); jsonErr == nil && body.Error.Code != "" {
		code := strings.ToLower(body.Error.Code)
		for _, known := range authErrorCodes {
			if code == known {
				return true
			}
		}

		return false
	}

	// Fall back to substring matching for non-JSON error bodies.
	lower := strings.ToLower(de.Message)
	for _, known := range authErrorCodes {
		if strings.Contains(lower, known) {
			return true
		}
	}

	return false
}
