package types

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// NetworkError reports a request that never produced a response.
type NetworkError struct {
	URL   string
	Cause error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Cause)
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// Timeout reports whether the failure was a deadline or timeout.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Cause, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Cause, &netErr) && netErr.Timeout()
}

// UserMessage returns a short message suitable for terminal output.
func (e *NetworkError) UserMessage() string {
	if e.Timeout() {
		return fmt.Sprintf("request to %s timed out", e.URL)
	}
	return fmt.Sprintf("could not connect to %s: %v", e.URL, e.Cause)
}

// HTTPError reports a response with a non-2xx status.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.StatusCode, e.URL)
}

// UserMessage returns a short message suitable for terminal output.
func (e *HTTPError) UserMessage() string {
	switch {
	case e.StatusCode == http.StatusForbidden:
		return fmt.Sprintf("access to %s is forbidden (403)", e.URL)
	case e.StatusCode == http.StatusNotFound:
		return fmt.Sprintf("%s was not found (404)", e.URL)
	case e.StatusCode >= 500:
		return fmt.Sprintf("server error while fetching %s (%d)", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("request to %s failed with status %d", e.URL, e.StatusCode)
	}
}

// FilesystemErrorKind classifies filesystem failures.
type FilesystemErrorKind string

const (
	FSPermission FilesystemErrorKind = "permission"
	FSNotFound   FilesystemErrorKind = "not_found"
	FSOther      FilesystemErrorKind = "other"
)

// FilesystemError wraps a failed filesystem operation.
type FilesystemError struct {
	Op    string
	Path  string
	Kind  FilesystemErrorKind
	Cause error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *FilesystemError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a short message suitable for terminal output.
func (e *FilesystemError) UserMessage() string {
	switch e.Kind {
	case FSPermission:
		return fmt.Sprintf("permission denied: %s", e.Path)
	case FSNotFound:
		return fmt.Sprintf("no such file or directory: %s", e.Path)
	default:
		return fmt.Sprintf("could not %s %s: %v", e.Op, e.Path, e.Cause)
	}
}

// ValidationError reports bad input detected before any I/O.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// UserMessage returns a short message suitable for terminal output.
func (e *ValidationError) UserMessage() string {
	return e.Message
}

// UserMessage extracts the most specific user-facing message from err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var withMessage interface{ UserMessage() string }
	if errors.As(err, &withMessage) {
		return withMessage.UserMessage()
	}
	return err.Error()
}
