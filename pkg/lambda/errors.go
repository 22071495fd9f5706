package lambda

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidArgument is raised for malformed calls such as an empty header name
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrWriteAfterEnd is raised when a terminated response is terminated again
	ErrWriteAfterEnd = errors.New("write after end")
	// ErrHeadersSent is raised when a terminated response is mutated
	ErrHeadersSent = errors.New("cannot modify response after it was sent")
	// ErrNotAcceptable marks a failed content negotiation
	ErrNotAcceptable = errors.New("not acceptable")
	// ErrNotFound marks a request no middleware terminated
	ErrNotFound = errors.New("not found")
)

// HTTPError is a structured failure carrying the status it maps to
type HTTPError struct {
	Status     int      `json:"status"`
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Types      []string `json:"types,omitempty"`
	Err        error    `json:"-"`
}

// NewHTTPError creates an HTTPError for status wrapping err
func NewHTTPError(status int, message string, err error) *HTTPError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &HTTPError{Status: status, StatusCode: status, Message: message, Err: err}
}

func (e *HTTPError) Error() string {
	if len(e.Types) > 0 {
		return fmt.Sprintf("%d %s (types: %v)", e.Status, e.Message, e.Types)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// Artifact renders the failure as a plain-text API Gateway result
func (e *HTTPError) Artifact() *Artifact {
	return &Artifact{
		StatusCode: e.Status,
		Headers:    map[string]string{"content-type": "text/plain; charset=utf-8"},
		Body:       e.Message,
	}
}

func notAcceptable(types []string) *HTTPError {
	err := NewHTTPError(http.StatusNotAcceptable, "Not Acceptable", ErrNotAcceptable)
	err.Types = types
	return err
}

// isFatal reports whether err is a usage error that must not be converted
// into a response.
func isFatal(err error) bool {
	return errors.Is(err, ErrWriteAfterEnd) ||
		errors.Is(err, ErrHeadersSent) ||
		errors.Is(err, ErrInvalidArgument)
}

// panicError turns a recovered value into an error
func panicError(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", v)
}
