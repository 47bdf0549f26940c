package secure

import (
	"errors"
	"fmt"
)

var (
	// ErrUnexpectedHTTPResponse matches every *StatusError via errors.Is.
	ErrUnexpectedHTTPResponse = errors.New("unexpected HTTP response")

	// ErrRetriesExhausted is returned when a retry cap is configured and reached.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// StatusError reports a non-200 response that is not retried.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP response status: %d (%s %s)", e.StatusCode, e.Method, e.URL)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedHTTPResponse
}

// NetworkError wraps a transport-level failure such as a reset or timeout.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// DecodeError reports a 200 response whose body could not be interpreted.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding response from %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsStatus reports whether err carries an HTTP status failure and returns it.
func IsStatus(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsDecode reports whether err is a response decoding failure.
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
