package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrNetworkUnavailable covers every transport level failure, timeouts
	// included.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrTimeout is returned when a request exceeded its deadline. It also
	// matches ErrNetworkUnavailable.
	ErrTimeout = errors.New("request timed out")
	// ErrUnauthorized is returned for a 401 that survived session recovery.
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// Detail returns the server supplied message, if the body carried one.
func (e *APIError) Detail() string {
	var envelope struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(e.Body), &envelope); err != nil {
		return ""
	}
	if envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return envelope.Message
}

type transportError struct {
	timeout bool
	err     error
}

func (e *transportError) Error() string {
	if e.timeout {
		return fmt.Sprintf("%s: %v", ErrTimeout, e.err)
	}
	return fmt.Sprintf("%s: %v", ErrNetworkUnavailable, e.err)
}

func (e *transportError) Unwrap() error { return e.err }

func (e *transportError) Is(target error) bool {
	switch target {
	case ErrNetworkUnavailable:
		return true
	case ErrTimeout:
		return e.timeout
	}
	return false
}

func classifyTransport(err error) error {
	if err == nil {
		return nil
	}
	timeout := errors.Is(err, context.DeadlineExceeded)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		timeout = true
	}
	return &transportError{timeout: timeout, err: err}
}

// IsValidation reports a 4xx rejection of a request other than 401.
func IsValidation(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.StatusCode >= 400 && ae.StatusCode < 500 && ae.StatusCode != http.StatusUnauthorized
}

// IsNotFound reports a 404 response.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}

// Detail returns the server message carried by err, or "".
func Detail(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		return strings.TrimSpace(ae.Detail())
	}
	return ""
}
