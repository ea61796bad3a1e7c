package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrSessionExpired means the refresh token was rejected or missing; stored
// credentials have been purged and the user must log in again.
var ErrSessionExpired = errors.New("session expired, login required")

// APIError is an HTTP error response: the server was reached and rejected the call.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d: %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// NetworkError means no response was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: server unreachable: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
