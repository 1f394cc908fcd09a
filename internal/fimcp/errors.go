package fimcp

import (
	"fmt"
	"time"
)

// NetworkError is a transport failure (DNS, connect, reset). Callers may retry.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error [%s]: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// TimeoutError means the bounded request timeout elapsed.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout [%s]: no response after %s", e.Op, e.After)
}

// LoginRequiredError means the session has not completed the external login
// step. LoginURL is where the user has to go; opening it is up to the caller.
type LoginRequiredError struct {
	Tool     string
	LoginURL string
}

func (e *LoginRequiredError) Error() string {
	return fmt.Sprintf("login required for %s: complete login at %s and try again", e.Tool, e.LoginURL)
}

// APIError is an error envelope reported by the server.
type APIError struct {
	Op      string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("api error [%s] %d: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("api error [%s]: %s", e.Op, e.Message)
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http error [%s]: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("http error [%s]: status %d: %s", e.Op, e.StatusCode, e.Body)
}
