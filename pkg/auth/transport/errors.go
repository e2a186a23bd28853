package transport

import (
	"errors"
	"fmt"
)

// AuthError is a definitive rejection from the token endpoint. Rejected
// refresh tokens also match session.ErrSessionMissing.
type AuthError struct {
	Status      int
	Code        string
	Description string

	err   error
	cause error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("token endpoint rejected refresh (status %d", e.Status)
	if e.Code != "" {
		msg += ", " + e.Code
	}
	msg += ")"
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return msg
}

func (e *AuthError) Unwrap() []error {
	var errs []error
	if e.err != nil {
		errs = append(errs, e.err)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// RetryableFetchError is a failure worth retrying: a network error, a 5xx
// or a 429 from the token endpoint.
type RetryableFetchError struct {
	Status int // zero for network errors
	Err    error
}

func (e *RetryableFetchError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("token endpoint unreachable: %v", e.Err)
	}
	return fmt.Sprintf("token endpoint unavailable (status %d): %v", e.Status, e.Err)
}

func (e *RetryableFetchError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a *RetryableFetchError.
func IsRetryable(err error) bool {
	var r *RetryableFetchError
	return errors.As(err, &r)
}
