package whatsapp

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError is returned when the Cloud API throttles the business number.
type RateLimitError struct {
	RetryAfter time.Duration
	Code       int
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("whatsapp rate limited (code %d): %s", e.Code, e.Message)
}

// IsRetryable returns true as rate limit errors should be retried.
func (e *RateLimitError) IsRetryable() bool {
	return true
}

// PermanentError is a rejection that will not succeed on retry
// (invalid recipient, template not approved, expired token).
type PermanentError struct {
	Status  int
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("whatsapp error %d/%d: %s", e.Status, e.Code, e.Message)
}

// IsRetryable returns false.
func (e *PermanentError) IsRetryable() bool {
	return false
}

// RetryableError is a transient failure (5xx, network).
type RetryableError struct {
	Status  int
	Message string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("whatsapp error %d: %s", e.Status, e.Message)
}

// IsRetryable returns true.
func (e *RetryableError) IsRetryable() bool {
	return true
}

// IsRetryable checks if the error should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
