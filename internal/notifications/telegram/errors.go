package telegram

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError is returned when Telegram answers 429.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("telegram rate limited, retry after %s: %s", e.RetryAfter, e.Message)
}

// IsRetryable returns true, the request may succeed after RetryAfter.
func (e *RateLimitError) IsRetryable() bool { return true }

// PermanentError indicates a request that will keep failing: blocked bot, unknown chat, bad token.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("telegram error %d: %s", e.Code, e.Message)
}

// IsRetryable returns false as permanent errors should not be retried.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError indicates a temporary network or server failure.
type RetryableError struct {
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("telegram error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("telegram error: %s", e.Message)
}

// IsRetryable returns true as these errors are temporary.
func (e *RetryableError) IsRetryable() bool { return true }

// IsRetryable reports whether err is a telegram error worth retrying.
func IsRetryable(err error) bool {
	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

// GetRetryAfter returns the wait requested by a rate limit error, 0 otherwise.
func GetRetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}
