package notifications

import "errors"

// Dispatch errors.
var (
	ErrChannelNotConfigured = errors.New("channel not configured")
	ErrUnknownChannel       = errors.New("unknown notification channel")
	ErrAlreadyNotified      = errors.New("content already notified on this channel")
)
