package chat

import (
	"errors"
	"fmt"
)

// Error codes reported with engine failures.
const (
	ErrCodeInvalidChannel = "invalid_channel"
	ErrCodeNoToken        = "no_token"
	ErrCodeSendFailed     = "send_failed"
	ErrCodeSyncFailed     = "sync_failed"
)

var (
	ErrInvalidChannel = errors.New("invalid channel")
	ErrNoToken        = errors.New("no auth token")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrEmptyContent   = errors.New("message content is empty")
	ErrSendInFlight   = errors.New("a send is already in flight")
	ErrNotStarted     = errors.New("engine is not running")
	ErrNoConfirmation = errors.New("server returned no message")
)

// SendError is returned when a user-initiated send fails. Content is the
// text the user typed so the view can offer it again.
type SendError struct {
	Content string
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send message: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Code returns the error code for display.
func (e *SendError) Code() string {
	return ErrCodeSendFailed
}

// SyncError is delivered to the alert callback when the first load of a
// channel fails.
type SyncError struct {
	Channel Channel
	Err     error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("load messages for %s: %v", e.Channel, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Code returns the error code for display.
func (e *SyncError) Code() string {
	return ErrCodeSyncFailed
}

// ErrorCode maps an engine error to a stable code for display and logs.
func ErrorCode(err error) string {
	var coded interface{ Code() string }
	switch {
	case err == nil:
		return ""
	case errors.As(err, &coded):
		return coded.Code()
	case errors.Is(err, ErrInvalidChannel):
		return ErrCodeInvalidChannel
	case errors.Is(err, ErrNoToken):
		return ErrCodeNoToken
	default:
		return "internal"
	}
}
