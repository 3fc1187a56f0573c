package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeRoomNotFound     = "room_not_found"
	ErrCodeRoomExists       = "room_exists"
	ErrCodeNotAMember       = "not_a_member"
	ErrCodeStorageFailure   = "storage_failure"
	ErrCodeBackplaneFailure = "backplane_failure"
	ErrCodeMalformedMessage = "malformed_message"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomExists       = errors.New("room already exists")
	ErrNotAMember       = errors.New("not a member of room")
	ErrStorageFailure   = errors.New("history storage failure")
	ErrBackplaneFailure = errors.New("backplane unavailable")
	ErrMalformedMessage = errors.New("malformed message")
)

// Error wraps a code and human-readable message.
type Error struct {
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func coreError(cause error, code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: cause}
}

// ErrorCode extracts the domain error code from err, or "" if it carries none.
func ErrorCode(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
