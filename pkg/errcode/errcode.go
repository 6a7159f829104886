package errcode

import "fmt"

// Error represents a business error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("errcode: %d, msg: %s", e.Code, e.Msg)
}

// New creates a new error with code and message
func New(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap wraps an error with additional context
func (e *Error) Wrap(err error) *Error {
	if err == nil {
		return e
	}
	return &Error{
		Code: e.Code,
		Msg:  fmt.Sprintf("%s: %v", e.Msg, err),
	}
}

// Is reports whether target carries the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Common error codes
var (
	// Success
	ErrSuccess = New(0, "success")

	// Common errors (1xxx)
	ErrInvalidParam   = New(1001, "invalid parameter")
	ErrInternalServer = New(1002, "internal server error")
	ErrUnauthorized   = New(1003, "unauthorized")
	ErrForbidden      = New(1004, "forbidden")
	ErrNotFound       = New(1005, "not found")
	ErrNoPermission   = New(1006, "no permission to access this resource")

	// Auth errors (2xxx)
	ErrTokenInvalid  = New(2001, "token invalid")
	ErrTokenExpired  = New(2002, "token expired")
	ErrTokenMissing  = New(2003, "token missing")
	ErrTokenMismatch = New(2004, "token user mismatch")
	ErrAdminOnly     = New(2005, "admin privilege required")

	// Conversation errors (3xxx)
	ErrConvNotFound     = New(3001, "conversation not found")
	ErrConvCreateFailed = New(3002, "cannot create conversation")
	ErrNotParticipant   = New(3003, "not a conversation participant")
	ErrSelfConversation = New(3004, "cannot start a conversation with yourself")

	// Message errors (4xxx)
	ErrMsgNotFound    = New(4001, "message not found")
	ErrEmptyContent   = New(4002, "message content is empty")
	ErrContentTooLong = New(4003, "message content exceeds maximum length")
	ErrSendFailed     = New(4004, "message send failed")
	ErrLoadFailed     = New(4005, "message load failed")
	ErrNotRetriable   = New(4006, "message is not retriable")

	// Realtime errors (5xxx)
	ErrSubscribeFailed = New(5001, "subscription failed")
	ErrBroadcastFailed = New(5002, "broadcast failed")
	ErrConnOverLimit   = New(5003, "connection over max limit")
	ErrConnClosed      = New(5004, "connection closed")
	ErrInvalidProtocol = New(5005, "invalid protocol")
)
