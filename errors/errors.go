package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrEmptyUserID      = fmt.Errorf("user id is empty")
	ErrMissingRecipient = fmt.Errorf("recipient is missing")
	ErrEmptyText        = fmt.Errorf("message text is empty")
	ErrUnknownUser      = fmt.Errorf("unknown user")
	ErrInvalidToken     = fmt.Errorf("invalid or expired token")
	ErrStoreUnavailable = fmt.Errorf("message store unavailable")
	ErrAckTimeout       = fmt.Errorf("acknowledgement timed out")
	ErrConnectionClosed = fmt.Errorf("connection closed")
	ErrWorkerPanic      = fmt.Errorf("worker panic")
)

// IsValidation reports whether err is a caller contract violation.
// The gateway drops such requests silently instead of returning a
// negative acknowledgement (only persistence failures are nacked).
func IsValidation(err error) bool {
	return stderrors.Is(err, ErrEmptyUserID) ||
		stderrors.Is(err, ErrMissingRecipient) ||
		stderrors.Is(err, ErrEmptyText)
}
