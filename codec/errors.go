package codec

import "github.com/pkg/errors"

// ErrCodec matches every error returned by this package.
var ErrCodec = errors.New("codec error")

var (
	ErrInputTooShort   = &Error{"input too short"}
	ErrOutOfBounds     = &Error{"out of bounds read"}
	ErrBufferOverrun   = &Error{"buffer overrun"}
	ErrUnknownSelector = &Error{"unknown method selector"}
	ErrInvalidAddress  = &Error{"invalid address word"}
	ErrValueOutOfRange = &Error{"value out of range"}
)

// Error is a malformed or truncated payload.
type Error struct {
	msg string
}

func (e *Error) Error() string {
	return "codec: " + e.msg
}

// Is makes every codec error match ErrCodec.
func (e *Error) Is(target error) bool {
	return target == ErrCodec
}
