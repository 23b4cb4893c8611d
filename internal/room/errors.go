package room

import "errors"

var (
	ErrEmptyMessage  = errors.New("message body is empty")
	ErrNotJoined     = errors.New("room channel not joined")
	ErrAlreadyJoined = errors.New("room channel already joined")
	ErrCallsDisabled = errors.New("calls are disabled for this room")
	ErrClosed        = errors.New("room closed")
)
