package peer

import (
	"errors"
	"fmt"

	"roomlink/internal/models"
)

var (
	ErrUnexpectedSignal   = errors.New("signal not valid in current state")
	ErrCallInProgress     = errors.New("call already in progress")
	ErrCallAborted        = errors.New("call aborted")
	ErrClosed             = errors.New("negotiator closed")
	ErrDataChannelNotOpen = errors.New("data channel not open")
)

// MediaError means local media could not be acquired; the call is aborted.
type MediaError struct {
	Err error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("media acquisition failed: %v", e.Err)
}

func (e *MediaError) Unwrap() error {
	return e.Err
}

// SignalError reports a signaling message that could not be applied.
type SignalError struct {
	Event models.EventType
	State State
	Err   error
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("%s in state %s: %v", e.Event, e.State, e.Err)
}

func (e *SignalError) Unwrap() error {
	return e.Err
}
