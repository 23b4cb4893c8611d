package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotConnected     = errors.New("socket not connected")
	ErrAlreadyConnected = errors.New("socket already connected")
	ErrSocketClosed     = errors.New("socket closed")
	ErrHeartbeatTimeout = errors.New("heartbeat not acknowledged")
	ErrNotJoined        = errors.New("channel not joined")
	ErrAlreadyJoined    = errors.New("channel join already attempted")
)

// TransportError reports a failure of the physical connection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// JoinError is returned when a channel join is refused or times out.
type JoinError struct {
	Topic    string
	Reason   string
	Response json.RawMessage
	Timeout  bool
}

func (e *JoinError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("join %s: timeout", e.Topic)
	}
	return fmt.Sprintf("join %s: %s", e.Topic, e.Reason)
}

// PushError is the outcome of a push answered with error or never answered.
type PushError struct {
	Event    string
	Status   string
	Response json.RawMessage
}

func (e *PushError) Error() string {
	if e.Status == StatusTimeout {
		return fmt.Sprintf("push %s: timeout", e.Event)
	}
	return fmt.Sprintf("push %s: %s %s", e.Event, e.Status, string(e.Response))
}

// IsTimeout reports whether err is a push or join timeout.
func IsTimeout(err error) bool {
	var pushErr *PushError
	if errors.As(err, &pushErr) {
		return pushErr.Status == StatusTimeout
	}
	var joinErr *JoinError
	if errors.As(err, &joinErr) {
		return joinErr.Timeout
	}
	return false
}

// joinReason prefers a "reason" field and falls back to the raw response.
func joinReason(response json.RawMessage) string {
	var body struct {
		Reason string `json:"reason"`
	}
	if json.Unmarshal(response, &body) == nil && body.Reason != "" {
		return body.Reason
	}
	if len(response) == 0 {
		return "error"
	}
	return string(response)
}
