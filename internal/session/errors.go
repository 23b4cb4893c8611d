package session

import "errors"

var (
	ErrClosed    = errors.New("session closed")
	ErrNoRoom    = errors.New("no active room")
	ErrNoArchive = errors.New("chat archive not configured")
)
