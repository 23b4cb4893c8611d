package services

import (
	"errors"
	"fmt"
)

var (
	ErrRoomCodeRequired = errors.New("room code is required")
	ErrRoomNameRequired = errors.New("room name is required")
)

// DeniedError is the error form of a denied join.
type DeniedError struct {
	Code    string
	Status  int
	Message string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("join %s denied (%d): %s", e.Code, e.Status, e.Message)
}
