package lobby

import "errors"

var (
	ErrNotJoined       = errors.New("lobby not joined")
	ErrAlreadyJoined   = errors.New("lobby already joined")
	ErrInvalidInvite   = errors.New("invite needs a user and a room code")
	ErrNoPendingInvite = errors.New("no pending invite")
)
