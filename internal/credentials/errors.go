package credentials

import "errors"

var (
	ErrNoToken = errors.New("no session token")
)
