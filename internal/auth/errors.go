package auth

import "errors"

var (
	ErrMissingFields   = errors.New("missing required fields")
	ErrNoToken         = errors.New("backend returned no token")
	ErrNoUser          = errors.New("backend returned no user")
	ErrUnauthenticated = errors.New("not authenticated")
)
