package directory

import "errors"

var (
	ErrUserNotFound = errors.New("user not found in principal directory")
	ErrUnavailable  = errors.New("principal directory unavailable")
)
