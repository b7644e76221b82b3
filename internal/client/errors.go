package client

import "errors"

var (
	// ErrNotConnected is returned when the server did not answer within
	// the discovery or join window.
	ErrNotConnected = errors.New("not connected")
	ErrOutOfBounds  = errors.New("coordinate out of bounds")
	ErrNotJoined    = errors.New("player not alive")
	ErrUnknownGame  = errors.New("unknown game")
	ErrClosed       = errors.New("closed")
)
