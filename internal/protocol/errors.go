package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformed matches every payload rejected at the parse boundary.
var ErrMalformed = errors.New("malformed payload")

type MalformedError struct {
	Topic string
	Err   error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed payload on %s: %v", e.Topic, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

func malformed(topic string, err error) error {
	return &MalformedError{Topic: topic, Err: err}
}
