package upgrade

import (
	"errors"
	"fmt"
)

var (
	ErrImageTooLarge   = errors.New("firmware image too large")
	ErrNoContentLength = errors.New("response has no content length")
	ErrNoServer        = errors.New("provisioning yielded no server")
	ErrTriggerTimeout  = errors.New("no trigger received")
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// StatusError is a non-200 response to the image request.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.Code)
}

// StageError records which stage an attempt failed in.
type StageError struct {
	State State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stage(s State, err error) error {
	return &StageError{State: s, Err: err}
}
