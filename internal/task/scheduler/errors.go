package scheduler

import "errors"

var (
	ErrInvalidArgument = errors.New("scheduler: invalid argument")
	ErrInactive        = errors.New("scheduler: owning context is inactive")
	ErrSequenceTimeout = errors.New("scheduler: sequence timed out")
	ErrPanicked        = errors.New("scheduler: task callback panicked")
)
