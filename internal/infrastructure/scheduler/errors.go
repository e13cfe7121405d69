package scheduler

import "errors"

var (
	// ErrJobNotFound is returned when a task name is not registered
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)
