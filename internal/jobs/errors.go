package jobs

import "errors"

// ErrNotFound is returned when a job does not exist.
var ErrNotFound = errors.New("job not found")

// ErrNotActive is returned when cancelling a job that already finished.
var ErrNotActive = errors.New("job is not active")
