package snapshot

import "errors"

var (
	ErrJobAlreadyRunning = errors.New("snapshot job is already running")
	ErrInvalidSchedule   = errors.New("invalid snapshot schedule")
)
