package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrExerciseNotFound   = errors.New("exercise not found")
	ErrRecordNotFound     = errors.New("record not found")
	ErrRoleChangeRejected = errors.New("role change rejected")
)
