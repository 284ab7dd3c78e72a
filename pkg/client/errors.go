package client

import "errors"

// Errors surfaced to the presentation layer. None are retried automatically.
var (
	ErrNotFound           = errors.New("exercise not found")
	ErrUnavailable        = errors.New("service unavailable")
	ErrRoleChangeRejected = errors.New("role change rejected")

	ErrReadOnly          = errors.New("mentor view is read-only")
	ErrSolutionHidden    = errors.New("solution is only shown to students")
	ErrChannelClosed     = errors.New("channel closed")
	ErrAlreadySubscribed = errors.New("already subscribed to exercise")
	ErrNoLoginSession    = errors.New("no login session id in the environment")
)

// HubError is an error event reported by the hub
type HubError struct {
	ExerciseID string
	Message    string
}

func (e *HubError) Error() string {
	if e.ExerciseID == "" {
		return "hub: " + e.Message
	}
	return "hub: " + e.ExerciseID + ": " + e.Message
}
