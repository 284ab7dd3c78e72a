package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidExerciseID    = errors.New("exercise ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidParticipantID = errors.New("participant ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidRole          = errors.New("invalid role: must be 'mentor' or 'student'")
	ErrInvalidTitle         = errors.New("exercise title must be 1-200 characters")
	ErrInvalidEvent         = errors.New("invalid event type")
	ErrContentTooLarge      = errors.New("buffer content exceeds 256KB limit")
)
