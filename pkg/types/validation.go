package types

import (
	"regexp"
)

// MaxContentBytes bounds a single full-buffer publish
const MaxContentBytes = 256 * 1024

var identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validate ensures the definition can be stored and served
func (d *Definition) Validate() error {
	if !IsValidExerciseID(d.ID) {
		return ErrInvalidExerciseID
	}
	if len(d.Title) < 1 || len(d.Title) > 200 {
		return ErrInvalidTitle
	}
	if len(d.Code) > MaxContentBytes {
		return ErrContentTooLarge
	}
	return nil
}

// Catalog returns the listing view of the definition
func (d *Definition) Catalog() CatalogEntry {
	return CatalogEntry{ID: d.ID, Title: d.Title}
}

// Validate checks an inbound client event
// FUNCTIONAL DISCOVERY: ExerciseID may be empty only for codeChange,
// where the router resolves the implicit scope
func (e *Event) Validate() error {
	switch e.Event {
	case EventSubscribe, EventUnsubscribe:
		if !IsValidExerciseID(e.ExerciseID) {
			return ErrInvalidExerciseID
		}
	case EventCodeChange:
		if e.ExerciseID != "" && !IsValidExerciseID(e.ExerciseID) {
			return ErrInvalidExerciseID
		}
		if len(e.Code) > MaxContentBytes {
			return ErrContentTooLarge
		}
	default:
		return ErrInvalidEvent
	}
	return nil
}

// IsValidExerciseID checks if an exercise identifier meets format requirements
func IsValidExerciseID(id string) bool {
	return isValidIdentifier(id)
}

// IsValidParticipantID checks if a participant handle meets format requirements
// TECHNICAL DISCOVERY: uuid.String() output (36 chars, hex + hyphen) always passes
func IsValidParticipantID(id string) bool {
	return isValidIdentifier(id)
}

// ParseRole converts a wire value into a Role
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleMentor, RoleStudent:
		return Role(s), nil
	default:
		return "", ErrInvalidRole
	}
}

// CanEdit reports whether the role may originate buffer mutations
func (r Role) CanEdit() bool {
	return r == RoleStudent
}

// Toggle returns the opposite role
func (r Role) Toggle() Role {
	if r == RoleStudent {
		return RoleMentor
	}
	return RoleStudent
}

func isValidIdentifier(id string) bool {
	if len(id) < 1 || len(id) > 64 {
		return false
	}
	return identifierRegex.MatchString(id)
}
