package types

import (
	"time"
)

// Role is the participant's relationship to one exercise
type Role string

// ARCHITECTURAL DISCOVERY: Exactly two roles. A mentor observes read-only,
// a student is the permitted editor of the shared buffer
const (
	RoleMentor  Role = "mentor"
	RoleStudent Role = "student"

	// DefaultRole applies when no record exists and no explicit request is made
	DefaultRole = RoleMentor
)

// Wire event names exchanged over the real-time channel
const (
	// client -> hub
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
	EventCodeChange  = "codeChange"

	// hub -> client
	EventSnapshot   = "snapshot"
	EventCodeUpdate = "codeUpdate"
	EventError      = "error"
)

// Definition is the static, immutable description of an exercise
// FUNCTIONAL DISCOVERY: Code is the buffer seed only; the live buffer
// is owned by the hub once a room exists for the exercise
type Definition struct {
	ID           string `json:"id" db:"id"`
	Title        string `json:"title" db:"title"`
	Instructions string `json:"instructions" db:"instructions"`
	Code         string `json:"code" db:"code"`
	Solution     string `json:"solution" db:"solution"`
}

// CatalogEntry is one row of the exercise listing
type CatalogEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// RoleAssignment is the persisted (exercise, participant) -> role record
type RoleAssignment struct {
	ExerciseID    string    `json:"exercise_id" db:"exercise_id"`
	ParticipantID string    `json:"participant_id" db:"participant_id"`
	Role          Role      `json:"role" db:"role"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// BufferSnapshot is the last persisted authoritative content of an exercise
type BufferSnapshot struct {
	ExerciseID string    `json:"exercise_id" db:"exercise_id"`
	Content    string    `json:"content" db:"content"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Event is the envelope for every message on the real-time channel
// ARCHITECTURAL DISCOVERY: ExerciseID scopes every event. Omitting it on
// codeChange falls back to the connection's single active subscription
// Request names the client event an error event answers.
type Event struct {
	Event      string `json:"event"`
	ExerciseID string `json:"exerciseId,omitempty"`
	Code       string `json:"code"`
	Message    string `json:"message,omitempty"`
	Request    string `json:"request,omitempty"`
}

// Update is a full-buffer snapshot delivered to one subscriber.
// Snapshot marks the first delivery after subscribing; every later
// delivery is a peer's publish.
type Update struct {
	ExerciseID string
	SenderID   string
	Content    string
	Snapshot   bool
}

// Event converts the update to its wire form
func (u Update) Event() Event {
	name := EventCodeUpdate
	if u.Snapshot {
		name = EventSnapshot
	}
	return Event{Event: name, ExerciseID: u.ExerciseID, Code: u.Content}
}
