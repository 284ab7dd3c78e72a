package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefinition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		wantErr error
	}{
		{
			name:    "valid definition",
			def:     Definition{ID: "abc123", Title: "Async case", Code: "let x;", Solution: "let x = 1;"},
			wantErr: nil,
		},
		{
			name:    "invalid id",
			def:     Definition{ID: "abc 123", Title: "Async case"},
			wantErr: ErrInvalidExerciseID,
		},
		{
			name:    "empty title",
			def:     Definition{ID: "abc123"},
			wantErr: ErrInvalidTitle,
		},
		{
			name:    "seed too large",
			def:     Definition{ID: "abc123", Title: "t", Code: strings.Repeat("a", MaxContentBytes+1)},
			wantErr: ErrContentTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, tt.def.Validate())
		})
	}
}

func TestEvent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		wantErr error
	}{
		{"subscribe", Event{Event: EventSubscribe, ExerciseID: "xyz"}, nil},
		{"subscribe without id", Event{Event: EventSubscribe}, ErrInvalidExerciseID},
		{"unsubscribe bad id", Event{Event: EventUnsubscribe, ExerciseID: "../etc"}, ErrInvalidExerciseID},
		{"implicit code change", Event{Event: EventCodeChange, Code: "x"}, nil},
		{"scoped code change", Event{Event: EventCodeChange, ExerciseID: "xyz", Code: "x"}, nil},
		{"oversized code change", Event{Event: EventCodeChange, Code: strings.Repeat("a", MaxContentBytes+1)}, ErrContentTooLarge},
		{"hub event from client", Event{Event: EventCodeUpdate, ExerciseID: "xyz"}, ErrInvalidEvent},
		{"unknown event", Event{Event: "drop_tables"}, ErrInvalidEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, tt.event.Validate())
		})
	}
}

func TestIsValidParticipantID(t *testing.T) {
	assert.True(t, IsValidParticipantID("student_1"))
	assert.True(t, IsValidParticipantID("0b7c6a52-3f0e-4a43-9a43-2b0f1c9e7d11"))
	assert.False(t, IsValidParticipantID(""))
	assert.False(t, IsValidParticipantID(strings.Repeat("a", 65)))
	assert.False(t, IsValidParticipantID("bob@example.com"))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("mentor")
	assert.NoError(t, err)
	assert.Equal(t, RoleMentor, r)

	r, err = ParseRole("student")
	assert.NoError(t, err)
	assert.Equal(t, RoleStudent, r)

	_, err = ParseRole("admin")
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = ParseRole("")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestRole_CanEditAndToggle(t *testing.T) {
	assert.False(t, RoleMentor.CanEdit())
	assert.True(t, RoleStudent.CanEdit())
	assert.Equal(t, RoleStudent, RoleMentor.Toggle())
	assert.Equal(t, RoleMentor, RoleStudent.Toggle())
	assert.Equal(t, RoleMentor, DefaultRole)
}

func TestUpdate_Event(t *testing.T) {
	first := Update{ExerciseID: "ex1", Content: "a", Snapshot: true}.Event()
	assert.Equal(t, Event{Event: EventSnapshot, ExerciseID: "ex1", Code: "a"}, first)

	later := Update{ExerciseID: "ex1", SenderID: "c1", Content: "b"}.Event()
	assert.Equal(t, Event{Event: EventCodeUpdate, ExerciseID: "ex1", Code: "b"}, later)
}
