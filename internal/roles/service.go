package roles

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"codeblocks/pkg/interfaces"
	"codeblocks/pkg/types"
)

// Policy decides which role requests are granted
type Policy string

const (
	// PolicyIndependent grants every request; any number of mentors per exercise
	PolicyIndependent Policy = "independent"

	// PolicySingleMentor allows at most one mentor per exercise
	PolicySingleMentor Policy = "single_mentor"
)

// ParsePolicy converts a configuration value
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyIndependent, PolicySingleMentor:
		return Policy(s), nil
	case "":
		return PolicyIndependent, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

type assignmentKey struct {
	exerciseID    string
	participantID string
}

// Service implements interfaces.RoleAssigner
// ARCHITECTURAL DISCOVERY: Assignments are few and written rarely, so a single
// mutex serializes Assign and keeps the single_mentor check atomic
type Service struct {
	dbManager interfaces.DatabaseManager
	catalog   interfaces.ExerciseCatalog
	policy    Policy
	logger    *zap.SugaredLogger
	cache     map[assignmentKey]types.Role
	mu        sync.Mutex
}

// NewService creates a role assignment service
func NewService(dbManager interfaces.DatabaseManager, catalog interfaces.ExerciseCatalog, policy Policy, logger *zap.SugaredLogger) *Service {
	return &Service{
		dbManager: dbManager,
		catalog:   catalog,
		policy:    policy,
		logger:    logger,
		cache:     make(map[assignmentKey]types.Role),
	}
}

// Policy returns the active policy
func (s *Service) Policy() Policy {
	return s.policy
}

// Assign resolves or changes a participant's role for one exercise.
// With proposed == nil an existing record is returned unchanged and a missing
// one is created with the default role. With proposed != nil the request is
// checked against the policy, persisted and confirmed.
func (s *Service) Assign(ctx context.Context, exerciseID, participantID string, proposed *types.Role) (types.Role, error) {
	if !types.IsValidParticipantID(participantID) {
		return "", types.ErrInvalidParticipantID
	}
	if proposed != nil {
		if _, err := types.ParseRole(string(*proposed)); err != nil {
			return "", err
		}
	}
	if _, err := s.catalog.Get(ctx, exerciseID); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, found, err := s.lookup(ctx, exerciseID, participantID)
	if err != nil {
		return "", err
	}

	var desired types.Role
	switch {
	case proposed == nil && found:
		return current, nil

	case proposed == nil:
		desired = types.DefaultRole
		if desired == types.RoleMentor && s.policy == PolicySingleMentor {
			taken, err := s.mentorTaken(ctx, exerciseID, participantID)
			if err != nil {
				return "", err
			}
			if taken {
				desired = types.RoleStudent
			}
		}

	default:
		desired = *proposed
		if found && desired == current {
			return current, nil
		}
		if desired == types.RoleMentor && s.policy == PolicySingleMentor {
			taken, err := s.mentorTaken(ctx, exerciseID, participantID)
			if err != nil {
				return "", err
			}
			if taken {
				s.logger.Infow("role change rejected",
					"exercise_id", exerciseID, "participant_id", participantID, "requested", desired)
				return "", interfaces.ErrRoleChangeRejected
			}
		}
	}

	assignment := &types.RoleAssignment{
		ExerciseID:    exerciseID,
		ParticipantID: participantID,
		Role:          desired,
		UpdatedAt:     time.Now().UTC(),
	}
	if err := s.dbManager.SaveRoleAssignment(ctx, assignment); err != nil {
		return "", fmt.Errorf("failed to save role assignment: %w", err)
	}
	s.cache[assignmentKey{exerciseID, participantID}] = desired

	s.logger.Infow("role assigned",
		"exercise_id", exerciseID, "participant_id", participantID, "role", desired, "requested", proposed != nil)
	return desired, nil
}

// lookup must be called with s.mu held
func (s *Service) lookup(ctx context.Context, exerciseID, participantID string) (types.Role, bool, error) {
	key := assignmentKey{exerciseID, participantID}
	if role, ok := s.cache[key]; ok {
		return role, true, nil
	}

	assignment, err := s.dbManager.GetRoleAssignment(ctx, exerciseID, participantID)
	if errors.Is(err, interfaces.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load role assignment: %w", err)
	}

	s.cache[key] = assignment.Role
	return assignment.Role, true, nil
}

// mentorTaken reports whether a participant other than participantID holds mentor
func (s *Service) mentorTaken(ctx context.Context, exerciseID, participantID string) (bool, error) {
	assignments, err := s.dbManager.ListRoleAssignments(ctx, exerciseID)
	if err != nil {
		return false, fmt.Errorf("failed to list role assignments: %w", err)
	}
	for _, a := range assignments {
		if a.Role == types.RoleMentor && a.ParticipantID != participantID {
			return true, nil
		}
	}
	return false, nil
}
