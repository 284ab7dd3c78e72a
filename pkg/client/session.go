package client

import (
	"context"
	"fmt"
	"sync"

	"codeblocks/pkg/types"
	"codeblocks/pkg/verify"
)

// View is everything a presentation layer renders for one exercise. The
// solution is never part of it.
type View struct {
	Definition types.Definition
	Role       types.Role
	Content    string
	CanEdit    bool
	Verdict    verify.Verdict
	Live       bool
}

// SessionOptions are the collaborators of a Session
type SessionOptions struct {
	Exercises *ExerciseStore
	Roles     *Roles
	Channel   *Channel

	// OnRefresh runs after a confirmed role change with the recomputed view
	OnRefresh func(View)
	// OnUpdate runs for every content update received from another participant
	OnUpdate func(View)
}

// Session ties role, definition and live buffer of one exercise together
type Session struct {
	exerciseID string
	opts       SessionOptions

	mu      sync.Mutex
	def     types.Definition
	role    types.Role
	content string
	verdict verify.Verdict
	sub     *Subscription
	live    bool

	wg sync.WaitGroup
}

// Open resolves the role, fetches the definition and subscribes to the
// exercise, taking the hub's current content as the starting buffer
func Open(ctx context.Context, exerciseID string, opts SessionOptions) (*Session, error) {
	if opts.Exercises == nil || opts.Roles == nil || opts.Channel == nil {
		return nil, fmt.Errorf("session requires exercises, roles and channel")
	}

	role, err := opts.Roles.ResolveRole(ctx, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve role: %w", err)
	}

	def, err := opts.Exercises.FetchDefinition(ctx, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch exercise: %w", err)
	}

	s := &Session{
		exerciseID: exerciseID,
		opts:       opts,
		def:        def,
		role:       role,
	}
	if err := s.attach(ctx, opts.Channel); err != nil {
		return nil, err
	}
	return s, nil
}

// Reconnect subscribes through a fresh channel after the previous one was
// lost. Updates missed while disconnected are not replayed; the hub's
// current content replaces the local buffer.
func (s *Session) Reconnect(ctx context.Context, ch *Channel) error {
	s.mu.Lock()
	old := s.sub
	s.mu.Unlock()
	if old != nil {
		old.Unsubscribe()
	}
	s.wg.Wait()
	return s.attach(ctx, ch)
}

func (s *Session) attach(ctx context.Context, ch *Channel) error {
	content, sub, err := ch.Subscribe(ctx, s.exerciseID)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	s.mu.Lock()
	s.opts.Channel = ch
	s.sub = sub
	s.content = content
	s.verdict = verify.Unknown
	s.live = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.consume(sub)
	return nil
}

func (s *Session) consume(sub *Subscription) {
	defer s.wg.Done()

	for content := range sub.Updates() {
		s.mu.Lock()
		s.content = content
		s.verdict = verify.Unknown
		view := s.viewLocked()
		hook := s.opts.OnUpdate
		s.mu.Unlock()

		if hook != nil {
			hook(view)
		}
	}

	s.mu.Lock()
	if s.sub == sub {
		s.live = false
	}
	s.mu.Unlock()
}

// ExerciseID returns the exercise of the session
func (s *Session) ExerciseID() string {
	return s.exerciseID
}

// Edit replaces the local buffer and publishes it. Mentors are read-only.
// A failed publish keeps the local edit; nothing is queued for retry.
func (s *Session) Edit(ctx context.Context, content string) error {
	s.mu.Lock()
	if !s.role.CanEdit() {
		s.mu.Unlock()
		return ErrReadOnly
	}
	s.content = content
	s.verdict = verify.Unknown
	ch := s.opts.Channel
	s.mu.Unlock()

	return ch.Publish(ctx, s.exerciseID, content)
}

// Check compares the local buffer with the hidden solution
func (s *Session) Check() verify.Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.verdict = verify.VerdictOf(verify.Verify(s.content, s.def.Solution))
	return s.verdict
}

// RequestRoleChange asks the server for desired. On success the whole view
// is recomputed from the confirmed role and handed to OnRefresh; on failure
// the previous role stays in effect.
func (s *Session) RequestRoleChange(ctx context.Context, desired types.Role) (types.Role, error) {
	role, err := s.opts.Roles.RequestRoleChange(ctx, s.exerciseID, desired)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.role = role
	s.verdict = verify.Unknown
	view := s.viewLocked()
	hook := s.opts.OnRefresh
	s.mu.Unlock()

	if hook != nil {
		hook(view)
	}
	return role, nil
}

// ToggleRole requests the opposite of the current role
func (s *Session) ToggleRole(ctx context.Context) (types.Role, error) {
	return s.RequestRoleChange(ctx, s.Role().Toggle())
}

func (s *Session) Role() types.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// View returns the current render state
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	def := s.def
	def.Solution = ""
	return View{
		Definition: def,
		Role:       s.role,
		Content:    s.content,
		CanEdit:    s.role.CanEdit(),
		Verdict:    s.verdict,
		Live:       s.live,
	}
}

// Solution reveals the hidden solution to students only
func (s *Session) Solution() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role != types.RoleStudent {
		return "", ErrSolutionHidden
	}
	return s.def.Solution, nil
}

// Close unsubscribes; idempotent
func (s *Session) Close() {
	s.mu.Lock()
	sub := s.sub
	s.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
	s.wg.Wait()
}
