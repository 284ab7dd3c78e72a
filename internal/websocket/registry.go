package websocket

import (
	"sort"
	"sync"
)

// Registry tracks live connections and the exercises each one follows
// ARCHITECTURAL DISCOVERY: Pure bookkeeping without business logic; the hub
// owns delivery, the registry answers "who is here" questions
type Registry struct {
	mu            sync.RWMutex
	connections   map[string]*Connection         // connectionID -> Connection
	subscriptions map[string]map[string]struct{} // connectionID -> exerciseIDs
	exercises     map[string]map[string]struct{} // exerciseID -> connectionIDs
}

func NewRegistry() *Registry {
	return &Registry{
		connections:   make(map[string]*Connection),
		subscriptions: make(map[string]map[string]struct{}),
		exercises:     make(map[string]map[string]struct{}),
	}
}

// RegisterConnection adds a new connection
func (r *Registry) RegisterConnection(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.GetConnectionID()]; exists {
		return ErrDuplicateConnection
	}
	r.connections[conn.GetConnectionID()] = conn
	return nil
}

// UnregisterConnection removes a connection and its bookkeeping; idempotent
func (r *Registry) UnregisterConnection(conn *Connection) {
	if conn == nil {
		return
	}
	connID := conn.GetConnectionID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, exists := r.connections[connID]; !exists || registered != conn {
		return
	}
	delete(r.connections, connID)
	for exerciseID := range r.subscriptions[connID] {
		r.removeLocked(connID, exerciseID)
	}
	delete(r.subscriptions, connID)
}

func (r *Registry) GetConnection(connID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[connID]
	return conn, ok
}

// AddSubscription records that connID follows exerciseID
func (r *Registry) AddSubscription(connID, exerciseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, live := r.connections[connID]; !live {
		return
	}
	if r.subscriptions[connID] == nil {
		r.subscriptions[connID] = make(map[string]struct{})
	}
	r.subscriptions[connID][exerciseID] = struct{}{}
	if r.exercises[exerciseID] == nil {
		r.exercises[exerciseID] = make(map[string]struct{})
	}
	r.exercises[exerciseID][connID] = struct{}{}
}

func (r *Registry) RemoveSubscription(connID, exerciseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(connID, exerciseID)
}

func (r *Registry) removeLocked(connID, exerciseID string) {
	if subs, ok := r.subscriptions[connID]; ok {
		delete(subs, exerciseID)
		if len(subs) == 0 {
			delete(r.subscriptions, connID)
		}
	}
	if conns, ok := r.exercises[exerciseID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.exercises, exerciseID)
		}
	}
}

// Subscriptions returns the exercises of connID in sorted order
func (r *Registry) Subscriptions(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.subscriptions[connID]))
	for exerciseID := range r.subscriptions[connID] {
		out = append(out, exerciseID)
	}
	sort.Strings(out)
	return out
}

// ExerciseConnections returns the connections following exerciseID
func (r *Registry) ExerciseConnections(exerciseID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Connection
	for connID := range r.exercises[exerciseID] {
		out = append(out, r.connections[connID])
	}
	return out
}

// GetStats returns registry statistics for health reporting
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.connections),
		"active_exercises":  len(r.exercises),
	}
}

// CloseAll closes every live connection, used on shutdown
func (r *Registry) CloseAll() {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, c := range r.connections {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
