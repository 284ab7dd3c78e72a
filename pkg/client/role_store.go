package client

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/99designs/keyring"

	"codeblocks/pkg/types"
)

// KeyringService namespaces cached roles in the OS credential store
const KeyringService = "codeblocks"

// RoleStore is the session-scoped role cache keyed by exercise
type RoleStore interface {
	// Get reports the cached role; ok is false on a miss
	Get(exerciseID string) (role types.Role, ok bool, err error)
	Set(exerciseID string, role types.Role) error
}

// RoleKey is the cache key of an exercise
func RoleKey(exerciseID string) string {
	return "role_" + exerciseID
}

// MemoryRoleStore lives as long as the process
type MemoryRoleStore struct {
	mu    sync.RWMutex
	roles map[string]types.Role
}

func NewMemoryRoleStore() *MemoryRoleStore {
	return &MemoryRoleStore{roles: make(map[string]types.Role)}
}

func (m *MemoryRoleStore) Get(exerciseID string) (types.Role, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	role, ok := m.roles[RoleKey(exerciseID)]
	return role, ok, nil
}

func (m *MemoryRoleStore) Set(exerciseID string, role types.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[RoleKey(exerciseID)] = role
	return nil
}

// KeyringRoleStore keeps roles in a keyring so repeated CLI runs in one
// login session resolve the same role without a round trip. Every entry is
// stamped with the session token; an entry from another session is a miss.
type KeyringRoleStore struct {
	ring    keyring.Keyring
	session string
}

func NewKeyringRoleStore(ring keyring.Keyring, session string) *KeyringRoleStore {
	return &KeyringRoleStore{ring: ring, session: session}
}

// LoginSession returns the token of the current terminal login session,
// empty when the environment exposes none
func LoginSession() string {
	for _, name := range []string{"XDG_SESSION_ID", "TERM_SESSION_ID", "WT_SESSION"} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// OpenKeyringRoleStore opens the platform keyring. Each participant gets its
// own service so handles sharing a machine never see each other's roles.
func OpenKeyringRoleStore(participantID string) (*KeyringRoleStore, error) {
	session := LoginSession()
	if session == "" {
		return nil, ErrNoLoginSession
	}

	service := KeyringService + "." + participantID
	ring, err := keyring.Open(keyring.Config{
		ServiceName:              service,
		PassPrefix:               service,
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return NewKeyringRoleStore(ring, session), nil
}

func (k *KeyringRoleStore) Get(exerciseID string) (types.Role, bool, error) {
	item, err := k.ring.Get(RoleKey(exerciseID))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	session, value, found := strings.Cut(string(item.Data), "|")
	if !found || session != k.session {
		// left by an earlier login session; overwritten on resolve
		return "", false, nil
	}
	role, err := types.ParseRole(value)
	if err != nil {
		// a corrupt entry counts as a miss and is overwritten on resolve
		return "", false, nil
	}
	return role, true, nil
}

func (k *KeyringRoleStore) Set(exerciseID string, role types.Role) error {
	return k.ring.Set(keyring.Item{
		Key:   RoleKey(exerciseID),
		Data:  []byte(k.session + "|" + string(role)),
		Label: "codeblocks role for " + exerciseID,
	})
}
