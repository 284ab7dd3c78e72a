package client

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeblocks/pkg/types"
)

func testRoleStore(t *testing.T, store RoleStore) {
	t.Helper()

	_, ok, err := store.Get("ex1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set("ex1", types.RoleStudent))
	require.NoError(t, store.Set("ex2", types.RoleMentor))

	role, ok, err := store.Get("ex1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, types.RoleStudent, role)

	require.NoError(t, store.Set("ex1", types.RoleMentor))
	role, _, _ = store.Get("ex1")
	assert.Equal(t, types.RoleMentor, role)
}

func TestMemoryRoleStore(t *testing.T) {
	testRoleStore(t, NewMemoryRoleStore())
}

func TestKeyringRoleStore(t *testing.T) {
	ring := keyring.NewArrayKeyring(nil)
	testRoleStore(t, NewKeyringRoleStore(ring, "s1"))

	item, err := ring.Get(RoleKey("ex2"))
	require.NoError(t, err)
	assert.Equal(t, "s1|mentor", string(item.Data))
}

func TestKeyringRoleStore_CorruptEntryIsMiss(t *testing.T) {
	ring := keyring.NewArrayKeyring([]keyring.Item{
		{Key: RoleKey("ex1"), Data: []byte("s1|admin")},
		{Key: RoleKey("ex2"), Data: []byte("student")},
	})
	store := NewKeyringRoleStore(ring, "s1")

	for _, id := range []string{"ex1", "ex2"} {
		_, ok, err := store.Get(id)
		require.NoError(t, err)
		assert.False(t, ok, id)
	}
}

func TestKeyringRoleStore_EntriesExpireWithLoginSession(t *testing.T) {
	ring := keyring.NewArrayKeyring(nil)

	earlier := NewKeyringRoleStore(ring, "login-1")
	require.NoError(t, earlier.Set("ex1", types.RoleStudent))

	later := NewKeyringRoleStore(ring, "login-2")
	_, ok, err := later.Get("ex1")
	require.NoError(t, err)
	assert.False(t, ok, "a role cached in another login session must not be reused")

	require.NoError(t, later.Set("ex1", types.RoleMentor))
	role, ok, err := later.Get("ex1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.RoleMentor, role)

	_, ok, _ = earlier.Get("ex1")
	assert.False(t, ok)
}

func TestOpenKeyringRoleStore_RequiresLoginSession(t *testing.T) {
	t.Setenv("XDG_SESSION_ID", "")
	t.Setenv("TERM_SESSION_ID", "")
	t.Setenv("WT_SESSION", "")

	_, err := OpenKeyringRoleStore("alice")
	assert.ErrorIs(t, err, ErrNoLoginSession)
}

func TestLoginSession(t *testing.T) {
	t.Setenv("XDG_SESSION_ID", "")
	t.Setenv("TERM_SESSION_ID", "term-7")
	t.Setenv("WT_SESSION", "")
	assert.Equal(t, "term-7", LoginSession())

	t.Setenv("XDG_SESSION_ID", "3")
	assert.Equal(t, "3", LoginSession())
}

func TestRoleKey(t *testing.T) {
	assert.Equal(t, "role_abc123", RoleKey("abc123"))
}
