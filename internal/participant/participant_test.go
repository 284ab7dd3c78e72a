package participant

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_QueryParameterWins(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/codeblocks/x/role?participant=alice", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "bob"})

	id, cookie, err := Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "alice", id)
	assert.Nil(t, cookie)
}

func TestResolve_Cookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "bob"})

	id, cookie, err := Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "bob", id)
	assert.Nil(t, cookie)
}

func TestResolve_MintsSessionCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	id, cookie, err := Resolve(r)
	require.NoError(t, err)
	_, parseErr := uuid.Parse(id)
	assert.NoError(t, parseErr)
	require.NotNil(t, cookie)
	assert.Equal(t, CookieName, cookie.Name)
	assert.Equal(t, id, cookie.Value)
	assert.Zero(t, cookie.MaxAge)
	assert.True(t, cookie.Expires.IsZero())
}

func TestResolve_InvalidParameter(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?participant=has%20space", nil)
	_, _, err := Resolve(r)
	assert.ErrorIs(t, err, ErrInvalidParticipant)

	// a malformed cookie is replaced rather than rejected
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "bad!value"})
	id, cookie, err := Resolve(r)
	require.NoError(t, err)
	assert.NotEqual(t, "bad!value", id)
	assert.NotNil(t, cookie)
}
