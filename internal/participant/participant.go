// Package participant resolves the opaque participant handle of an HTTP request
package participant

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"codeblocks/pkg/types"
)

const (
	// QueryParam carries an explicit handle, used by non-browser clients
	QueryParam = "participant"

	// CookieName holds the handle for browser sessions
	CookieName = "participant_id"
)

var ErrInvalidParticipant = errors.New("invalid participant id")

// Resolve returns the participant handle of r: the query parameter, else the
// cookie, else a freshly minted uuid. A non-nil cookie must be sent back so the
// handle stays stable for the rest of the browser session.
func Resolve(r *http.Request) (string, *http.Cookie, error) {
	if id := r.URL.Query().Get(QueryParam); id != "" {
		if !types.IsValidParticipantID(id) {
			return "", nil, ErrInvalidParticipant
		}
		return id, nil, nil
	}

	if c, err := r.Cookie(CookieName); err == nil && types.IsValidParticipantID(c.Value) {
		return c.Value, nil, nil
	}

	id := uuid.New().String()
	// session cookie: no Expires or MaxAge
	cookie := &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return id, cookie, nil
}
