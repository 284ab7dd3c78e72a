package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds one REST round trip
const DefaultTimeout = 10 * time.Second

// API is the REST half of the server surface. It identifies the participant
// explicitly on every request.
type API struct {
	baseURL       string
	participantID string
	http          *http.Client
}

// NewAPI creates a REST client. A nil httpClient uses one with DefaultTimeout.
func NewAPI(baseURL, participantID string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &API{
		baseURL:       strings.TrimRight(baseURL, "/"),
		participantID: participantID,
		http:          httpClient,
	}
}

// ParticipantID returns the handle sent with every request
func (a *API) ParticipantID() string {
	return a.participantID
}

// BaseURL returns the server root
func (a *API) BaseURL() string {
	return a.baseURL
}

// getJSON performs GET path?query and decodes a 200 body into out.
// Status codes map onto ErrNotFound, ErrRoleChangeRejected and ErrUnavailable.
func (a *API) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	if query == nil {
		query = url.Values{}
	}
	if a.participantID != "" {
		query.Set("participant", a.participantID)
	}

	target := a.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrRoleChangeRejected
	default:
		return fmt.Errorf("%w: %s %s returned %d", ErrUnavailable, req.Method, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: invalid response body: %v", ErrUnavailable, err)
	}
	return nil
}
