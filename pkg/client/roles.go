package client

import (
	"context"
	"fmt"
	"net/url"

	"codeblocks/pkg/types"
)

// Roles resolves and changes the participant's role per exercise,
// consulting the RoleStore before the network
type Roles struct {
	api   *API
	store RoleStore
}

func NewRoles(api *API, store RoleStore) *Roles {
	if store == nil {
		store = NewMemoryRoleStore()
	}
	return &Roles{api: api, store: store}
}

type roleResponse struct {
	Role types.Role `json:"role"`
}

// ResolveRole returns the cached role, else asks the server for the default
// assignment and caches the answer
func (r *Roles) ResolveRole(ctx context.Context, exerciseID string) (types.Role, error) {
	cached, ok, err := r.store.Get(exerciseID)
	if err != nil {
		return "", fmt.Errorf("failed to read cached role: %w", err)
	}
	if ok {
		return cached, nil
	}

	role, err := r.fetch(ctx, exerciseID, nil)
	if err != nil {
		return "", err
	}
	if err := r.store.Set(exerciseID, role); err != nil {
		return "", fmt.Errorf("failed to cache role: %w", err)
	}
	return role, nil
}

// RequestRoleChange asks for desired and caches the confirmed role.
// On failure the cached role stays in effect.
func (r *Roles) RequestRoleChange(ctx context.Context, exerciseID string, desired types.Role) (types.Role, error) {
	if _, err := types.ParseRole(string(desired)); err != nil {
		return "", err
	}

	role, err := r.fetch(ctx, exerciseID, &desired)
	if err != nil {
		return "", err
	}
	if err := r.store.Set(exerciseID, role); err != nil {
		return "", fmt.Errorf("failed to cache role: %w", err)
	}
	return role, nil
}

func (r *Roles) fetch(ctx context.Context, exerciseID string, proposed *types.Role) (types.Role, error) {
	if !types.IsValidExerciseID(exerciseID) {
		return "", ErrNotFound
	}

	query := url.Values{}
	if proposed != nil {
		query.Set("role", string(*proposed))
	}

	var resp roleResponse
	if err := r.api.getJSON(ctx, "/codeblocks/"+url.PathEscape(exerciseID)+"/role", query, &resp); err != nil {
		return "", err
	}

	role, err := types.ParseRole(string(resp.Role))
	if err != nil {
		return "", fmt.Errorf("%w: server returned %v", ErrUnavailable, err)
	}
	return role, nil
}
