package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/pressroom-hq/pressroom/internal/shared"
)

// Store is the slice of persistence the resolver needs.
type Store interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
	RolesForUser(ctx context.Context, userID int64) ([]Role, error)
	PermissionsForRole(ctx context.Context, roleID int64) ([]Permission, error)
}

// Resolver flattens a user's role memberships into an effective permission set.
type Resolver struct {
	store Store
	clock func() time.Time
}

// NewResolver constructs a Resolver.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store, clock: time.Now}
}

// Resolve computes the effective permission set for a user. Duplicate
// permissions across roles collapse silently. Returns shared.ErrNotFound
// when the user does not exist.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (EffectivePermissionSet, error) {
	exists, err := r.store.UserExists(ctx, userID)
	if err != nil {
		return EffectivePermissionSet{}, fmt.Errorf("rbac: check user %d: %w", userID, err)
	}
	if !exists {
		return EffectivePermissionSet{}, shared.ErrNotFound
	}

	roles, err := r.store.RolesForUser(ctx, userID)
	if err != nil {
		return EffectivePermissionSet{}, fmt.Errorf("rbac: roles for user %d: %w", userID, err)
	}

	set := EffectivePermissionSet{
		UserID:      userID,
		Permissions: make(map[string]struct{}),
		RoleNames:   make([]string, 0, len(roles)),
		CachedAt:    r.clock(),
	}
	for _, role := range roles {
		set.RoleNames = append(set.RoleNames, role.Name)
		perms, err := r.store.PermissionsForRole(ctx, role.ID)
		if err != nil {
			return EffectivePermissionSet{}, fmt.Errorf("rbac: permissions for role %d: %w", role.ID, err)
		}
		for _, perm := range perms {
			set.Permissions[perm.Key()] = struct{}{}
		}
	}
	return set, nil
}
