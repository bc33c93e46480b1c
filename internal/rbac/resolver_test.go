package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pressroom-hq/pressroom/internal/shared"
)

type stubStore struct {
	users     map[int64]bool
	roles     map[int64][]Role
	perms     map[int64][]Permission
	existsErr error
	rolesErr  error
	permsErr  error
}

func (s *stubStore) UserExists(ctx context.Context, userID int64) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.users[userID], nil
}

func (s *stubStore) RolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	if s.rolesErr != nil {
		return nil, s.rolesErr
	}
	return s.roles[userID], nil
}

func (s *stubStore) PermissionsForRole(ctx context.Context, roleID int64) ([]Permission, error) {
	if s.permsErr != nil {
		return nil, s.permsErr
	}
	return s.perms[roleID], nil
}

func TestResolveFlattensAndDeduplicates(t *testing.T) {
	store := &stubStore{
		users: map[int64]bool{7: true},
		roles: map[int64][]Role{7: {
			{ID: 1, Name: "editor"},
			{ID: 2, Name: "moderator"},
		}},
		perms: map[int64][]Permission{
			1: {
				{Resource: "updates", Action: "read"},
				{Resource: "updates", Action: "update"},
			},
			2: {
				{Resource: "updates", Action: "read"},
				{Resource: "users", Action: "read"},
			},
		},
	}
	resolver := NewResolver(store)

	set, err := resolver.Resolve(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, int64(7), set.UserID)
	require.Equal(t, []string{"updates:read", "updates:update", "users:read"}, set.Keys())
	require.Equal(t, []string{"editor", "moderator"}, set.RoleNames)
	require.False(t, set.CachedAt.IsZero())
}

func TestResolveUnknownUser(t *testing.T) {
	resolver := NewResolver(&stubStore{users: map[int64]bool{}})

	_, err := resolver.Resolve(context.Background(), 404)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestResolveUserWithoutRoles(t *testing.T) {
	resolver := NewResolver(&stubStore{users: map[int64]bool{3: true}})

	set, err := resolver.Resolve(context.Background(), 3)
	require.NoError(t, err)
	require.Empty(t, set.Permissions)
	require.Empty(t, set.RoleNames)
}

func TestResolvePropagatesStoreErrors(t *testing.T) {
	boom := errors.New("connection reset")
	resolver := NewResolver(&stubStore{users: map[int64]bool{1: true}, rolesErr: boom})

	_, err := resolver.Resolve(context.Background(), 1)
	require.ErrorIs(t, err, boom)
}

func TestKeyNormalises(t *testing.T) {
	require.Equal(t, "users:read", Key(" Users ", "READ"))
	require.True(t, EffectivePermissionSet{
		Permissions: map[string]struct{}{"users:read": {}},
	}.Has("USERS", "Read"))
}

func TestHasRoleCaseInsensitive(t *testing.T) {
	set := EffectivePermissionSet{RoleNames: []string{"Admin"}}
	require.True(t, set.HasRole("admin"))
	require.False(t, set.HasRole("editor"))
}
