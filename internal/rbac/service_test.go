package rbac

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pressroom-hq/pressroom/internal/audit"
	"github.com/pressroom-hq/pressroom/internal/shared"
)

type stubRepo struct {
	stubStore
	rolesByID   map[int64]Role
	assignErr   error
	removeErr   error
	assigned    [][2]int64
	removed     [][2]int64
	attached    []int64
	detached    []int64
	permissions map[int64][]Permission
}

func (r *stubRepo) ListRoles(ctx context.Context) ([]Role, error) { return nil, nil }

func (r *stubRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := r.rolesByID[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (r *stubRepo) CreateRole(ctx context.Context, name, description string) (Role, error) {
	return Role{ID: 99, Name: name, Description: description}, nil
}

func (r *stubRepo) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	return Role{ID: id, Name: name, Description: description}, nil
}

func (r *stubRepo) DeleteRole(ctx context.Context, id int64) error { return nil }

func (r *stubRepo) ListPermissions(ctx context.Context) ([]Permission, error) { return nil, nil }

func (r *stubRepo) EnsurePermission(ctx context.Context, resource, action string) (Permission, error) {
	return Permission{Resource: resource, Action: action}, nil
}

func (r *stubRepo) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	r.attached = append(r.attached, permissionID)
	return nil
}

func (r *stubRepo) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	r.detached = append(r.detached, permissionID)
	return nil
}

func (r *stubRepo) AssignRole(ctx context.Context, userID, roleID int64) error {
	if r.assignErr != nil {
		return r.assignErr
	}
	r.assigned = append(r.assigned, [2]int64{userID, roleID})
	return nil
}

func (r *stubRepo) RemoveRole(ctx context.Context, userID, roleID int64) error {
	if r.removeErr != nil {
		return r.removeErr
	}
	r.removed = append(r.removed, [2]int64{userID, roleID})
	return nil
}

func (r *stubRepo) PermissionsForRole(ctx context.Context, roleID int64) ([]Permission, error) {
	return r.permissions[roleID], nil
}

type spyCache struct {
	invalidated []int64
	cleared     int
}

func (c *spyCache) Get(ctx context.Context, userID int64, forceRefresh bool) (EffectivePermissionSet, error) {
	return EffectivePermissionSet{UserID: userID}, nil
}
func (c *spyCache) Invalidate(userID int64) { c.invalidated = append(c.invalidated, userID) }
func (c *spyCache) Clear()                  { c.cleared++ }

type capturingAuditStore struct {
	entries []audit.Entry
	err     error
}

func (s *capturingAuditStore) Insert(ctx context.Context, entry audit.Entry) (audit.Entry, error) {
	if s.err != nil {
		return audit.Entry{}, s.err
	}
	s.entries = append(s.entries, entry)
	return entry, nil
}

func newServiceFixture() (*Service, *stubRepo, *spyCache, *capturingAuditStore) {
	repo := &stubRepo{
		stubStore: stubStore{users: map[int64]bool{1: true, 2: true}},
		rolesByID: map[int64]Role{
			10: {ID: 10, Name: "admin"},
			11: {ID: 11, Name: "editor"},
		},
		permissions: map[int64][]Permission{},
	}
	cache := &spyCache{}
	auditStore := &capturingAuditStore{}
	recorder := audit.NewRecorder(auditStore, slog.Default())
	return NewService(repo, cache, recorder), repo, cache, auditStore
}

func TestAssignRoleInvalidatesAfterSuccessfulWrite(t *testing.T) {
	svc, repo, cache, auditStore := newServiceFixture()

	require.NoError(t, svc.AssignRole(context.Background(), 1, 2, 11))
	require.Equal(t, [][2]int64{{2, 11}}, repo.assigned)
	require.Equal(t, []int64{2}, cache.invalidated)
	require.Len(t, auditStore.entries, 1)
	require.Equal(t, audit.ActionRoleChanged, auditStore.entries[0].Action)
	require.Equal(t, int64(1), auditStore.entries[0].PerformedByID)
}

func TestAssignRoleFailedWriteLeavesCacheAlone(t *testing.T) {
	svc, repo, cache, auditStore := newServiceFixture()
	repo.assignErr = errors.New("insert failed")

	err := svc.AssignRole(context.Background(), 1, 2, 11)
	require.Error(t, err)
	require.Empty(t, cache.invalidated)
	require.Empty(t, auditStore.entries)
}

func TestAssignRoleUnknownUser(t *testing.T) {
	svc, _, cache, _ := newServiceFixture()

	err := svc.AssignRole(context.Background(), 1, 42, 11)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, cache.invalidated)
}

func TestRemoveOwnAdminRoleDenied(t *testing.T) {
	svc, repo, cache, _ := newServiceFixture()

	err := svc.RemoveRole(context.Background(), 2, 2, 10)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
	require.Empty(t, repo.removed)
	require.Empty(t, cache.invalidated)
}

func TestRemoveOtherUsersAdminRoleAllowed(t *testing.T) {
	svc, repo, cache, _ := newServiceFixture()

	require.NoError(t, svc.RemoveRole(context.Background(), 1, 2, 10))
	require.Equal(t, [][2]int64{{2, 10}}, repo.removed)
	require.Equal(t, []int64{2}, cache.invalidated)
}

func TestRemoveOwnNonAdminRoleAllowed(t *testing.T) {
	svc, repo, _, _ := newServiceFixture()

	require.NoError(t, svc.RemoveRole(context.Background(), 2, 2, 11))
	require.Equal(t, [][2]int64{{2, 11}}, repo.removed)
}

func TestSetRolePermissionsDiffsAndClearsCache(t *testing.T) {
	svc, repo, cache, auditStore := newServiceFixture()
	repo.permissions[11] = []Permission{
		{ID: 100, Resource: "updates", Action: "read"},
		{ID: 101, Resource: "updates", Action: "update"},
	}

	require.NoError(t, svc.SetRolePermissions(context.Background(), 1, 11, []int64{101, 102}))
	require.Equal(t, []int64{102}, repo.attached)
	require.Equal(t, []int64{100}, repo.detached)
	require.Equal(t, 1, cache.cleared)
	require.Len(t, auditStore.entries, 1)
	require.Equal(t, audit.ActionPermissionChanged, auditStore.entries[0].Action)
}

func TestUpdateRoleClearsCache(t *testing.T) {
	svc, _, cache, _ := newServiceFixture()

	_, err := svc.UpdateRole(context.Background(), 1, 11, "reviewer", "")
	require.NoError(t, err)
	require.Equal(t, 1, cache.cleared)
}

func TestDeleteRoleClearsCache(t *testing.T) {
	svc, _, cache, auditStore := newServiceFixture()

	require.NoError(t, svc.DeleteRole(context.Background(), 1, 11))
	require.Equal(t, 1, cache.cleared)
	require.Len(t, auditStore.entries, 1)
}

func TestCreateRoleValidatesName(t *testing.T) {
	svc, _, _, _ := newServiceFixture()

	_, err := svc.CreateRole(context.Background(), 1, "  ", "")
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
}
