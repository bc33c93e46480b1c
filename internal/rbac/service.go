package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pressroom-hq/pressroom/internal/audit"
	"github.com/pressroom-hq/pressroom/internal/shared"
)

// RepositoryPort defines the persistence surface the service needs.
type RepositoryPort interface {
	Store
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	EnsurePermission(ctx context.Context, resource, action string) (Permission, error)
	AttachPermission(ctx context.Context, roleID, permissionID int64) error
	DetachPermission(ctx context.Context, roleID, permissionID int64) error
	AssignRole(ctx context.Context, userID, roleID int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) error
}

// Service manages the role graph and keeps the permission cache honest.
type Service struct {
	repo     RepositoryPort
	cache    PermissionCache
	recorder *audit.Recorder
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, cache PermissionCache, recorder *audit.Recorder) *Service {
	return &Service{repo: repo, cache: cache, recorder: recorder}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// RolePermissions returns the permissions attached to a role.
func (s *Service) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.PermissionsForRole(ctx, roleID)
}

// ListPermissions returns all known permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, actorID int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, &shared.ValidationError{Field: "name", Message: "name is required"}
	}
	role, err := s.repo.CreateRole(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.recorder.Capture(ctx, audit.Entry{
		Action:        audit.ActionRoleChanged,
		EntityType:    "Role",
		EntityID:      audit.EntityRef(role.ID),
		PerformedByID: actorID,
		Metadata:      map[string]any{"role": role.Name, "operation": "created"},
	})
	return role, nil
}

// UpdateRole renames or re-describes a role. Cached sets carry role names,
// so the whole cache is dropped afterwards.
func (s *Service) UpdateRole(ctx context.Context, actorID, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, &shared.ValidationError{Field: "name", Message: "name is required"}
	}
	role, err := s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.cache.Clear()
	s.recorder.Capture(ctx, audit.Entry{
		Action:        audit.ActionRoleChanged,
		EntityType:    "Role",
		EntityID:      audit.EntityRef(role.ID),
		PerformedByID: actorID,
		Metadata:      map[string]any{"role": role.Name, "operation": "updated"},
	})
	return role, nil
}

// DeleteRole removes a role. Every member loses its permissions, and the
// cache has no reverse index, so the whole cache is dropped.
func (s *Service) DeleteRole(ctx context.Context, actorID, id int64) error {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.cache.Clear()
	s.recorder.Capture(ctx, audit.Entry{
		Action:        audit.ActionRoleChanged,
		EntityType:    "Role",
		EntityID:      audit.EntityRef(id),
		PerformedByID: actorID,
		Metadata:      map[string]any{"role": role.Name, "operation": "deleted"},
	})
	return nil
}

// SetRolePermissions replaces the permission set of a role and drops the
// whole cache, because any user holding the role is affected.
func (s *Service) SetRolePermissions(ctx context.Context, actorID, roleID int64, permissionIDs []int64) error {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	current, err := s.repo.PermissionsForRole(ctx, roleID)
	if err != nil {
		return err
	}
	existing := make(map[int64]struct{}, len(current))
	for _, p := range current {
		existing[p.ID] = struct{}{}
	}
	keep := make(map[int64]struct{}, len(permissionIDs))
	var attached, detached int
	for _, id := range permissionIDs {
		keep[id] = struct{}{}
		if _, ok := existing[id]; !ok {
			if err := s.repo.AttachPermission(ctx, roleID, id); err != nil {
				return fmt.Errorf("rbac: attach permission %d: %w", id, err)
			}
			attached++
		}
	}
	for id := range existing {
		if _, ok := keep[id]; !ok {
			if err := s.repo.DetachPermission(ctx, roleID, id); err != nil {
				return fmt.Errorf("rbac: detach permission %d: %w", id, err)
			}
			detached++
		}
	}
	s.cache.Clear()
	s.recorder.Capture(ctx, audit.Entry{
		Action:        audit.ActionPermissionChanged,
		EntityType:    "Role",
		EntityID:      audit.EntityRef(roleID),
		PerformedByID: actorID,
		Metadata:      map[string]any{"role": role.Name, "attached": attached, "detached": detached},
	})
	return nil
}

// AssignRole makes the user a member of the role. The cache entry is
// invalidated only after the membership write succeeds, so a failed write
// leaves the cache correct for the prior state.
func (s *Service) AssignRole(ctx context.Context, actorID, userID, roleID int64) error {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	exists, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return shared.ErrNotFound
	}
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.cache.Invalidate(userID)
	s.recorder.Capture(ctx, audit.Entry{
		Action:        audit.ActionRoleChanged,
		EntityType:    "User",
		EntityID:      audit.EntityRef(userID),
		PerformedByID: actorID,
		UserID:        audit.EntityRef(userID),
		Metadata:      map[string]any{"role": role.Name, "operation": "assigned"},
	})
	return nil
}

// RemoveRole drops the user's membership of the role. An actor may not
// remove their own admin role; that is a policy decision, not a conflict.
func (s *Service) RemoveRole(ctx context.Context, actorID, userID, roleID int64) error {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if actorID == userID && strings.EqualFold(role.Name, RoleAdmin) {
		return fmt.Errorf("remove own admin role: %w", shared.ErrPermissionDenied)
	}
	if err := s.repo.RemoveRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.cache.Invalidate(userID)
	s.recorder.Capture(ctx, audit.Entry{
		Action:        audit.ActionRoleChanged,
		EntityType:    "User",
		EntityID:      audit.EntityRef(userID),
		PerformedByID: actorID,
		UserID:        audit.EntityRef(userID),
		Metadata:      map[string]any{"role": role.Name, "operation": "removed"},
	})
	return nil
}

// EffectivePermissions resolves the user's permission strings through the cache.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64, forceRefresh bool) (EffectivePermissionSet, error) {
	set, err := s.cache.Get(ctx, userID, forceRefresh)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return EffectivePermissionSet{}, err
		}
		return EffectivePermissionSet{}, fmt.Errorf("rbac: resolve permissions: %w", err)
	}
	return set, nil
}
