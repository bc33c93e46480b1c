package rbac

import (
	"sort"
	"strings"
	"time"
)

// Role represents a named bundle of permissions assignable to users.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission represents an atomic (resource, action) capability.
type Permission struct {
	ID       int64
	Resource string
	Action   string
}

// Key renders the permission in wire format.
func (p Permission) Key() string {
	return Key(p.Resource, p.Action)
}

// Key builds the canonical lowercase "resource:action" string.
func Key(resource, action string) string {
	return strings.ToLower(strings.TrimSpace(resource)) + ":" + strings.ToLower(strings.TrimSpace(action))
}

// Check names a single (resource, action) requirement.
type Check struct {
	Resource string
	Action   string
}

// EffectivePermissionSet is the union of permissions across all roles held
// by a user at resolution time. It is derived, never persisted.
type EffectivePermissionSet struct {
	UserID      int64
	Permissions map[string]struct{}
	RoleNames   []string
	CachedAt    time.Time
}

// Has reports whether the set grants the given resource/action pair.
func (s EffectivePermissionSet) Has(resource, action string) bool {
	_, ok := s.Permissions[Key(resource, action)]
	return ok
}

// HasRole reports whether one of the contributing roles matches name.
func (s EffectivePermissionSet) HasRole(name string) bool {
	for _, n := range s.RoleNames {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// Keys returns the granted permission strings in sorted order.
func (s EffectivePermissionSet) Keys() []string {
	keys := make([]string, 0, len(s.Permissions))
	for k := range s.Permissions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RoleAdmin is the privileged role protected by self-targeting rules.
const RoleAdmin = "admin"

// Core permission strings used by the HTTP layer.
const (
	PermUsersCreate   = "users:create"
	PermUsersRead     = "users:read"
	PermUsersUpdate   = "users:update"
	PermUsersDelete   = "users:delete"
	PermRolesRead     = "roles:read"
	PermRolesUpdate   = "roles:update"
	PermUpdatesCreate = "updates:create"
	PermUpdatesRead   = "updates:read"
	PermUpdatesUpdate = "updates:update"
	PermUpdatesDelete = "updates:delete"
	PermAuditRead     = "audit:read"
)
