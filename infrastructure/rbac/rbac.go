package rbac

import (
	"errors"
	"strings"

	"repairdesk/infrastructure/cache"
)

const (
	RoleAdmin        = "admin"
	RoleTechnician   = "technician"
	RoleReceptionist = "receptionist"
)

const (
	PermView   = "view"
	PermCreate = "create"
	PermEdit   = "edit"
	PermDelete = "delete"
)

var ErrUnknownRole = errors.New("unknown role")

// aliases maps role names written by older builds to the current ones.
var aliases = map[string]string{
	"administrador": RoleAdmin,
	"tecnico":       RoleTechnician,
	"técnico":       RoleTechnician,
	"recepcionista": RoleReceptionist,
}

// NormalizeRole returns the canonical role for name or ErrUnknownRole.
func NormalizeRole(name string) (string, error) {
	r := strings.ToLower(strings.TrimSpace(name))
	switch r {
	case RoleAdmin, RoleTechnician, RoleReceptionist:
		return r, nil
	}
	if canonical, ok := aliases[r]; ok {
		return canonical, nil
	}
	return "", ErrUnknownRole
}

// Rbac answers permission checks from a cache seeded with the default grants.
type Rbac struct {
	cache *cache.PermissionCache
}

func New(c *cache.PermissionCache) *Rbac {
	if c == nil {
		c = cache.NewPermissionCache()
	}
	c.Add(RoleAdmin, PermView, PermCreate, PermEdit, PermDelete)
	c.Add(RoleTechnician, PermView, PermCreate, PermEdit)
	c.Add(RoleReceptionist, PermView, PermCreate)
	return &Rbac{cache: c}
}

// Grant adds extra permissions to role.
func (r *Rbac) Grant(role string, perms ...string) error {
	canonical, err := NormalizeRole(role)
	if err != nil {
		return err
	}
	r.cache.Add(canonical, perms...)
	return nil
}

func (r *Rbac) HasPermission(role, perm string) bool {
	if r == nil || r.cache == nil {
		return false
	}
	canonical, err := NormalizeRole(role)
	if err != nil {
		return false
	}
	return r.cache.Has(canonical, strings.ToLower(perm))
}

func (r *Rbac) Permissions(role string) []string {
	canonical, err := NormalizeRole(role)
	if err != nil {
		return nil
	}
	return r.cache.Permissions(canonical)
}

// Roles lists every role with at least one grant.
func (r *Rbac) Roles() []string {
	return r.cache.Roles()
}

// AllPermissions lists every permission granted to any role.
func (r *Rbac) AllPermissions() []string {
	return r.cache.AllPermissionsSorted()
}

var defaultRbac = New(nil)

// HasPermission checks role against the default grants.
func HasPermission(role, perm string) bool {
	return defaultRbac.HasPermission(role, perm)
}

// Permissions lists the default grants of role.
func Permissions(role string) []string {
	return defaultRbac.Permissions(role)
}

func Roles() []string {
	return defaultRbac.Roles()
}

func AllPermissions() []string {
	return defaultRbac.AllPermissions()
}
