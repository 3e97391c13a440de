package cache

import (
	"sort"
	"sync"
)

// PermissionCache stores role to permission sets.
type PermissionCache struct {
	mu    sync.RWMutex
	perms map[string]map[string]struct{}
	all   map[string]struct{}
}

func NewPermissionCache() *PermissionCache {
	return &PermissionCache{
		perms: make(map[string]map[string]struct{}),
		all:   make(map[string]struct{}),
	}
}

func (c *PermissionCache) Add(role string, perms ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.perms[role]
	if !ok {
		set = make(map[string]struct{})
		c.perms[role] = set
	}
	for _, p := range perms {
		set[p] = struct{}{}
		c.all[p] = struct{}{}
	}
}

func (c *PermissionCache) Has(role, perm string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.perms[role][perm]
	return ok
}

// Permissions returns the sorted permissions granted to role.
func (c *PermissionCache) Permissions(role string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.perms[role]))
	for p := range c.perms[role] {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (c *PermissionCache) Roles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.perms))
	for r := range c.perms {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func (c *PermissionCache) AllPermissionsSorted() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.all))
	for p := range c.all {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
