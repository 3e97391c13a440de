package cache

import (
	"reflect"
	"sync"
	"testing"
)

func TestPermissionCacheAddAndHas(t *testing.T) {
	c := NewPermissionCache()
	c.Add("admin", "view", "edit")
	c.Add("admin", "delete")
	c.Add("receptionist", "view")

	if !c.Has("admin", "delete") {
		t.Fatalf("expected admin to have delete")
	}
	if c.Has("receptionist", "edit") || c.Has("ghost", "view") {
		t.Fatalf("unexpected permission granted")
	}
	if got := c.Permissions("admin"); !reflect.DeepEqual(got, []string{"delete", "edit", "view"}) {
		t.Fatalf("admin permissions = %v", got)
	}
	if got := c.Roles(); !reflect.DeepEqual(got, []string{"admin", "receptionist"}) {
		t.Fatalf("roles = %v", got)
	}
	if got := c.AllPermissionsSorted(); !reflect.DeepEqual(got, []string{"delete", "edit", "view"}) {
		t.Fatalf("all permissions = %v", got)
	}
}

func TestPermissionCacheConcurrentAccess(t *testing.T) {
	c := NewPermissionCache()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Add("technician", "view")
		}()
		go func() {
			defer wg.Done()
			_ = c.Has("technician", "view")
		}()
	}
	wg.Wait()
	if !c.Has("technician", "view") {
		t.Fatalf("expected permission after concurrent adds")
	}
}
