package rbac

import (
	"errors"
	"reflect"
	"testing"

	"repairdesk/infrastructure/cache"
)

func TestNormalizeRole(t *testing.T) {
	cases := []struct {
		in   string
		want string
		err  error
	}{
		{in: "admin", want: RoleAdmin},
		{in: " Technician ", want: RoleTechnician},
		{in: "tecnico", want: RoleTechnician},
		{in: "recepcionista", want: RoleReceptionist},
		{in: "scanner", err: ErrUnknownRole},
		{in: "", err: ErrUnknownRole},
	}

	for _, tc := range cases {
		got, err := NormalizeRole(tc.in)
		if !errors.Is(err, tc.err) {
			t.Fatalf("NormalizeRole(%q) err=%v want %v", tc.in, err, tc.err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeRole(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestDefaultPermissions(t *testing.T) {
	cases := []struct {
		role string
		perm string
		ok   bool
	}{
		{role: RoleAdmin, perm: PermDelete, ok: true},
		{role: RoleTechnician, perm: PermEdit, ok: true},
		{role: RoleTechnician, perm: PermDelete, ok: false},
		{role: RoleReceptionist, perm: PermCreate, ok: true},
		{role: RoleReceptionist, perm: PermEdit, ok: false},
		{role: "recepcionista", perm: PermView, ok: true},
		{role: "ghost", perm: PermView, ok: false},
	}

	for _, tc := range cases {
		if got := HasPermission(tc.role, tc.perm); got != tc.ok {
			t.Fatalf("role=%s perm=%s expected=%v got=%v", tc.role, tc.perm, tc.ok, got)
		}
	}
}

func TestGrantExtendsRole(t *testing.T) {
	r := New(cache.NewPermissionCache())
	if err := r.Grant("tecnico", PermDelete); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !r.HasPermission(RoleTechnician, PermDelete) {
		t.Fatalf("expected granted permission")
	}
	if got := r.Permissions(RoleTechnician); !reflect.DeepEqual(got, []string{"create", "delete", "edit", "view"}) {
		t.Fatalf("permissions = %v", got)
	}
	if err := r.Grant("ghost", PermView); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestRolesAndAllPermissions(t *testing.T) {
	if got := Roles(); !reflect.DeepEqual(got, []string{RoleAdmin, RoleReceptionist, RoleTechnician}) {
		t.Fatalf("roles = %v", got)
	}
	if got := AllPermissions(); !reflect.DeepEqual(got, []string{"create", "delete", "edit", "view"}) {
		t.Fatalf("all permissions = %v", got)
	}
}
