package authz

import (
	"testing"

	"github.com/cardforge/cardforge/pkg/principal"
)

func TestCanModify(t *testing.T) {
	owner := principal.Principal{Username: "user1", Role: principal.RoleUser}
	other := principal.Principal{Username: "user2", Role: principal.RoleUser}
	admin := principal.Principal{Username: "admin1", Role: principal.RoleAdmin}

	cases := []struct {
		name  string
		p     principal.Principal
		owner string
		want  bool
	}{
		{"owner can modify own resource", owner, "user1", true},
		{"non-owner cannot modify", other, "user1", false},
		{"admin can modify any resource", admin, "user1", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanModify(tc.owner, tc.p); got != tc.want {
				t.Errorf("CanModify(%q, %+v) = %v, want %v", tc.owner, tc.p, got, tc.want)
			}
		})
	}
}

func TestRequiresAdmin(t *testing.T) {
	if RequiresAdmin(principal.Principal{Role: principal.RoleUser}) {
		t.Error("expected non-admin to fail RequiresAdmin")
	}
	if !RequiresAdmin(principal.Principal{Role: principal.RoleAdmin}) {
		t.Error("expected admin to pass RequiresAdmin")
	}
}
