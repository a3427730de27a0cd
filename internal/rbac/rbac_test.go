package rbac

import "testing"

func TestCan(t *testing.T) {
	tests := []struct {
		name   string
		role   Role
		action Action
		want   bool
	}{
		{name: "user can submit", role: RoleUser, action: ActionSubmit, want: true},
		{name: "user cannot list", role: RoleUser, action: ActionList, want: false},
		{name: "user cannot review", role: RoleUser, action: ActionReview, want: false},
		{name: "user cannot approve", role: RoleUser, action: ActionApprove, want: false},
		{name: "user cannot clear", role: RoleUser, action: ActionClear, want: false},
		{name: "manager can submit", role: RoleManager, action: ActionSubmit, want: true},
		{name: "manager can list", role: RoleManager, action: ActionList, want: true},
		{name: "manager can review", role: RoleManager, action: ActionReview, want: true},
		{name: "manager cannot approve", role: RoleManager, action: ActionApprove, want: false},
		{name: "manager cannot reject", role: RoleManager, action: ActionReject, want: false},
		{name: "manager cannot clear", role: RoleManager, action: ActionClear, want: false},
		{name: "admin can review", role: RoleAdmin, action: ActionReview, want: true},
		{name: "admin can approve", role: RoleAdmin, action: ActionApprove, want: true},
		{name: "admin can reject", role: RoleAdmin, action: ActionReject, want: true},
		{name: "admin can clear", role: RoleAdmin, action: ActionClear, want: true},
		{name: "unknown role can submit", role: Role("ghost"), action: ActionSubmit, want: true},
		{name: "unknown role cannot review", role: Role("ghost"), action: ActionReview, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.want {
				t.Fatalf("Can(%s, %s) = %v, want %v", tc.role, tc.action, got, tc.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("admin"); got != RoleAdmin {
		t.Fatalf("expected admin, got %s", got)
	}
	if got := Normalize("manager"); got != RoleManager {
		t.Fatalf("expected manager, got %s", got)
	}
	if got := Normalize(""); got != RoleUser {
		t.Fatalf("empty role should normalize to user, got %s", got)
	}
	if got := Normalize("superuser"); got != RoleUser {
		t.Fatalf("unknown role should normalize to user, got %s", got)
	}
}
