package workspace

import "testing"

func TestRoleCanManage(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleOwner, true},
		{RoleAdmin, true},
		{RoleMember, false},
		{Role("guest"), false},
	}
	for _, tt := range tests {
		if got := tt.role.CanManage(); got != tt.want {
			t.Errorf("%s.CanManage() = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestAddMemberRequestValidate(t *testing.T) {
	r := AddMemberRequest{Email: " Bob@Example.com "}
	if err := r.Validate(); err != nil {
		t.Fatal(err)
	}
	if r.Email != "bob@example.com" || r.Role != RoleMember {
		t.Errorf("unexpected normalized request %+v", r)
	}
	if err := (&AddMemberRequest{Email: "a@b.c", Role: RoleOwner}).Validate(); err == nil {
		t.Error("granting owner should be rejected")
	}
}
