package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRole(t *testing.T) {
	assert.Equal(t, RoleSuperAdmin, NormalizeRole("  super_admin "))
	assert.True(t, NormalizeRole("user_print_number").IsBuiltin())
	assert.False(t, RoleName("AUDITOR").IsBuiltin())
}

func TestRoleSet(t *testing.T) {
	held := NewRoleSet(RoleRequester, "admin", "")
	assert.Len(t, held, 2)
	assert.True(t, held.Has(RoleAdmin))
	assert.True(t, held.Intersects(NewRoleSet(RoleSuperAdmin, RoleAdmin)))
	assert.False(t, held.Intersects(NewRoleSet(RoleSuperAdmin)))
	assert.False(t, held.Intersects(NewRoleSet()))
	assert.Equal(t, []RoleName{RoleAdmin, RoleRequester}, held.Sorted())
}
