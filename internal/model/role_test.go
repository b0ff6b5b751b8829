package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole(RoleAdmin))
	assert.True(t, ValidRole(RoleManager))
	assert.True(t, ValidRole(RoleEmployee))
	assert.False(t, ValidRole("superuser"))
	assert.False(t, ValidRole(""))
}

func TestRoleHasPermission(t *testing.T) {
	assert.True(t, RoleHasPermission(RoleAdmin, PermUsersWrite))
	assert.True(t, RoleHasPermission(RoleManager, PermHandoverManage))
	assert.True(t, RoleHasPermission(RoleEmployee, PermHandoverRequest))

	assert.False(t, RoleHasPermission(RoleManager, PermUsersWrite))
	assert.False(t, RoleHasPermission(RoleEmployee, PermHandoverManage))
	assert.False(t, RoleHasPermission(RoleEmployee, PermAuditRead))
	assert.False(t, RoleHasPermission("ghost", PermProductsRead))
}

func TestPermissionsForRoleReturnsCopy(t *testing.T) {
	perms := PermissionsForRole(RoleEmployee)
	assert.NotEmpty(t, perms)

	perms[0] = "tampered"
	assert.NotContains(t, PermissionsForRole(RoleEmployee), "tampered")
}
