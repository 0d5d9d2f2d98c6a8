package authz_test

import (
	"testing"

	"gigmarket/internal/apperr"
	"gigmarket/internal/authz"
	"gigmarket/models"

	"github.com/stretchr/testify/require"
)

func user(roles ...models.Role) *models.User {
	u := &models.User{ID: 1, IsActive: true, IsVerified: true}
	for _, r := range roles {
		u.Roles = append(u.Roles, string(r))
	}
	return u
}

func TestRoleGroups(t *testing.T) {
	cases := []struct {
		name  string
		actor *models.User
		cap   authz.Capability
		want  bool
	}{
		{"consultant manager is consultant", user(models.RoleConsultantManager), authz.Consultant, true},
		{"admin is consultant", user(models.RoleAdmin), authz.Consultant, true},
		{"sales is not consultant", user(models.RoleSales), authz.Consultant, false},
		{"admin is task manager", user(models.RoleAdmin), authz.TaskManager, true},
		{"billing", user(models.RoleBilling), authz.Billing, true},
		{"admin is billing", user(models.RoleAdmin), authz.Billing, true},
		{"admin is not gig worker", user(models.RoleAdmin), authz.GigWorker, false},
		{"gig worker", user(models.RoleGigWorker), authz.GigWorker, true},
		{"customer exact", user(models.RoleCustomer), authz.Customer, true},
		{"admin is not customer", user(models.RoleAdmin), authz.Customer, false},
		{"authenticated without roles", user(), authz.Authenticated, true},
		{"nil actor", nil, authz.Authenticated, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, authz.Permit(tc.actor, tc.cap))
		})
	}
}

func TestAccountStandingOverridesRoles(t *testing.T) {
	locked := user(models.RoleAdmin)
	locked.IsLocked = true
	require.False(t, authz.Permit(locked, authz.Admin))

	unverified := user(models.RoleAdmin)
	unverified.IsVerified = false
	require.False(t, authz.Permit(unverified, authz.Authenticated))

	inactive := user(models.RoleAdmin)
	inactive.IsActive = false
	require.False(t, authz.Permit(inactive, authz.TaskManager))
}

func TestSuperAdmin(t *testing.T) {
	u := user(models.RoleAdmin)
	require.False(t, authz.Permit(u, authz.SuperAdmin))
	u.IsSuperAdmin = true
	require.True(t, authz.Permit(u, authz.SuperAdmin))
	u.IsLocked = true
	require.False(t, authz.Permit(u, authz.SuperAdmin))
}

func TestRequire(t *testing.T) {
	require.NoError(t, authz.Require(user(models.RoleSales), authz.TaskManager, authz.Sales))

	err := authz.Require(user(models.RoleGigWorker), authz.TaskManager, authz.Sales)
	require.Error(t, err)
	require.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
}
