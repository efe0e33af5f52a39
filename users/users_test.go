package users_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nuvocrm/go-session-client/users"
)

func salesUser() *users.User {
	return &users.User{
		ID:        "user-1",
		Email:     "a@b.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Roles: []users.Role{{
			Name: "sales",
			Permissions: []users.Permission{
				{Key: "leads.view"},
				{Key: "leads.edit"},
			},
		}},
	}
}

func TestHasPermission(t *testing.T) {
	u := salesUser()

	require.True(t, u.HasPermission("leads.view"))
	require.True(t, u.HasPermission("leads.edit"))
	require.False(t, u.HasPermission("leads.delete"))
	require.False(t, u.HasPermission(""))
}

func TestHasPermissionNilUser(t *testing.T) {
	var u *users.User
	require.False(t, u.HasPermission("leads.view"))
	require.False(t, u.HasRole("sales"))
	require.False(t, u.IsAdmin())
}

func TestAdminOverride(t *testing.T) {
	u := &users.User{Roles: []users.Role{{Name: "ops", IsAdmin: true}}}

	require.True(t, u.IsAdmin())
	require.True(t, u.HasPermission("leads.delete"))
	require.True(t, u.HasPermission("anything.whatsoever"))
}

func TestHasRoleIsExact(t *testing.T) {
	u := salesUser()

	require.True(t, u.HasRole("sales"))
	require.False(t, u.HasRole("Sales"))
	require.False(t, u.HasRole("sale"))
}

func TestApplyLegacyAdminNames(t *testing.T) {
	u := &users.User{Roles: []users.Role{
		{Name: "sales"},
		{Name: "Super_Admin"},
		{Name: "super admin"},
		{Name: "Administrator"},
	}}

	users.ApplyLegacyAdminNames(u)

	require.False(t, u.Roles[0].IsAdmin)
	require.True(t, u.Roles[1].IsAdmin, "matching is case-insensitive")
	require.True(t, u.Roles[2].IsAdmin)
	require.False(t, u.Roles[3].IsAdmin, "only the exact legacy names qualify")
	require.True(t, u.IsAdmin())
}

func TestApplyLegacyAdminNamesNil(t *testing.T) {
	require.NotPanics(t, func() { users.ApplyLegacyAdminNames(nil) })
}

func TestMergeAppliesNonZeroFields(t *testing.T) {
	base := salesUser()

	merged := users.Merge(base, &users.User{FirstName: "Grace", FullName: "Grace Hopper"})

	require.Equal(t, "Grace", merged.FirstName)
	require.Equal(t, "Grace Hopper", merged.FullName)
	require.Equal(t, "Lovelace", merged.LastName)
	require.Equal(t, "user-1", merged.ID)
	require.Equal(t, base.Roles, merged.Roles, "partial updates keep the role set")
}

func TestMergeReplacesRolesOnlyWhenProvided(t *testing.T) {
	base := salesUser()
	newRoles := []users.Role{{Name: "support"}}

	merged := users.Merge(base, &users.User{Roles: newRoles})
	require.Equal(t, newRoles, merged.Roles)

	merged = users.Merge(base, &users.User{FirstName: "Grace"})
	require.Equal(t, base.Roles, merged.Roles)
}

func TestMergeDoesNotMutateBase(t *testing.T) {
	base := salesUser()

	_ = users.Merge(base, &users.User{FirstName: "Grace"})

	require.Equal(t, "Ada", base.FirstName)
}

func TestMergeNilHandling(t *testing.T) {
	base := salesUser()

	require.Same(t, base, users.Merge(base, nil))
	patch := &users.User{FirstName: "Grace"}
	require.Same(t, patch, users.Merge(nil, patch))
}
