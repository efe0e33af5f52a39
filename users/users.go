package users

import "strings"

// Permission is a single granular capability key as granted by the CRM
// backend (e.g. "leads.delete", "settings.users.manage").
type Permission struct {
	ID   string `json:"id,omitempty"`
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
}

// Role groups permissions. IsAdmin marks the role as an admin override:
// it bypasses granular permission checks entirely. The flag is the
// authoritative representation; legacy backends that only signal admin via
// role naming are normalised once at decode time (see ApplyLegacyAdminNames).
type Role struct {
	ID          string       `json:"id,omitempty"`
	Name        string       `json:"name"`
	IsAdmin     bool         `json:"isAdmin,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// User mirrors the backend user entity on the client side.
type User struct {
	ID                 string `json:"id,omitempty"`
	Email              string `json:"email,omitempty"`
	FirstName          string `json:"firstName,omitempty"`
	LastName           string `json:"lastName,omitempty"`
	FullName           string `json:"fullName,omitempty"`
	Roles              []Role `json:"roles,omitempty"`
	MustChangePassword bool   `json:"mustChangePassword,omitempty"`
	IsActive           bool   `json:"isActive,omitempty"`
}

// legacyAdminNames are the role names historically treated as admin
// overrides by name-sniffing. Kept only for decode-time normalisation.
var legacyAdminNames = map[string]struct{}{
	"admin":       {},
	"super_admin": {},
	"super admin": {},
}

// ApplyLegacyAdminNames sets Role.IsAdmin on roles whose name matches a
// legacy admin designation. Call it once when a user arrives from the
// backend; permission checks never look at names after that.
func ApplyLegacyAdminNames(u *User) {
	if u == nil {
		return
	}
	for i := range u.Roles {
		if _, ok := legacyAdminNames[strings.ToLower(u.Roles[i].Name)]; ok {
			u.Roles[i].IsAdmin = true
		}
	}
}

// HasPermission reports whether any of the user's roles carries the
// permission key, or whether any role is an admin override.
func (u *User) HasPermission(key string) bool {
	if u == nil {
		return false
	}
	for _, role := range u.Roles {
		if role.IsAdmin {
			return true
		}
		for _, p := range role.Permissions {
			if p.Key == key {
				return true
			}
		}
	}
	return false
}

// HasRole reports whether the user holds a role with the exact name.
func (u *User) HasRole(name string) bool {
	if u == nil {
		return false
	}
	for _, role := range u.Roles {
		if role.Name == name {
			return true
		}
	}
	return false
}

// IsAdmin reports whether any role grants the admin override.
func (u *User) IsAdmin() bool {
	if u == nil {
		return false
	}
	for _, role := range u.Roles {
		if role.IsAdmin {
			return true
		}
	}
	return false
}

// Merge returns a copy of base with the non-zero fields of patch applied.
// Roles are only replaced when patch provides them, so callers sending
// partial profile updates (name, avatar) keep the existing role set.
// Boolean flags are never merged, since false is indistinguishable from unset;
// callers changing them must dispatch a full user.
func Merge(base, patch *User) *User {
	if base == nil {
		return patch
	}
	if patch == nil {
		return base
	}
	merged := *base
	if patch.ID != "" {
		merged.ID = patch.ID
	}
	if patch.Email != "" {
		merged.Email = patch.Email
	}
	if patch.FirstName != "" {
		merged.FirstName = patch.FirstName
	}
	if patch.LastName != "" {
		merged.LastName = patch.LastName
	}
	if patch.FullName != "" {
		merged.FullName = patch.FullName
	}
	if patch.Roles != nil {
		merged.Roles = patch.Roles
	}
	return &merged
}
