package models

import "strings"

// UserRole comes from the Supabase token's app_metadata; users themselves live
// in Supabase auth and are only referenced here by id.
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

const DefaultRole = RoleUser

// ParseRole maps a claim to a known role; anything unrecognised is DefaultRole.
func ParseRole(s string) UserRole {
	switch r := UserRole(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleAdmin:
		return r
	default:
		return DefaultRole
	}
}
