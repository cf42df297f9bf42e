// Package model defines the core domain types for Sanction.
package model

import "strings"

// Role represents a session's permission level.
type Role int

const (
	RoleUser      Role = iota // Default role, receives only its own punishment messages
	RoleModerator             // Sees punishment notifications
	RoleAdmin                 // Full control: notifications, undo notifications, all commands
)

// Permission is a dotted permission string such as "sanction.notify.ban".
type Permission string

const permissionRoot = "sanction"

// NotifyPermission returns the permission required to see the broadcast
// announcing a new punishment of type t.
func NotifyPermission(t PunishmentType) Permission {
	return Permission(permissionRoot + ".notify." + t.PermissionName())
}

// UndoNotifyPermission returns the permission required to see the broadcast
// announcing that a punishment of the basic kind of t was revoked.
func UndoNotifyPermission(t PunishmentType) Permission {
	return Permission(permissionRoot + ".undonotify." + t.Basic().PermissionName())
}

// Matches reports whether p is granted by pattern. A pattern ending in ".*"
// grants every permission below it.
func (p Permission) Matches(pattern Permission) bool {
	if p == pattern {
		return true
	}
	prefix, ok := strings.CutSuffix(string(pattern), "*")
	return ok && strings.HasPrefix(string(p), prefix)
}
