package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker decides who may run privileged slash commands such as
// /refresh.
type PermissionChecker struct {
	adminRoleID string
}

// NewPermissionChecker creates a PermissionChecker with the given admin role ID.
func NewPermissionChecker(adminRoleID string) *PermissionChecker {
	return &PermissionChecker{adminRoleID: adminRoleID}
}

// IsAdmin reports whether the interaction author may run privileged
// commands. With a configured role the member must hold it; without one
// the member needs the Administrator permission in the guild. Interactions
// without a Member (direct messages) are never privileged.
func (p *PermissionChecker) IsAdmin(i *discordgo.InteractionCreate) bool {
	if i.Member == nil {
		return false
	}
	if p.adminRoleID == "" {
		return i.Member.Permissions&discordgo.PermissionAdministrator != 0
	}
	return slices.Contains(i.Member.Roles, p.adminRoleID)
}
