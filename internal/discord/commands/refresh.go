package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/herald/internal/discord"
)

// refreshTimeout bounds a rebuild started from Discord; interaction tokens
// expire after 15 minutes.
const refreshTimeout = 14 * time.Minute

// RebuildFunc re-ingests every source and swaps the result into the live
// store. It reports the number of responses now stored.
type RebuildFunc func(ctx context.Context) (int, error)

// RefreshCommands handles /refresh, which rebuilds the response store on
// demand. Only admins may run it.
type RefreshCommands struct {
	perms   *discord.PermissionChecker
	rebuild RebuildFunc
	running atomic.Bool
}

// NewRefreshCommands creates a RefreshCommands handler.
func NewRefreshCommands(perms *discord.PermissionChecker, rebuild RebuildFunc) *RefreshCommands {
	return &RefreshCommands{perms: perms, rebuild: rebuild}
}

// Register registers /refresh with the router.
func (rc *RefreshCommands) Register(router *discord.CommandRouter) {
	router.Register(discord.Command{Definition: rc.Definition(), Handle: rc.handle})
}

// Definition returns the /refresh ApplicationCommand for Discord registration.
func (rc *RefreshCommands) Definition() *discordgo.ApplicationCommand {
	perm := int64(discordgo.PermissionAdministrator)
	return &discordgo.ApplicationCommand{
		Name:                     "refresh",
		Description:              "Re-read every voice line from the wikis",
		DefaultMemberPermissions: &perm,
	}
}

func (rc *RefreshCommands) handle(s discord.Responder, i *discordgo.InteractionCreate) {
	if !rc.perms.IsAdmin(i) {
		discord.RespondEphemeral(s, i, "You are not allowed to refresh the voice lines.")
		return
	}
	if !rc.running.CompareAndSwap(false, true) {
		discord.RespondEphemeral(s, i, "A refresh is already running.")
		return
	}
	defer rc.running.Store(false)

	discord.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	start := time.Now()
	n, err := rc.rebuild(ctx)
	if err != nil {
		slog.Error("discord: refresh failed", "err", err)
		discord.FollowUp(s, i, fmt.Sprintf("Refresh failed: %v", err))
		return
	}
	discord.FollowUp(s, i, fmt.Sprintf("Refreshed %d voice lines in %s.", n, time.Since(start).Round(time.Second)))
}
