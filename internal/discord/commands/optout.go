package commands

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/herald/internal/discord"
)

// Replies sent by /enable and /disable.
const (
	MsgEnabled  = "You have enabled dota responses"
	MsgDisabled = "You have disabled dota responses"
)

// OptOutCommands handles /enable and /disable, which let users opt in and
// out of automatic replies to their messages.
type OptOutCommands struct {
	optOuts *discord.OptOuts
}

// NewOptOutCommands creates an OptOutCommands handler.
func NewOptOutCommands(optOuts *discord.OptOuts) *OptOutCommands {
	return &OptOutCommands{optOuts: optOuts}
}

// Register registers /enable and /disable with the router.
func (oc *OptOutCommands) Register(router *discord.CommandRouter) {
	enable, disable := oc.Definitions()
	router.Register(discord.Command{Definition: enable, Handle: oc.handleEnable})
	router.Register(discord.Command{Definition: disable, Handle: oc.handleDisable})
}

// Definitions returns the /enable and /disable ApplicationCommands.
func (oc *OptOutCommands) Definitions() (enable, disable *discordgo.ApplicationCommand) {
	enable = &discordgo.ApplicationCommand{
		Name:        "enable",
		Description: "Get voice line replies to your messages again",
	}
	disable = &discordgo.ApplicationCommand{
		Name:        "disable",
		Description: "Stop getting voice line replies to your messages",
	}
	return enable, disable
}

func (oc *OptOutCommands) handleEnable(s discord.Responder, i *discordgo.InteractionCreate) {
	oc.apply(s, i, false)
}

func (oc *OptOutCommands) handleDisable(s discord.Responder, i *discordgo.InteractionCreate) {
	oc.apply(s, i, true)
}

func (oc *OptOutCommands) apply(s discord.Responder, i *discordgo.InteractionCreate, out bool) {
	userID := discord.InteractionUserID(i)
	if userID == "" {
		discord.RespondEphemeral(s, i, "Could not tell who you are.")
		return
	}

	var err error
	if out {
		err = oc.optOuts.Disable(context.Background(), userID)
	} else {
		err = oc.optOuts.Enable(context.Background(), userID)
	}
	if err != nil {
		slog.Error("discord: opt-out change failed", "user", userID, "disable", out, "err", err)
		discord.RespondError(s, i, err)
		return
	}

	if out {
		discord.RespondEphemeral(s, i, MsgDisabled)
	} else {
		discord.RespondEphemeral(s, i, MsgEnabled)
	}
}
