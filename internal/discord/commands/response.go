// Package commands implements herald's slash commands.
package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/herald/internal/discord"
	"github.com/MrWong99/herald/internal/observe"
	"github.com/MrWong99/herald/internal/rank"
	"github.com/MrWong99/herald/internal/voiceline"
	"github.com/MrWong99/herald/pkg/canon"
)

// maxChoices is the most autocomplete choices Discord accepts.
const maxChoices = 25

// ResponseCommands handles /response, a fuzzy search over all stored voice
// lines.
type ResponseCommands struct {
	store   *voiceline.Store
	metrics *observe.Metrics
}

// NewResponseCommands creates a ResponseCommands handler.
func NewResponseCommands(store *voiceline.Store, m *observe.Metrics) *ResponseCommands {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &ResponseCommands{store: store, metrics: m}
}

// Register registers /response with the router.
func (rc *ResponseCommands) Register(router *discord.CommandRouter) {
	router.Register(discord.Command{
		Definition:   rc.Definition(),
		Handle:       rc.handle,
		Autocomplete: rc.handleAutocomplete,
	})
}

// Definition returns the /response ApplicationCommand for Discord registration.
func (rc *ResponseCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "response",
		Description: "Find the voice line closest to a phrase",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "phrase",
				Description: "What the line should say",
				Type:        discordgo.ApplicationCommandOptionString,
				Required:    true,
			},
			{
				Name:         "owner",
				Description:  "Only search the lines of this character",
				Type:         discordgo.ApplicationCommandOptionString,
				Autocomplete: true,
			},
		},
	}
}

func (rc *ResponseCommands) handle(s discord.Responder, i *discordgo.InteractionCreate) {
	phrase, owner := optionValues(i.ApplicationCommandData().Options)
	if canon.Canonicalize(phrase) == "" {
		discord.RespondEphemeral(s, i, "Please give a phrase to search for.")
		return
	}

	candidates := rc.store.Responses()
	if owner != "" {
		id, ok := rc.store.OwnerID(owner)
		if !ok {
			discord.RespondEphemeral(s, i, fmt.Sprintf("Unknown character %q.", owner))
			return
		}
		filtered := candidates[:0]
		for _, r := range candidates {
			if r.OwnerID == id {
				filtered = append(filtered, r)
			}
		}
		candidates = filtered
	}

	m, ok := rank.Best(phrase, candidates)
	rc.metrics.RecordLookup(context.Background(), ok)
	if !ok {
		discord.RespondEphemeral(s, i, "No matching response found.")
		return
	}
	discord.RespondMessage(s, i, m.Response.AudioURL, discord.ResponseEmbed(rc.store, m.Response))
	rc.metrics.RecordReply(context.Background(), discord.ReplyCommand)
}

func (rc *ResponseCommands) handleAutocomplete(s discord.Responder, i *discordgo.InteractionCreate) {
	var typed string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "owner" && opt.Focused {
			typed = strings.ToLower(opt.StringValue())
		}
	}

	var choices []*discordgo.ApplicationCommandOptionChoice
	for _, name := range rc.store.OwnerNames() {
		if !strings.HasPrefix(strings.ToLower(name), typed) {
			continue
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: name, Value: name})
		if len(choices) == maxChoices {
			break
		}
	}
	discord.RespondChoices(s, i, choices)
}

func optionValues(opts []*discordgo.ApplicationCommandInteractionDataOption) (phrase, owner string) {
	for _, opt := range opts {
		switch opt.Name {
		case "phrase":
			phrase = opt.StringValue()
		case "owner":
			owner = opt.StringValue()
		}
	}
	return phrase, owner
}
