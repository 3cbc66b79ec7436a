package discord

import (
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// HandlerFunc is the signature for slash command and autocomplete handlers.
type HandlerFunc func(s Responder, i *discordgo.InteractionCreate)

// Command couples a slash command definition with its handlers.
// Autocomplete may be nil.
type Command struct {
	Definition   *discordgo.ApplicationCommand
	Handle       HandlerFunc
	Autocomplete HandlerFunc
}

// CommandRouter dispatches Discord interactions to registered commands by
// command name. herald's commands have no subcommands.
type CommandRouter struct {
	mu       sync.RWMutex
	commands map[string]Command
	order    []string
}

// NewCommandRouter creates an empty router.
func NewCommandRouter() *CommandRouter {
	return &CommandRouter{commands: make(map[string]Command)}
}

// Register adds c under c.Definition.Name. Registering a name again replaces
// the earlier command but keeps its position.
func (r *CommandRouter) Register(c Command) {
	name := c.Definition.Name
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[name]; !exists {
		r.order = append(r.order, name)
	}
	r.commands[name] = c
}

// ApplicationCommands returns the command definitions in registration
// order, for bulk registration with the Discord API.
func (r *CommandRouter) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := make([]*discordgo.ApplicationCommand, 0, len(r.order))
	for _, name := range r.order {
		cmds = append(cmds, r.commands[name].Definition)
	}
	return cmds
}

func (r *CommandRouter) lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[name]
	return c, ok
}

// Handle dispatches an interaction to the command it names. Unknown
// commands get an ephemeral notice; autocomplete requests without a handler
// get an empty choice list.
func (r *CommandRouter) Handle(s Responder, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		name := i.ApplicationCommandData().Name
		c, ok := r.lookup(name)
		if !ok {
			slog.Warn("discord: unknown command", "command", name)
			RespondEphemeral(s, i, "Unknown command.")
			return
		}
		slog.Debug("discord: command", "command", name, "user", InteractionUserID(i))
		c.Handle(s, i)

	case discordgo.InteractionApplicationCommandAutocomplete:
		name := i.ApplicationCommandData().Name
		c, ok := r.lookup(name)
		if !ok || c.Autocomplete == nil {
			RespondChoices(s, i, nil)
			return
		}
		c.Autocomplete(s, i)

	default:
		slog.Warn("discord: unhandled interaction type", "type", i.Type)
	}
}

// InteractionUserID returns the invoking user id for guild and direct
// message interactions alike, or "" when neither is set.
func InteractionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
