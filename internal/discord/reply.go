package discord

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/herald/internal/observe"
	"github.com/MrWong99/herald/internal/voiceline"
	"github.com/MrWong99/herald/pkg/canon"
)

// EmbedColor is the sidebar colour of response embeds.
const EmbedColor = 0x3498DB

// EmbedFooter is the footer text of response embeds.
const EmbedFooter = "Hero Responses"

// Reply kinds recorded in the replies counter.
const (
	ReplyMessage = "message"
	ReplyCommand = "command"
)

// Replier answers chat messages that exactly match a stored response with
// that response's audio.
type Replier struct {
	store   *voiceline.Store
	optOuts *OptOuts
	metrics *observe.Metrics

	mu      sync.RWMutex
	ignored map[string]struct{}
}

// NewReplier returns a replier over store. Messages from authors in ignored
// (by username) and from opted-out users are never answered.
func NewReplier(store *voiceline.Store, optOuts *OptOuts, ignored []string, m *observe.Metrics) *Replier {
	if optOuts == nil {
		optOuts = NewOptOuts(nil, nil)
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}
	r := &Replier{store: store, optOuts: optOuts, metrics: m}
	r.SetIgnoredAuthors(ignored)
	return r
}

// SetIgnoredAuthors replaces the list of ignored usernames.
func (r *Replier) SetIgnoredAuthors(names []string) {
	ignored := make(map[string]struct{}, len(names))
	for _, n := range names {
		ignored[n] = struct{}{}
	}
	r.mu.Lock()
	r.ignored = ignored
	r.mu.Unlock()
}

func (r *Replier) isIgnored(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ignored[username]
	return ok
}

// Reply builds the answer to m, or returns false when m gets none.
func (r *Replier) Reply(ctx context.Context, m *discordgo.Message) (*discordgo.MessageSend, bool) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return nil, false
	}
	if r.isIgnored(m.Author.Username) || r.optOuts.Disabled(m.Author.ID) {
		return nil, false
	}
	canonical := canon.Canonicalize(m.Content)
	if canonical == "" {
		return nil, false
	}

	resp, ok := r.store.Lookup(canonical)
	r.metrics.RecordLookup(ctx, ok)
	if !ok {
		return nil, false
	}

	msg := &discordgo.MessageSend{
		Content: resp.AudioURL,
		Embeds:  []*discordgo.MessageEmbed{ResponseEmbed(r.store, resp)},
	}
	if m.ID != "" {
		msg.Reference = m.Reference()
	}
	return msg, true
}

// HandleMessage replies to m through s when it matches a response.
func (r *Replier) HandleMessage(ctx context.Context, s MessageSender, m *discordgo.MessageCreate) {
	msg, ok := r.Reply(ctx, m.Message)
	if !ok {
		return
	}
	if _, err := s.ChannelMessageSendComplex(m.ChannelID, msg); err != nil {
		slog.Warn("discord: failed to send reply", "channel", m.ChannelID, "err", err)
		return
	}
	r.metrics.RecordReply(ctx, ReplyMessage)
}

// ResponseEmbed renders the embed shown next to a response's audio: the
// owner's name, and the owner's icon in the footer when one is known.
func ResponseEmbed(store *voiceline.Store, resp voiceline.Response) *discordgo.MessageEmbed {
	name, _ := store.OwnerName(resp.OwnerID)
	footer := &discordgo.MessageEmbedFooter{Text: EmbedFooter}
	if icon, ok := store.OwnerIcon(name); ok {
		footer.IconURL = icon
	}
	return &discordgo.MessageEmbed{
		Description: name,
		Color:       EmbedColor,
		Footer:      footer,
	}
}
